// Package offline implements the make-an-item-available-offline workflow.
package offline

import (
	"context"

	"github.com/telos-app/telos-offline/internal/db"
	apperrors "github.com/telos-app/telos-offline/internal/errors"
	"github.com/telos-app/telos-offline/internal/logging"
	"github.com/telos-app/telos-offline/internal/models"
	"github.com/telos-app/telos-offline/internal/remote"
)

// SaveResult is the outcome of one offline save. Exactly one of Item and
// Err is meaningful: a populated Item means the save took (possibly without
// highlights), a non-empty Err means nothing was cached.
type SaveResult struct {
	Item *models.CachedItem `json:"item,omitempty"`
	Err  string             `json:"error,omitempty"`
}

// Saver orchestrates offline saves: remote content extraction, local item
// caching, and best-effort highlight mirroring.
type Saver struct {
	repo *db.Repository
	api  remote.API
}

// NewSaver creates a new Saver.
func NewSaver(repo *db.Repository, api remote.API) *Saver {
	return &Saver{repo: repo, api: api}
}

// SaveForOffline makes the item's full content available for offline
// reading. It never returns an error value; all failure paths land in the
// result's Err field. Extraction failure mutates no local state. Highlight
// mirroring is best-effort: the item is cached even when it fails, and the
// partial state is accepted (incomplete, not corrupting).
//
// Not safe to run twice concurrently for the same item: the last writer to
// the store wins, which is acceptable because extraction is idempotent
// server-side.
func (s *Saver) SaveForOffline(ctx context.Context, itemID string) SaveResult {
	item, err := s.api.ExtractContent(ctx, itemID)
	if err != nil {
		logging.Warn("Content extraction failed",
			map[string]interface{}{"item_id": itemID, "error": err.Error()})
		return SaveResult{Err: apperrors.Message(err)}
	}

	if err := s.repo.PutItem(item); err != nil {
		logging.ErrorWithCode("Failed to cache extracted item",
			string(apperrors.ErrStorage), err, map[string]interface{}{"item_id": itemID})
		return SaveResult{Err: apperrors.Message(err)}
	}

	highlights, err := s.api.ListHighlights(ctx, itemID)
	if err != nil {
		// Partial success: the item is cached, the highlights are not.
		logging.Warn("Highlight mirroring failed during offline save",
			map[string]interface{}{"item_id": itemID, "error": err.Error()})
		return SaveResult{Item: item}
	}

	for i := range highlights {
		h := highlights[i]
		if err := s.repo.PutHighlight(&h); err != nil {
			logging.Warn("Failed to cache highlight",
				map[string]interface{}{"item_id": itemID, "highlight_id": string(h.ID), "error": err.Error()})
		}
	}

	return SaveResult{Item: item}
}
