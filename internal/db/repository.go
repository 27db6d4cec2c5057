package db

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/telos-app/telos-offline/internal/errors"
	"github.com/telos-app/telos-offline/internal/models"
	"github.com/telos-app/telos-offline/internal/uuid"
)

// Repository provides the Local Store operations over the three offline
// collections. Storage failures surface as STORAGE_ERROR app errors; the
// repository performs no retry internally — retry is the caller's
// responsibility.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StoreStats summarizes local store usage. ApproximateByteSize is computed
// by serializing all three collections and summing lengths; it is an
// approximation, not exact storage usage.
type StoreStats struct {
	ItemCount           int   `json:"item_count"`
	HighlightCount      int   `json:"highlight_count"`
	PendingActionCount  int   `json:"pending_action_count"`
	ApproximateByteSize int64 `json:"approximate_byte_size"`
}

// =====================================================
// CachedItem Operations
// =====================================================

// PutItem inserts or fully replaces the cached record for the item's
// identifier, stamping CachedAt to the current time.
func (r *Repository) PutItem(item *models.CachedItem) error {
	item.CachedAt = time.Now().Unix()

	query := `
	INSERT OR REPLACE INTO cached_items (id, type, url, title, description, thumbnail,
		content, content_type, folder_id, status, word_count, reading_time,
		created_at, updated_at, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, item.ID, item.Type, item.URL, item.Title, item.Description,
		item.Thumbnail, item.Content, item.ContentType, item.FolderID, item.Status,
		item.WordCount, item.ReadingTime, item.CreatedAt, item.UpdatedAt, item.CachedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to put cached item", err)
	}
	return nil
}

// GetItem returns the cached item, or nil when no record exists (the item is
// not available offline).
func (r *Repository) GetItem(id string) (*models.CachedItem, error) {
	query := `
	SELECT id, type, url, title, description, thumbnail, content, content_type,
		folder_id, status, word_count, reading_time, created_at, updated_at, cached_at
	FROM cached_items WHERE id = ?
	`
	item := &models.CachedItem{}
	err := r.db.QueryRow(query, id).Scan(&item.ID, &item.Type, &item.URL, &item.Title,
		&item.Description, &item.Thumbnail, &item.Content, &item.ContentType,
		&item.FolderID, &item.Status, &item.WordCount, &item.ReadingTime,
		&item.CreatedAt, &item.UpdatedAt, &item.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get cached item", err)
	}
	return item, nil
}

// GetAllItems returns every cached item. Order is unspecified.
func (r *Repository) GetAllItems() ([]*models.CachedItem, error) {
	query := `
	SELECT id, type, url, title, description, thumbnail, content, content_type,
		folder_id, status, word_count, reading_time, created_at, updated_at, cached_at
	FROM cached_items
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached items", err)
	}
	defer rows.Close()

	var items []*models.CachedItem
	for rows.Next() {
		item := &models.CachedItem{}
		err := rows.Scan(&item.ID, &item.Type, &item.URL, &item.Title,
			&item.Description, &item.Thumbnail, &item.Content, &item.ContentType,
			&item.FolderID, &item.Status, &item.WordCount, &item.ReadingTime,
			&item.CreatedAt, &item.UpdatedAt, &item.CachedAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached items", err)
	}
	return items, nil
}

// RemoveItem deletes the cached record for the item identifier.
// Removing an absent item is not an error.
func (r *Repository) RemoveItem(id string) error {
	if _, err := r.db.Exec("DELETE FROM cached_items WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove cached item", err)
	}
	return nil
}

// HasItem reports whether a cached record exists for the item identifier.
func (r *Repository) HasItem(id string) (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM cached_items WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to check cached item", err)
	}
	return count > 0, nil
}

// =====================================================
// CachedHighlight Operations
// =====================================================

// PutHighlight inserts or fully replaces a cached highlight, stamping
// CachedAt to the current time.
func (r *Repository) PutHighlight(h *models.CachedHighlight) error {
	h.CachedAt = time.Now().Unix()

	query := `
	INSERT OR REPLACE INTO cached_highlights (id, item_id, text, color, note,
		created_at, updated_at, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, h.ID, h.ItemID, h.Text, h.Color, h.Note,
		h.CreatedAt, h.UpdatedAt, h.CachedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to put cached highlight", err)
	}
	return nil
}

// GetHighlightsForItem returns the cached highlights keyed by the owning
// item identifier.
func (r *Repository) GetHighlightsForItem(itemID string) ([]*models.CachedHighlight, error) {
	query := `
	SELECT id, item_id, text, color, note, created_at, updated_at, cached_at
	FROM cached_highlights WHERE item_id = ?
	`
	rows, err := r.db.Query(query, itemID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached highlights", err)
	}
	defer rows.Close()

	var highlights []*models.CachedHighlight
	for rows.Next() {
		h := &models.CachedHighlight{}
		err := rows.Scan(&h.ID, &h.ItemID, &h.Text, &h.Color, &h.Note,
			&h.CreatedAt, &h.UpdatedAt, &h.CachedAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached highlight", err)
		}
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached highlights", err)
	}
	return highlights, nil
}

// RemoveHighlight deletes a cached highlight by identifier.
func (r *Repository) RemoveHighlight(id string) error {
	if _, err := r.db.Exec("DELETE FROM cached_highlights WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove cached highlight", err)
	}
	return nil
}

// =====================================================
// PendingAction Operations (the outbox)
// =====================================================

// EnqueueAction appends a pending action to the outbox, assigning a fresh
// identifier and creation timestamp. The kind is not validated here; an
// unrecognized kind is skipped at replay time.
func (r *Repository) EnqueueAction(kind models.ActionKind, payload json.RawMessage) (string, error) {
	id := uuid.New()
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	query := `INSERT INTO pending_actions (id, kind, payload, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.Exec(query, id, string(kind), string(payload), time.Now().Unix())
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to enqueue pending action", err)
	}
	return id, nil
}

// ListActions returns the outbox contents in creation order.
func (r *Repository) ListActions() ([]*models.PendingAction, error) {
	// rowid breaks ties between actions enqueued within the same second
	query := `SELECT id, kind, payload, created_at FROM pending_actions ORDER BY created_at, rowid`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending actions", err)
	}
	defer rows.Close()

	var actions []*models.PendingAction
	for rows.Next() {
		a := &models.PendingAction{}
		var payload string
		if err := rows.Scan(&a.ID, &a.Kind, &payload, &a.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan pending action", err)
		}
		a.Payload = json.RawMessage(payload)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending actions", err)
	}
	return actions, nil
}

// RemoveAction deletes a pending action by identifier.
func (r *Repository) RemoveAction(id string) error {
	if _, err := r.db.Exec("DELETE FROM pending_actions WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove pending action", err)
	}
	return nil
}

// ClearActions empties the outbox.
func (r *Repository) ClearActions() error {
	if _, err := r.db.Exec("DELETE FROM pending_actions"); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear pending actions", err)
	}
	return nil
}

// =====================================================
// Store-wide Operations
// =====================================================

// Stats returns counts and the approximate serialized size of all three
// collections.
func (r *Repository) Stats() (*StoreStats, error) {
	stats := &StoreStats{}

	items, err := r.GetAllItems()
	if err != nil {
		return nil, err
	}
	stats.ItemCount = len(items)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to serialize cached item", err)
		}
		stats.ApproximateByteSize += int64(len(data))
	}

	highlights, err := r.allHighlights()
	if err != nil {
		return nil, err
	}
	stats.HighlightCount = len(highlights)
	for _, h := range highlights {
		data, err := json.Marshal(h)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to serialize cached highlight", err)
		}
		stats.ApproximateByteSize += int64(len(data))
	}

	actions, err := r.ListActions()
	if err != nil {
		return nil, err
	}
	stats.PendingActionCount = len(actions)
	for _, a := range actions {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to serialize pending action", err)
		}
		stats.ApproximateByteSize += int64(len(data))
	}

	return stats, nil
}

// ClearAll empties all three collections. Used for explicit cache reset by
// the user; irreversible.
func (r *Repository) ClearAll() error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin cache reset", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"cached_items", "cached_highlights", "pending_actions"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to clear "+table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit cache reset", err)
	}
	return nil
}

// allHighlights returns every cached highlight, including dangling ones.
func (r *Repository) allHighlights() ([]*models.CachedHighlight, error) {
	query := `SELECT id, item_id, text, color, note, created_at, updated_at, cached_at FROM cached_highlights`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached highlights", err)
	}
	defer rows.Close()

	var highlights []*models.CachedHighlight
	for rows.Next() {
		h := &models.CachedHighlight{}
		err := rows.Scan(&h.ID, &h.ItemID, &h.Text, &h.Color, &h.Note,
			&h.CreatedAt, &h.UpdatedAt, &h.CachedAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached highlight", err)
		}
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cached highlights", err)
	}
	return highlights, nil
}
