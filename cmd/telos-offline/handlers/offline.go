// Package handlers provides the local REST surface the Telos UI uses to
// drive the offline subsystem.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/telos-app/telos-offline/internal/db"
	apperrors "github.com/telos-app/telos-offline/internal/errors"
	"github.com/telos-app/telos-offline/internal/models"
	"github.com/telos-app/telos-offline/internal/offline"
	syncpkg "github.com/telos-app/telos-offline/internal/sync"
	"github.com/telos-app/telos-offline/internal/uuid"
	"github.com/telos-app/telos-offline/internal/ws"
)

// Handler bundles the offline subsystem pieces behind HTTP endpoints.
type Handler struct {
	repo   *db.Repository
	engine *syncpkg.Engine
	saver  *offline.Saver
	hub    *ws.Hub
}

// New creates a Handler.
func New(repo *db.Repository, engine *syncpkg.Engine, saver *offline.Saver, hub *ws.Hub) *Handler {
	return &Handler{repo: repo, engine: engine, saver: saver, hub: hub}
}

// Routes registers the handler's endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/items/{id}/save", h.saveForOffline)
	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)
	r.Delete("/items/{id}", h.removeItem)
	r.Get("/items/{id}/highlights", h.listHighlights)
	r.Post("/actions", h.applyAction)
	r.Post("/drain", h.drain)
	r.Get("/status", h.status)
	r.Get("/stats", h.stats)
	r.Delete("/cache", h.clearAll)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// saveForOffline handles POST /_offline/items/{id}/save.
func (h *Handler) saveForOffline(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	res := h.saver.SaveForOffline(r.Context(), itemID)
	if res.Err != "" {
		respondError(w, http.StatusBadGateway, res.Err)
		return
	}

	h.hub.BroadcastOfflineSaved(itemID)
	respondJSON(w, http.StatusOK, res)
}

// listItems handles GET /_offline/items.
func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.GetAllItems()
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Message(err))
		return
	}
	if items == nil {
		items = []*models.CachedItem{}
	}
	respondJSON(w, http.StatusOK, items)
}

// getItem handles GET /_offline/items/{id}.
func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.repo.GetItem(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Message(err))
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "item is not available offline")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// removeItem handles DELETE /_offline/items/{id}.
func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.RemoveItem(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Message(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listHighlights handles GET /_offline/items/{id}/highlights.
func (h *Handler) listHighlights(w http.ResponseWriter, r *http.Request) {
	highlights, err := h.repo.GetHighlightsForItem(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Message(err))
		return
	}
	if highlights == nil {
		highlights = []*models.CachedHighlight{}
	}
	respondJSON(w, http.StatusOK, highlights)
}

// actionRequest is the body of POST /_offline/actions.
type actionRequest struct {
	Kind    models.ActionKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

// applyAction handles POST /_offline/actions: apply a mutation now if
// online, queue it otherwise. create-highlight payloads get a generated
// client_ref so a retried replay can be deduplicated server-side.
func (h *Handler) applyAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed action request")
		return
	}
	if !req.Kind.Valid() {
		respondError(w, http.StatusBadRequest, "unknown action kind")
		return
	}

	if req.Kind == models.ActionCreateHighlight {
		var p models.CreateHighlightPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			respondError(w, http.StatusBadRequest, "malformed create-highlight payload")
			return
		}
		if p.ClientRef == "" {
			p.ClientRef = uuid.New()
			req.Payload, _ = json.Marshal(p)
		}
	}

	queued, err := h.engine.Apply(r.Context(), req.Kind, req.Payload)
	if err != nil {
		respondError(w, http.StatusBadGateway, apperrors.Message(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"queued": queued})
}

// drain handles POST /_offline/drain: a manual drain pass.
func (h *Handler) drain(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Drain(r.Context()))
}

// status handles GET /_offline/status.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": string(h.engine.Status())})
}

// stats handles GET /_offline/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Message(err))
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// clearAll handles DELETE /_offline/cache: the user's explicit cache reset.
func (h *Handler) clearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearAll(); err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Message(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
