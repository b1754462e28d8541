package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/propsnap/backend/internal/services"
	"github.com/propsnap/backend/internal/sync/queue"
)

// QueueHandler exposes the upload queue.
type QueueHandler struct {
	queue   *queue.Queue
	capture *services.CaptureService
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(q *queue.Queue, capture *services.CaptureService) *QueueHandler {
	return &QueueHandler{queue: q, capture: capture}
}

// Routes mounts the handler under /api/queue.
func (h *QueueHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Delete("/", h.Clear)
	r.Delete("/{type}/{id}", h.Remove)
	r.Post("/{type}/{id}/retry", h.Retry)
}

// List handles GET /api/queue
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := h.capture.QueueOverview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if items == nil {
		items = []queue.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":        items,
		"stats":        overview.Stats,
		"online":       overview.Online,
		"max_attempts": h.queue.MaxAttempts(),
	})
}

// Clear handles DELETE /api/queue
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /api/queue/{type}/{id}. The source record is flagged synced,
// the same as after a successful upload.
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	itemType := queue.ItemType(chi.URLParam(r, "type"))
	if err := h.queue.Remove(r.Context(), itemType, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retry handles POST /api/queue/{type}/{id}/retry
func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	itemType := queue.ItemType(chi.URLParam(r, "type"))
	id := chi.URLParam(r, "id")
	if err := h.capture.RetryItem(r.Context(), itemType, id); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.queue.Get(r.Context(), itemType, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
