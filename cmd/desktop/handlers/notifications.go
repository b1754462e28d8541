package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/notify"
)

// NotificationHandler exposes the notification history and preferences.
type NotificationHandler struct {
	manager *notify.Manager
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(manager *notify.Manager) *NotificationHandler {
	return &NotificationHandler{manager: manager}
}

// Routes mounts the handler under /api/notifications.
func (h *NotificationHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Delete("/", h.Clear)
	r.Post("/read-all", h.MarkAllRead)
	r.Post("/{id}/read", h.MarkRead)
	r.Get("/preferences", h.GetPreferences)
	r.Put("/preferences", h.SetPreference)
}

// List handles GET /api/notifications. Newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"unread": unread,
	})
}

// Clear handles DELETE /api/notifications
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.MarkAllRead(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /api/notifications/preferences
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.manager.Preferences(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// SetPreference handles PUT /api/notifications/preferences with body
// {"category": "...", "enabled": bool}.
func (h *NotificationHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Category string `json:"category"`
		Enabled  *bool  `json:"enabled"`
	}
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	if request.Enabled == nil {
		writeError(w, r, apperrors.New(apperrors.ErrInvalid, "enabled is required"))
		return
	}

	if err := h.manager.SetPreference(r.Context(), request.Category, *request.Enabled); err != nil {
		writeError(w, r, err)
		return
	}
	h.GetPreferences(w, r)
}
