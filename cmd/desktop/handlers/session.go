package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/propsnap/backend/internal/services"
)

// SessionHandler stores and forgets the API session token.
type SessionHandler struct {
	session *services.Session
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(session *services.Session) *SessionHandler {
	return &SessionHandler{session: session}
}

// Routes mounts the handler under /api/session.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/", h.Status)
	r.Post("/", h.Login)
	r.Delete("/", h.Logout)
}

// Status handles GET /api/session. The token itself is never returned.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	loggedIn, err := h.session.LoggedIn(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logged_in": loggedIn})
}

// Login handles POST /api/session with body {"token": "..."}.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.session.Login(r.Context(), request.Token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logged_in": true})
}

// Logout handles DELETE /api/session. Pending uploads are discarded.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
