package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/propsnap/backend/internal/errors"
	syncpkg "github.com/propsnap/backend/internal/sync"
	"github.com/propsnap/backend/internal/sync/scheduler"
)

// OnlineSetter overrides the connectivity state.
type OnlineSetter interface {
	SetOnline(online bool) error
}

// SyncHandler exposes drain status and manual triggers.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	engine    *syncpkg.Engine
	online    OnlineSetter
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(s *scheduler.Scheduler, engine *syncpkg.Engine, online OnlineSetter) *SyncHandler {
	return &SyncHandler{scheduler: s, engine: engine, online: online}
}

// Routes mounts the handler under /api/sync.
func (h *SyncHandler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Post("/now", h.SyncNow)
	r.Put("/online", h.SetOnline)
}

// GetStatus handles GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.scheduler.GetStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler": status,
		"engine":    h.engine.Status(),
	})
}

// SyncNow handles POST /api/sync/now. It drains synchronously and returns the result.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.DrainNow(r.Context())
	if errors.Is(err, syncpkg.ErrOffline) {
		var body ErrorBody
		body.Error.Code = "OFFLINE"
		body.Error.Message = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Skipped {
		writeJSON(w, http.StatusAccepted, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SetOnline handles PUT /api/sync/online with body {"online": bool}.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, err)
		return
	}
	if request.Online == nil {
		writeError(w, r, apperrors.New(apperrors.ErrInvalid, "online is required"))
		return
	}

	if err := h.online.SetOnline(*request.Online); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": *request.Online})
}
