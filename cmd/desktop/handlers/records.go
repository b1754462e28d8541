package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/services"
)

// RecordHandler exposes draft orders and floorplans.
type RecordHandler struct {
	capture *services.CaptureService
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(capture *services.CaptureService) *RecordHandler {
	return &RecordHandler{capture: capture}
}

// OrderRoutes mounts the order endpoints under /api/orders.
func (h *RecordHandler) OrderRoutes(r chi.Router) {
	r.Get("/", h.ListOrders)
	r.Post("/", h.SubmitOrder)
	r.Get("/{id}", h.GetOrder)
}

// FloorplanRoutes mounts the floorplan endpoints under /api/floorplans.
func (h *RecordHandler) FloorplanRoutes(r chi.Router) {
	r.Get("/", h.ListFloorplans)
	r.Post("/", h.SaveFloorplan)
}

// SubmitOrder handles POST /api/orders. The order is stored and queued for upload.
func (h *RecordHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var order models.DraftOrder
	if err := decodeJSON(w, r, &order); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.capture.SubmitOrder(r.Context(), &order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, saved)
}

// ListOrders handles GET /api/orders
func (h *RecordHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.capture.ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": orders,
		"total": len(orders),
	})
}

// GetOrder handles GET /api/orders/{id}
func (h *RecordHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.capture.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// SaveFloorplan handles POST /api/floorplans
func (h *RecordHandler) SaveFloorplan(w http.ResponseWriter, r *http.Request) {
	var fp models.Floorplan
	if err := decodeJSON(w, r, &fp); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.capture.SaveFloorplan(r.Context(), &fp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, saved)
}

// ListFloorplans handles GET /api/floorplans
func (h *RecordHandler) ListFloorplans(w http.ResponseWriter, r *http.Request) {
	floorplans, err := h.capture.ListFloorplans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": floorplans,
		"total": len(floorplans),
	})
}
