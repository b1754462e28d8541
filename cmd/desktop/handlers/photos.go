package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/photo"
	"github.com/propsnap/backend/internal/services"
)

// maxUploadBytes bounds multipart photo uploads.
const maxUploadBytes = 64 << 20

// PhotoHandler exposes captured photos.
type PhotoHandler struct {
	photos  *photo.Service
	capture *services.CaptureService
}

// NewPhotoHandler creates a new PhotoHandler.
func NewPhotoHandler(photos *photo.Service, capture *services.CaptureService) *PhotoHandler {
	return &PhotoHandler{photos: photos, capture: capture}
}

// Routes mounts the handler under /api/photos.
func (h *PhotoHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Capture)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/enhance", h.Enhance)
	r.Get("/{id}/thumbnail", h.Thumbnail)
}

// captureRequest is the JSON body of POST /api/photos.
type captureRequest struct {
	SourcePath string            `json:"source_path"`
	Category   string            `json:"category"`
	Metadata   map[string]string `json:"metadata"`
}

// Capture handles POST /api/photos. It accepts either a JSON body naming a local file or
// a multipart form with a "file" part, "category" and an optional JSON "metadata" field.
func (h *PhotoHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var request captureRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		tmpPath, cleanup, err := h.receiveUpload(w, r, &request)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer cleanup()
		request.SourcePath = tmpPath
	} else if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.capture.CapturePhoto(r.Context(), request.SourcePath, request.Category, request.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// receiveUpload spools the multipart file part to a temp file.
func (h *PhotoHandler) receiveUpload(w http.ResponseWriter, r *http.Request, request *captureRequest) (string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return "", nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid multipart form", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, apperrors.Wrap(apperrors.ErrInvalid, "file part is required", err)
	}
	defer file.Close()

	request.Category = r.FormValue("category")
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &request.Metadata); err != nil {
			return "", nil, apperrors.Wrap(apperrors.ErrInvalid, "metadata must be a JSON object of strings", err)
		}
	}

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", nil, apperrors.Wrap(apperrors.ErrStorage, "failed to spool upload", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, apperrors.Wrap(apperrors.ErrStorage, "failed to spool upload", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, apperrors.Wrap(apperrors.ErrStorage, "failed to spool upload", err)
	}
	return tmp.Name(), cleanup, nil
}

// List handles GET /api/photos
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photos.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": photos,
		"total": len(photos),
	})
}

// Get handles GET /api/photos/{id}
func (h *PhotoHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.photos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/photos/{id}
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.capture.DeletePhoto(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Enhance handles POST /api/photos/{id}/enhance with adjustments in [-1, 1].
func (h *PhotoHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	var adj photo.Adjustments
	if err := decodeJSON(w, r, &adj); err != nil {
		writeError(w, r, err)
		return
	}

	path, err := h.photos.EnhancePhoto(r.Context(), chi.URLParam(r, "id"), adj)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"uri": path})
}

// Thumbnail handles GET /api/photos/{id}/thumbnail?w=&h= and serves a JPEG.
func (h *PhotoHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	width := queryInt(r, "w", photo.DefaultThumbnailSize)
	height := queryInt(r, "h", width)

	path, err := h.photos.Thumbnail(r.Context(), chi.URLParam(r, "id"), width, height)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, path)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return -1
	}
	return def
}
