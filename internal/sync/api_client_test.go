package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/sync/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) { return token, nil })
}

func TestAPIClient_UploadPhoto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p1.png")
	content := "\x89PNG\r\n\x1a\n-png-bytes"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/photos", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "p1", r.FormValue("photo_id"))
		assert.Equal(t, "exterior", r.FormValue("category"))
		assert.Equal(t, "front", r.FormValue("metadata[room]"))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "p1.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, content, string(data))

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewAPIClient(APIConfig{BaseURL: srv.URL + "/"}, staticToken("secret"))
	err := client.UploadPhoto(context.Background(), queue.PhotoPayload{
		PhotoID:  "p1",
		Path:     path,
		Category: "exterior",
		Metadata: map[string]string{"room": "front"},
	})
	require.NoError(t, err)
}

func TestAPIClient_UploadPhoto_missingFile(t *testing.T) {
	client := NewAPIClient(APIConfig{BaseURL: "http://127.0.0.1:1"}, nil)

	err := client.UploadPhoto(context.Background(), queue.PhotoPayload{PhotoID: "p1", Path: "/nonexistent/p1.jpg"})
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
}

func TestAPIClient_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"), "empty token sends no header")

		var o models.DraftOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&o))
		assert.Equal(t, "12 Harbor St", o.PropertyAddress)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, staticToken(""))
	err := client.CreateOrder(context.Background(), models.DraftOrder{ID: "o1", PropertyAddress: "12 Harbor St"})
	require.NoError(t, err)
}

func TestAPIClient_statusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   apperrors.ErrorCode
	}{
		{"server error", http.StatusInternalServerError, apperrors.ErrUploadFailed},
		{"bad request", http.StatusBadRequest, apperrors.ErrUploadFailed},
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil).
				UploadFloorplan(context.Background(), models.Floorplan{ID: "f1"})
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.code), "got %v", err)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
		})
	}
}

func TestAPIClient_networkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewAPIClient(APIConfig{BaseURL: url, Timeout: time.Second}, nil).
		CreateOrder(context.Background(), models.DraftOrder{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))
}

func TestAPIClient_tokenError(t *testing.T) {
	tokens := TokenSourceFunc(func(context.Context) (string, error) { return "", errors.New("keychain locked") })

	err := NewAPIClient(APIConfig{BaseURL: "http://127.0.0.1:1"}, tokens).
		CreateOrder(context.Background(), models.DraftOrder{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAuthorized))
}

func TestAPIClient_RegisterUploaders(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := createTestEngine(t)
	NewAPIClient(APIConfig{BaseURL: srv.URL}, nil).RegisterUploaders(env.engine)

	env.enqueueOrder(t, "o1", time.UnixMilli(1))
	plan := models.Floorplan{ID: "f1", PropertyAddress: "1 Main"}
	_, err := env.queue.Enqueue(context.Background(), queue.Item{
		ID: "f1", Type: queue.TypeFloorplan, Payload: queue.FloorplanPayload{Floorplan: plan}, CreatedAt: time.UnixMilli(2),
	})
	require.NoError(t, err)

	result, err := env.engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, []string{"/v1/orders", "/v1/floorplans"}, paths)
}
