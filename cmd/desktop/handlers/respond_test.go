package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/propsnap/backend/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"not found", apperrors.New(apperrors.ErrNotFound, "photo not found"), http.StatusNotFound, "NOT_FOUND", "photo not found"},
		{"validation", apperrors.New(apperrors.ErrValidation, "bad order"), http.StatusBadRequest, "VALIDATION_ERROR", "bad order"},
		{"wrapped storage", apperrors.Wrap(apperrors.ErrStorage, "disk", fmt.Errorf("full")), http.StatusInternalServerError, "STORAGE_ERROR", "disk"},
		{"plain error hidden", fmt.Errorf("secret detail"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Contains(t, body.Error.Message, tt.message)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, decodeJSON(rec, req, &v))
	assert.Equal(t, "a", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := decodeJSON(rec, req, &v)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	big := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	assert.Error(t, decodeJSON(rec, req, &v))
}
