// Package handlers provides the REST API handlers of the desktop server.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

// writeError maps an error's code to an HTTP status. Internal details of uncoded
// errors are not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := apperrors.HTTPStatus(code)

	var body ErrorBody
	body.Error.Code = string(code)
	body.Error.Message = err.Error()
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", string(code), err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			body.Error.Message = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err)
	}
	return nil
}
