// Package errors provides coded application errors shared by the REST, FFI and CLI surfaces.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code that can be bridged to the app shells.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrPermission ErrorCode = "PERMISSION_DENIED"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Sync errors
	ErrNetwork        ErrorCode = "NETWORK_ERROR"
	ErrUploadFailed   ErrorCode = "UPLOAD_FAILED"
	ErrNotAuthorized  ErrorCode = "NOT_AUTHORIZED"
	ErrNoUploader     ErrorCode = "NO_UPLOADER"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"

	// Media errors
	ErrImageDecode  ErrorCode = "IMAGE_DECODE_FAILED"
	ErrCryptoFailed ErrorCode = "CRYPTO_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the outermost code carried by err, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// HTTPStatus maps an error code to the status used by the desktop REST API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrInvalid, ErrValidation, ErrImageDecode:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrPermission:
		return http.StatusForbidden
	case ErrNotAuthorized:
		return http.StatusUnauthorized
	case ErrSyncInProgress:
		return http.StatusConflict
	case ErrNetwork, ErrUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
