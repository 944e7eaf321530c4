package handler

import (
	"net/http"

	"github.com/mcoot/pongladder/internal/api/apierr"
)

// Re-export from apierr for convenience
type APIError = apierr.APIError
type ErrorResponse = apierr.ErrorResponse

// Re-export error codes
const (
	CodeInvalidRequest     = apierr.CodeInvalidRequest
	CodeUnauthorized       = apierr.CodeUnauthorized
	CodeUsernameExists     = apierr.CodeUsernameExists
	CodeInvalidUsername    = apierr.CodeInvalidUsername
	CodeInvalidCredentials = apierr.CodeInvalidCredentials
	CodeUnknownPlayer      = apierr.CodeUnknownPlayer
	CodeSamePlayer         = apierr.CodeSamePlayer
	CodeInvalidResult      = apierr.CodeInvalidResult
	CodeEmptyLedger        = apierr.CodeEmptyLedger
	CodeWriteConflict      = apierr.CodeWriteConflict
	CodeStorageUnavailable = apierr.CodeStorageUnavailable
	CodeInternalError      = apierr.CodeInternalError
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return apierr.NewUnauthorizedError()
}
