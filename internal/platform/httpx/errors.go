// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/factorybooks/factorybooks/internal/shared"
)

// Aliases of the shared error kinds, kept so handlers need one import.
var (
	ErrNotFound    = shared.ErrNotFound
	ErrValidation  = shared.ErrValidation
	ErrConflict    = shared.ErrConflict
	ErrStorage     = shared.ErrStorage
	ErrConsistency = shared.ErrConsistency
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Validation messages are passed through so the caller can act on them;
// storage and consistency failures only tell the caller to retry.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsRetryable(err):
		w.Header().Set("Retry-After", "5")
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "the request could not be completed; retry later")
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
