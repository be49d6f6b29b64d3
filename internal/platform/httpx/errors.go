// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/clarion-qa/clarion/internal/shared"
)

// Aliases kept so HTTP handlers do not reach into shared for these two.
var (
	ErrDuplicate  = shared.ErrDuplicate
	ErrValidation = shared.ErrValidation
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Credit exhaustion gets a distinct 402 so callers can tell "not allowed"
// from "out of quota".
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInsufficientCredit):
		Problem(w, http.StatusPaymentRequired, "Insufficient Credit", err.Error())
	case errors.Is(err, shared.ErrNoRoleAssigned),
		errors.Is(err, shared.ErrInsufficientPermission),
		errors.Is(err, shared.ErrInsufficientRole):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
