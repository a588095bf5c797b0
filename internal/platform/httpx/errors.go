// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RespondError maps the engine's error taxonomy to HTTP responses using
// RFC7807. Validation failures carry all accumulated messages; state and
// permission violations surface their reason as the detail.
func RespondError(w http.ResponseWriter, err error) {
	var validation *shared.ValidationErrors
	var state *shared.StateError
	var permission *shared.PermissionError
	switch {
	case errors.As(err, &validation):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Errors: validation.Messages,
		})
	case errors.As(err, &state):
		Problem(w, http.StatusConflict, "Invalid State", state.Error())
	case errors.As(err, &permission):
		Problem(w, http.StatusForbidden, "Forbidden", permission.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.Is(err, shared.ErrLockHeld):
		Problem(w, http.StatusConflict, "Busy", "the document is being modified by another request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
