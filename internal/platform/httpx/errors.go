package httpx

import (
	"errors"
	"net/http"

	"github.com/routewise-ops/routewise/internal/shared"
)

// RespondError maps the shared error taxonomy to RFC7807 responses. Domain
// rule violations that do not fit the shared kinds go through Unprocessable.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrDuplicateReference):
		Problem(w, http.StatusConflict, "Duplicate Reference", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unprocessable reports a request that was well formed but rejected by a
// ledger rule (illegal transition, inactive card, insufficient balance).
func Unprocessable(w http.ResponseWriter, err error) {
	Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
}
