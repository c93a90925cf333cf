// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Mapping pairs a domain error with the HTTP class it belongs to.
type Mapping struct {
	Err   error
	Class error
}

// Classify resolves err against mappings and returns the matching class, or err itself.
func Classify(err error, mappings ...Mapping) error {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return m.Class
		}
	}
	return err
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// The original error text is used as the detail so clients can show it verbatim.
func RespondError(w http.ResponseWriter, err error, mappings ...Mapping) {
	switch class := Classify(err, mappings...); {
	case errors.Is(class, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(class, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(class, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(class, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(class, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(class, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
