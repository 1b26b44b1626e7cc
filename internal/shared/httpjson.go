package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps the error taxonomy onto HTTP statuses. Unknown errors
// become 500 with a generic body so internals never leak to operators.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, ErrInvalidState):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNoLoss),
		errors.Is(err, ErrNoRemainder), errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, ErrUpstreamUnavailable):
		status = http.StatusBadGateway
		msg = err.Error()
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WrapValidation tags a validator error with the taxonomy sentinel.
func WrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// DecodeJSON parses the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
