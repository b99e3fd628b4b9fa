package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/forgeerp/forgeerp/internal/auth"
	"github.com/forgeerp/forgeerp/internal/change"
	"github.com/forgeerp/forgeerp/internal/registry"
	"github.com/forgeerp/forgeerp/internal/tenant"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses. Anything unmapped is
// an internal error; its detail stays out of the response body.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		code, msg = http.StatusUnauthorized, "invalid token"
	case errors.Is(err, auth.ErrUnauthorized):
		code, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		code, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, change.ErrExternalUnavailable):
		code, msg = http.StatusBadGateway, "review system unavailable"
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, tenant.ErrNotFound),
		errors.Is(err, registry.ErrNotFound),
		errors.Is(err, change.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, auth.ErrConflict),
		errors.Is(err, tenant.ErrConflict),
		errors.Is(err, registry.ErrConflict),
		errors.Is(err, change.ErrConflict):
		code, msg = http.StatusConflict, "conflict"
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, tenant.ErrInvalidInput),
		errors.Is(err, registry.ErrInvalidInput),
		errors.Is(err, change.ErrInvalidInput):
		code, msg = http.StatusBadRequest, err.Error()
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
}
