package handlers

import (
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.L().Warn("encode failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeDomainError maps engine errors to HTTP statuses. Unexpected errors
// are logged and reported as 500 without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownLocation), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMiss):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrCapacityExceeded):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnreachable), errors.Is(err, domain.ErrInvalidDistance):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		obs.L().Error(op+" failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, status, "internal server error")
		return
	}
	writeError(w, r, status, err.Error())
}

// decodeJSON reads exactly one JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}
