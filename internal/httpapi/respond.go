package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/pkg/errs"
)

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP status codes. Unclassified
// errors become opaque 500s so internals never leak to clients.
func writeError(ctx context.Context, w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrAuthentication):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrAssignmentConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		log.Error(ctx, "internal_error", "Unhandled error in HTTP handler", err, nil)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
