package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"tow-dispatch/internal/domain/geo"
	"tow-dispatch/internal/gateway"
	"tow-dispatch/internal/general/jwt"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/pkg/errs"
)

// LocationHandler is the HTTP fallback for driver location reports; mobile
// clients without a live socket POST here instead. The heavy lifting is the
// same ingest path the gateway uses.
type LocationHandler struct {
	logger  *logger.Logger
	gateway *gateway.Gateway
}

func NewLocationHandler(log *logger.Logger, gw *gateway.Gateway) *LocationHandler {
	return &LocationHandler{logger: log, gateway: gw}
}

type reportLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp,omitempty"` // RFC3339, defaults to server time
}

// Report handles POST /drivers/location. The reporting driver comes from the
// token.
func (h *LocationHandler) Report(w http.ResponseWriter, r *http.Request) {
	claims := jwt.RequireClaims(r)

	var req reportLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("body", err))
		return
	}

	point, err := geo.NewPoint(req.Latitude, req.Longitude)
	if err != nil {
		writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("location", err))
		return
	}

	at := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("timestamp", err))
			return
		}
		at = parsed.UTC()
	}

	if err := h.gateway.IngestDriverLocation(r.Context(), claims.Subject, point, at); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
