package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tow-dispatch/internal/domain/order"
	"tow-dispatch/internal/general/jwt"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/pkg/errs"
	"tow-dispatch/internal/ports"
	"tow-dispatch/internal/pricing"

	"github.com/go-chi/chi/v5"
)

// OrderHandler serves the order lifecycle endpoints.
type OrderHandler struct {
	logger  *logger.Logger
	service ports.OrderService
	pricing *pricing.Engine
}

// NewOrderHandler wires the handler.
func NewOrderHandler(log *logger.Logger, service ports.OrderService, engine *pricing.Engine) *OrderHandler {
	return &OrderHandler{logger: log, service: service, pricing: engine}
}

type createOrderRequest struct {
	VehicleTypeID     int64   `json:"vehicle_type_id"`
	PickupLatitude    float64 `json:"pickup_latitude"`
	PickupLongitude   float64 `json:"pickup_longitude"`
	PickupAddress     string  `json:"pickup_address"`
	DeliveryLatitude  float64 `json:"delivery_latitude"`
	DeliveryLongitude float64 `json:"delivery_longitude"`
	DeliveryAddress   string  `json:"delivery_address"`
	Description       string  `json:"description,omitempty"`
	Priority          string  `json:"priority,omitempty"`
	DistanceKM        float64 `json:"distance_km"`
}

type advanceOrderRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type orderResponse struct {
	ID                 string     `json:"id"`
	ClientID           string     `json:"client_id"`
	TowTruckID         *string    `json:"tow_truck_id,omitempty"`
	VehicleTypeID      int64      `json:"vehicle_type_id"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	PickupLatitude     float64    `json:"pickup_latitude"`
	PickupLongitude    float64    `json:"pickup_longitude"`
	PickupAddress      string     `json:"pickup_address"`
	DeliveryLatitude   float64    `json:"delivery_latitude"`
	DeliveryLongitude  float64    `json:"delivery_longitude"`
	DeliveryAddress    string     `json:"delivery_address"`
	DistanceKM         float64    `json:"distance_km"`
	Description        string     `json:"description,omitempty"`
	EstimatedPrice     *int64     `json:"estimated_price,omitempty"`
	FinalPrice         *int64     `json:"final_price,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	SearchStartedAt    *time.Time `json:"search_started_at,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:                 o.ID,
		ClientID:           o.ClientID,
		TowTruckID:         o.TowTruckID,
		VehicleTypeID:      o.VehicleTypeID,
		Status:             o.Status.String(),
		Priority:           o.Priority.String(),
		PickupLatitude:     o.Pickup.Latitude,
		PickupLongitude:    o.Pickup.Longitude,
		PickupAddress:      o.PickupAddress,
		DeliveryLatitude:   o.Delivery.Latitude,
		DeliveryLongitude:  o.Delivery.Longitude,
		DeliveryAddress:    o.DeliveryAddress,
		DistanceKM:         o.DistanceKM,
		Description:        o.Description,
		EstimatedPrice:     o.EstimatedPrice,
		FinalPrice:         o.FinalPrice,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		SearchStartedAt:    o.SearchStartedAt,
		AssignedAt:         o.AssignedAt,
		CompletedAt:        o.CompletedAt,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
	}
}

// Create handles POST /orders. The acting client comes from the token, never
// from the body.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := jwt.RequireClaims(r)

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("body", err))
		return
	}

	o, err := h.service.Create(r.Context(), ports.CreateOrderInput{
		ClientID:          claims.Subject,
		VehicleTypeID:     req.VehicleTypeID,
		PickupLatitude:    req.PickupLatitude,
		PickupLongitude:   req.PickupLongitude,
		PickupAddress:     req.PickupAddress,
		DeliveryLatitude:  req.DeliveryLatitude,
		DeliveryLongitude: req.DeliveryLongitude,
		DeliveryAddress:   req.DeliveryAddress,
		Description:       req.Description,
		Priority:          req.Priority,
		DistanceKM:        req.DistanceKM,
	})
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Advance handles POST /orders/{id}/status. The actor's identity and role
// come from the token; the legality table decides whether the edge is theirs
// to take.
func (h *OrderHandler) Advance(w http.ResponseWriter, r *http.Request) {
	claims := jwt.RequireClaims(r)

	var req advanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("body", err))
		return
	}

	o, err := h.service.Advance(r.Context(), ports.AdvanceInput{
		OrderID:         chi.URLParam(r, "id"),
		RequestedStatus: req.Status,
		ActorID:         claims.Subject,
		ActorRole:       claims.Role,
		Reason:          req.Reason,
	})
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type quoteResponse struct {
	VehicleTypeID     int64   `json:"vehicle_type_id"`
	DistanceKM        float64 `json:"distance_km"`
	Price             int64   `json:"price"`
	BasePrice         int64   `json:"base_price"`
	DistanceComponent int64   `json:"distance_component"`
	Multiplier        float64 `json:"multiplier"`
}

// Quote handles GET /pricing/quote?vehicle_type_id=&distance_km=.
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	vehicleTypeID, err := strconv.ParseInt(r.URL.Query().Get("vehicle_type_id"), 10, 64)
	if err != nil {
		writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("vehicle_type_id", err))
		return
	}
	distanceKM, err := strconv.ParseFloat(r.URL.Query().Get("distance_km"), 64)
	if err != nil {
		writeError(r.Context(), w, h.logger, errs.NewValidationErrorWithCause("distance_km", err))
		return
	}

	q, err := h.pricing.Quote(r.Context(), vehicleTypeID, distanceKM)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		VehicleTypeID:     q.VehicleTypeID,
		DistanceKM:        q.DistanceKM,
		Price:             q.Price,
		BasePrice:         q.Breakdown.BasePrice,
		DistanceComponent: q.Breakdown.DistanceComponent,
		Multiplier:        q.Breakdown.Multiplier,
	})
}
