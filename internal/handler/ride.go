package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/service"
)

// RideHandler handles HTTP requests for the ride lifecycle.
type RideHandler struct {
	dispatch  *service.DispatchService
	registry  *service.RegistryService
	snapshots redis.SnapshotStoreInterface // optional
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(dispatch *service.DispatchService, registry *service.RegistryService, snapshots redis.SnapshotStoreInterface) *RideHandler {
	return &RideHandler{
		dispatch:  dispatch,
		registry:  registry,
		snapshots: snapshots,
	}
}

// BookRideRequest is the HTTP request body for booking a ride.
type BookRideRequest struct {
	UserID      string  `json:"user_id"`
	Start       string  `json:"start"`
	Destination string  `json:"destination"`
	PickupLat   float64 `json:"pickup_lat"`
	PickupLng   float64 `json:"pickup_lng"`
	DestLat     float64 `json:"dest_lat"`
	DestLng     float64 `json:"dest_lng"`
	CouponCode  string  `json:"coupon_code,omitempty"`
}

// RideResponse is one ride in HTTP responses.
type RideResponse struct {
	RideID      string  `json:"ride_id"`
	UserID      string  `json:"user_id"`
	Start       string  `json:"start"`
	Destination string  `json:"destination"`
	Status      string  `json:"status"`
	DriverID    string  `json:"driver_id,omitempty"`
	Port        int     `json:"port,omitempty"`
	BaseFare    float64 `json:"base_fare"`
	Discount    float64 `json:"discount"`
	FinalFare   float64 `json:"final_fare"`
	CouponCode  string  `json:"coupon_code,omitempty"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt string  `json:"completed_at,omitempty"`
	CancelledAt string  `json:"cancelled_at,omitempty"`
}

// BookRideResponse is the HTTP response for booking a ride.
type BookRideResponse struct {
	RideResponse
	Message       string `json:"message"`
	NearbyDrivers int    `json:"nearby_drivers"`
	CouponApplied bool   `json:"coupon_applied"`
	CouponMessage string `json:"coupon_message,omitempty"`
}

// RideIDRequest is the HTTP request body for completion/cancellation.
type RideIDRequest struct {
	RideID string `json:"ride_id"`
}

func rideResponse(ride *domain.RideRequest) RideResponse {
	r := RideResponse{
		RideID:      ride.ID,
		UserID:      ride.RiderID,
		Start:       ride.Pickup.Text,
		Destination: ride.Destination.Text,
		Status:      string(ride.Status),
		DriverID:    ride.DriverID,
		Port:        ride.Port,
		BaseFare:    ride.BaseFare,
		Discount:    ride.Discount,
		FinalFare:   ride.FinalFare,
		CouponCode:  ride.CouponCode,
		CreatedAt:   ride.CreatedAt.Format(time.RFC3339),
	}
	if !ride.CompletedAt.IsZero() {
		r.CompletedAt = ride.CompletedAt.Format(time.RFC3339)
	}
	if !ride.CancelledAt.IsZero() {
		r.CancelledAt = ride.CancelledAt.Format(time.RFC3339)
	}
	return r
}

// BookRide handles POST /book-ride
func (h *RideHandler) BookRide(c *gin.Context) {
	var req BookRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	result, err := h.dispatch.BookRide(ctx, service.BookRideRequest{
		RiderID:     req.UserID,
		Pickup:      domain.Location{Text: req.Start, Lat: req.PickupLat, Lng: req.PickupLng},
		Destination: domain.Location{Text: req.Destination, Lat: req.DestLat, Lng: req.DestLng},
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidateSnapshots(c)

	nearby, _ := h.registry.AvailableDrivers(ctx)

	response := BookRideResponse{
		RideResponse:  rideResponse(result.Ride),
		NearbyDrivers: len(nearby),
		CouponApplied: result.Coupon.Valid,
		CouponMessage: result.Coupon.Reason,
	}
	if result.Assigned {
		response.Message = "driver assigned"
	} else {
		response.Message = "no drivers available, ride queued"
	}

	respondJSON(c, http.StatusCreated, response)
}

// Queue handles GET /queue
func (h *RideHandler) Queue(c *gin.Context) {
	ctx := c.Request.Context()

	if h.snapshots != nil {
		var cached []RideResponse
		if hit, err := h.snapshots.Get(ctx, "queue", &cached); err == nil && hit {
			respondJSON(c, http.StatusOK, cached)
			return
		}
	}

	rides, err := h.dispatch.Queue(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RideResponse, 0, len(rides))
	for _, ride := range rides {
		response = append(response, rideResponse(ride))
	}

	if h.snapshots != nil {
		_ = h.snapshots.Set(ctx, "queue", response, redis.QueueSnapshotTTL)
	}

	respondJSON(c, http.StatusOK, response)
}

// NextRide handles GET /next-ride
func (h *RideHandler) NextRide(c *gin.Context) {
	ride, err := h.dispatch.NextAvailableRide(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if ride == nil {
		respondJSON(c, http.StatusOK, gin.H{})
		return
	}
	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// GetRide handles GET /ride/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.dispatch.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// GetRideByPort handles GET /ride-by-port/:port
func (h *RideHandler) GetRideByPort(c *gin.Context) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid port"})
		return
	}

	ride, err := h.dispatch.RideByPort(c.Request.Context(), port)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// CompleteRide handles POST /complete-ride
func (h *RideHandler) CompleteRide(c *gin.Context) {
	var req RideIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.dispatch.CompleteRide(c.Request.Context(), req.RideID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidateSnapshots(c)
	respondJSON(c, http.StatusOK, rideResponse(ride))
}

// CancelRide handles POST /cancel-ride
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req RideIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.dispatch.CancelRide(c.Request.Context(), req.RideID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidateSnapshots(c)
	respondJSON(c, http.StatusOK, rideResponse(ride))
}

func (h *RideHandler) invalidateSnapshots(c *gin.Context) {
	if h.snapshots == nil {
		return
	}
	ctx := c.Request.Context()
	_ = h.snapshots.Invalidate(ctx, "queue")
	_ = h.snapshots.Invalidate(ctx, "available-drivers")
}
