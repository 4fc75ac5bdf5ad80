package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// AdminHandler handles load-testing and maintenance endpoints.
type AdminHandler struct {
	dispatch *service.DispatchService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(dispatch *service.DispatchService) *AdminHandler {
	return &AdminHandler{dispatch: dispatch}
}

// SimulateRideRequest is the HTTP request body for the simulation entry
// point.
type SimulateRideRequest struct {
	UserID      string  `json:"user_id"`
	DriverID    string  `json:"driver_id"`
	Start       string  `json:"start,omitempty"`
	Destination string  `json:"destination,omitempty"`
	PickupLat   float64 `json:"pickup_lat,omitempty"`
	PickupLng   float64 `json:"pickup_lng,omitempty"`
	DestLat     float64 `json:"dest_lat,omitempty"`
	DestLng     float64 `json:"dest_lng,omitempty"`
}

// SimulateRide handles POST /simulate-ride-with-driver. It assigns the
// named driver through the same atomic claim as normal booking.
func (h *AdminHandler) SimulateRide(c *gin.Context) {
	var req SimulateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.dispatch.SimulateAssignment(
		c.Request.Context(),
		req.UserID,
		req.DriverID,
		domain.Location{Text: req.Start, Lat: req.PickupLat, Lng: req.PickupLng},
		domain.Location{Text: req.Destination, Lat: req.DestLat, Lng: req.DestLng},
	)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{
		"ride_id":   result.Ride.ID,
		"driver_id": result.Driver.ID,
		"port":      result.Ride.Port,
		"status":    string(result.Ride.Status),
	})
}

// Cleanup handles POST /cleanup-simulation-data
func (h *AdminHandler) Cleanup(c *gin.Context) {
	stats, err := h.dispatch.CleanupSimulationData(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"users_deleted":   stats.UsersDeleted,
		"drivers_deleted": stats.DriversDeleted,
		"rides_deleted":   stats.RidesDeleted,
	})
}

// Health handles GET /health
func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
