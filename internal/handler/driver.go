package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	registry  *service.RegistryService
	dispatch  *service.DispatchService
	snapshots redis.SnapshotStoreInterface // optional
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(registry *service.RegistryService, dispatch *service.DispatchService, snapshots redis.SnapshotStoreInterface) *DriverHandler {
	return &DriverHandler{
		registry:  registry,
		dispatch:  dispatch,
		snapshots: snapshots,
	}
}

// RegisterDriverRequest is the HTTP request body for registering a driver.
type RegisterDriverRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Location string  `json:"location"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// RegisterDriverResponse is the HTTP response for registering a driver.
type RegisterDriverResponse struct {
	DriverID string `json:"driver_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// DriverResponse is one driver in list responses.
type DriverResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Status    string  `json:"status"`
}

// DriverStatusRequest is the HTTP request body for status changes.
type DriverStatusRequest struct {
	DriverID string `json:"driver_id"`
}

// RegisterDriver handles POST /register-driver
func (h *DriverHandler) RegisterDriver(c *gin.Context) {
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, existed, err := h.registry.Register(c.Request.Context(), service.RegisterDriverRequest{
		Name:  req.Name,
		Email: req.Email,
		Location: domain.Location{
			Text: req.Location,
			Lat:  req.Lat,
			Lng:  req.Lng,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	message := "driver registered"
	code := http.StatusCreated
	if existed {
		message = "driver already registered"
		code = http.StatusOK
	}

	respondJSON(c, code, RegisterDriverResponse{
		DriverID: driver.ID,
		Name:     driver.Name,
		Status:   string(driver.Status),
		Message:  message,
	})
}

// GoOnline handles POST /go-online
func (h *DriverHandler) GoOnline(c *gin.Context) {
	h.setOnline(c, true)
}

// GoOffline handles POST /go-offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	h.setOnline(c, false)
}

func (h *DriverHandler) setOnline(c *gin.Context, online bool) {
	var req DriverStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, err := h.registry.SetOnline(c.Request.Context(), req.DriverID, online)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidateDriversSnapshot(c)

	// A driver coming online is fresh capacity; give queued rides a shot.
	if online {
		h.dispatch.DrainPending(c.Request.Context())
	}

	respondJSON(c, http.StatusOK, gin.H{
		"driver_id": driver.ID,
		"status":    string(driver.Status),
	})
}

// Heartbeat handles POST /heartbeat
func (h *DriverHandler) Heartbeat(c *gin.Context) {
	var req DriverStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, err := h.registry.Heartbeat(c.Request.Context(), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"driver_id": driver.ID,
		"status":    string(driver.Status),
	})
}

// AvailableDrivers handles GET /available-drivers
func (h *DriverHandler) AvailableDrivers(c *gin.Context) {
	ctx := c.Request.Context()

	if h.snapshots != nil {
		var cached []DriverResponse
		if hit, err := h.snapshots.Get(ctx, "available-drivers", &cached); err == nil && hit {
			respondJSON(c, http.StatusOK, cached)
			return
		}
	}

	drivers, err := h.registry.AvailableDrivers(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DriverResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, DriverResponse{
			ID:        d.ID,
			Name:      d.Name,
			Location:  d.Location.Text,
			Latitude:  d.Location.Lat,
			Longitude: d.Location.Lng,
			Status:    string(d.Status),
		})
	}

	if h.snapshots != nil {
		_ = h.snapshots.Set(ctx, "available-drivers", response, redis.DriversSnapshotTTL)
	}

	respondJSON(c, http.StatusOK, response)
}

func (h *DriverHandler) invalidateDriversSnapshot(c *gin.Context) {
	if h.snapshots == nil {
		return
	}
	_ = h.snapshots.Invalidate(c.Request.Context(), "available-drivers")
}
