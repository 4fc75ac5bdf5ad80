package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/provisioner"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidMerchantID),
		errors.Is(err, service.ErrInvalidCouponID),
		errors.Is(err, service.ErrInvalidCouponSpec),
		errors.Is(err, service.ErrInvalidLocation):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrRideAlreadyCancelled),
		errors.Is(err, service.ErrRideCannotBeCancelled),
		errors.Is(err, repository.ErrDriverUnavailable),
		errors.Is(err, repository.ErrRideConflict),
		errors.Is(err, repository.ErrCouponLimitReached),
		errors.Is(err, repository.ErrAlreadyRedeemed):
		return http.StatusConflict

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrRideNotAssigned),
		errors.Is(err, service.ErrRiderNotEligible),
		errors.Is(err, service.ErrCouponInactive),
		errors.Is(err, service.ErrNotCouponOwner):
		return http.StatusForbidden

	// Capacity errors
	case errors.Is(err, service.ErrNoDriverAvailable),
		errors.Is(err, provisioner.ErrPoolExhausted):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
