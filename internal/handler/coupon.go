package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// CouponHandler handles HTTP requests for platform coupons.
type CouponHandler struct {
	coupons *service.CouponService
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(coupons *service.CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// CreateCouponRequest is the HTTP request body for creating a coupon.
type CreateCouponRequest struct {
	Code            string  `json:"code"`
	DiscountType    string  `json:"discount_type"`
	DiscountValue   float64 `json:"discount_value"`
	MaxDiscount     float64 `json:"max_discount,omitempty"`
	MinFare         float64 `json:"min_fare,omitempty"`
	ValidUntil      string  `json:"valid_until"`
	TotalUsageLimit int     `json:"total_usage_limit,omitempty"`
	PerUserLimit    int     `json:"per_user_limit,omitempty"`
	Zone            string  `json:"zone,omitempty"`
}

// CouponResponse is one platform coupon in HTTP responses.
type CouponResponse struct {
	ID              string  `json:"id"`
	Code            string  `json:"code"`
	DiscountType    string  `json:"discount_type"`
	DiscountValue   float64 `json:"discount_value"`
	MaxDiscount     float64 `json:"max_discount,omitempty"`
	MinFare         float64 `json:"min_fare"`
	ValidUntil      string  `json:"valid_until"`
	TotalUsageLimit int     `json:"total_usage_limit,omitempty"`
	PerUserLimit    int     `json:"per_user_limit"`
	UsageCount      int     `json:"usage_count"`
	Zone            string  `json:"zone,omitempty"`
	IsActive        bool    `json:"is_active"`
}

// ValidateCouponRequest is the HTTP request body for validating a coupon.
type ValidateCouponRequest struct {
	UserID   string  `json:"user_id"`
	Code     string  `json:"code"`
	Fare     float64 `json:"fare"`
	Location string  `json:"location,omitempty"`
}

// ValidateCouponResponse is the HTTP response for validating a coupon.
type ValidateCouponResponse struct {
	Valid    bool    `json:"valid"`
	Discount float64 `json:"discount"`
	Message  string  `json:"message,omitempty"`
}

func couponResponse(coupon *domain.Coupon) CouponResponse {
	return CouponResponse{
		ID:              coupon.ID,
		Code:            coupon.Code,
		DiscountType:    string(coupon.DiscountType),
		DiscountValue:   coupon.DiscountValue,
		MaxDiscount:     coupon.MaxDiscount,
		MinFare:         coupon.MinFare,
		ValidUntil:      coupon.ValidUntil.Format(time.RFC3339),
		TotalUsageLimit: coupon.TotalUsageLimit,
		PerUserLimit:    coupon.PerUserLimit,
		UsageCount:      coupon.UsageCount,
		Zone:            coupon.Zone,
		IsActive:        coupon.IsActive,
	}
}

// CreateCoupon handles POST /create-coupon
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	validUntil, err := time.Parse(time.RFC3339, req.ValidUntil)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid valid_until, want RFC3339"})
		return
	}

	coupon, err := h.coupons.Create(c.Request.Context(), service.CouponSpec{
		Code:            req.Code,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MaxDiscount:     req.MaxDiscount,
		MinFare:         req.MinFare,
		ValidUntil:      validUntil,
		TotalUsageLimit: req.TotalUsageLimit,
		PerUserLimit:    req.PerUserLimit,
		Zone:            req.Zone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, couponResponse(coupon))
}

// ListCoupons handles GET /coupons
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	coupons, err := h.coupons.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]CouponResponse, 0, len(coupons))
	for _, coupon := range coupons {
		response = append(response, couponResponse(coupon))
	}
	respondJSON(c, http.StatusOK, response)
}

// UserCoupons handles GET /user-coupons/:user_id
func (h *CouponHandler) UserCoupons(c *gin.Context) {
	userID := c.Param("user_id")
	location := c.Query("location")

	available, err := h.coupons.ListForRider(c.Request.Context(), userID, location)
	if err != nil {
		respondError(c, err)
		return
	}

	type userCoupon struct {
		CouponResponse
		UsedByUser int `json:"used_by_user"`
	}

	response := make([]userCoupon, 0, len(available))
	for _, rc := range available {
		response = append(response, userCoupon{
			CouponResponse: couponResponse(rc.Coupon),
			UsedByUser:     rc.UsedByUser,
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// ValidateCoupon handles POST /validate-coupon
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	quote, err := h.coupons.Validate(c.Request.Context(), req.Code, req.UserID, req.Fare, req.Location)
	if err != nil {
		respondError(c, err)
		return
	}

	message := quote.Reason
	if quote.Valid {
		message = "coupon applied"
	}

	respondJSON(c, http.StatusOK, ValidateCouponResponse{
		Valid:    quote.Valid,
		Discount: quote.Discount,
		Message:  message,
	})
}
