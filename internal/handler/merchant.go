package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// MerchantHandler handles HTTP requests for merchants and their coupons.
type MerchantHandler struct {
	incentives *service.IncentiveService
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(incentives *service.IncentiveService) *MerchantHandler {
	return &MerchantHandler{incentives: incentives}
}

// RegisterMerchantRequest is the HTTP request body for merchant registration.
type RegisterMerchantRequest struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	BusinessType string  `json:"business_type"`
	Address      string  `json:"address"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Phone        string  `json:"phone,omitempty"`
	Description  string  `json:"description,omitempty"`
}

// MerchantResponse is one merchant in HTTP responses.
type MerchantResponse struct {
	MerchantID   string  `json:"merchant_id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	BusinessType string  `json:"business_type"`
	Address      string  `json:"address"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

// MerchantLoginRequest is the HTTP request body for merchant login.
type MerchantLoginRequest struct {
	Email string `json:"email"`
}

// CreateMerchantCouponRequest is the HTTP request body for creating a
// merchant coupon.
type CreateMerchantCouponRequest struct {
	MerchantID       string  `json:"merchant_id"`
	Code             string  `json:"code"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	DiscountType     string  `json:"discount_type"`
	DiscountValue    float64 `json:"discount_value"`
	MaxDiscount      float64 `json:"max_discount,omitempty"`
	MinPurchase      float64 `json:"min_purchase,omitempty"`
	RadiusKm         float64 `json:"radius_km,omitempty"`
	MinRidesRequired int     `json:"min_rides_required,omitempty"`
	MinFareSpent     float64 `json:"min_fare_spent,omitempty"`
	UsageLimit       int     `json:"usage_limit,omitempty"`
	ValidUntil       string  `json:"valid_until"`
}

// MerchantCouponResponse is one merchant coupon in HTTP responses.
type MerchantCouponResponse struct {
	ID               string  `json:"id"`
	MerchantID       string  `json:"merchant_id"`
	Code             string  `json:"code"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	DiscountType     string  `json:"discount_type"`
	DiscountValue    float64 `json:"discount_value"`
	MaxDiscount      float64 `json:"max_discount,omitempty"`
	MinPurchase      float64 `json:"min_purchase"`
	RadiusKm         float64 `json:"radius_km"`
	MinRidesRequired int     `json:"min_rides_required"`
	MinFareSpent     float64 `json:"min_fare_spent"`
	UsageLimit       int     `json:"usage_limit,omitempty"`
	UsageCount       int     `json:"usage_count"`
	ValidUntil       string  `json:"valid_until"`
	IsActive         bool    `json:"is_active"`
}

// OfferResponse is one recommended offer in HTTP responses.
type OfferResponse struct {
	MerchantCouponResponse
	MerchantName string  `json:"merchant_name"`
	BusinessType string  `json:"business_type"`
	Address      string  `json:"address"`
	DistanceKm   float64 `json:"distance_km"`
}

// RedeemRequest is the HTTP request body for redeeming a merchant coupon.
type RedeemRequest struct {
	UserID   string `json:"user_id"`
	CouponID string `json:"coupon_id"`
	RideID   string `json:"ride_id"`
}

// RedemptionResponse is one redemption record in HTTP responses.
type RedemptionResponse struct {
	ID         string  `json:"id"`
	CouponID   string  `json:"coupon_id"`
	UserID     string  `json:"user_id"`
	RideID     string  `json:"ride_id"`
	Amount     float64 `json:"amount"`
	RedeemedAt string  `json:"redeemed_at"`
}

func merchantResponse(m *domain.Merchant) MerchantResponse {
	return MerchantResponse{
		MerchantID:   m.ID,
		Name:         m.Name,
		Email:        m.Email,
		BusinessType: m.BusinessType,
		Address:      m.Address,
		Lat:          m.Lat,
		Lng:          m.Lng,
	}
}

func merchantCouponResponse(c *domain.MerchantCoupon) MerchantCouponResponse {
	return MerchantCouponResponse{
		ID:               c.ID,
		MerchantID:       c.MerchantID,
		Code:             c.Code,
		Title:            c.Title,
		Description:      c.Description,
		DiscountType:     string(c.DiscountType),
		DiscountValue:    c.DiscountValue,
		MaxDiscount:      c.MaxDiscount,
		MinPurchase:      c.MinPurchase,
		RadiusKm:         c.RadiusKm,
		MinRidesRequired: c.MinRidesRequired,
		MinFareSpent:     c.MinFareSpent,
		UsageLimit:       c.UsageLimit,
		UsageCount:       c.UsageCount,
		ValidUntil:       c.ValidUntil.Format(time.RFC3339),
		IsActive:         c.IsActive,
	}
}

func redemptionResponse(r *domain.Redemption) RedemptionResponse {
	return RedemptionResponse{
		ID:         r.ID,
		CouponID:   r.CouponID,
		UserID:     r.RiderID,
		RideID:     r.RideID,
		Amount:     r.Amount,
		RedeemedAt: r.RedeemedAt.Format(time.RFC3339),
	}
}

// RegisterMerchant handles POST /register-merchant
func (h *MerchantHandler) RegisterMerchant(c *gin.Context) {
	var req RegisterMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	merchant, err := h.incentives.RegisterMerchant(c.Request.Context(), service.RegisterMerchantRequest{
		Name:         req.Name,
		Email:        req.Email,
		BusinessType: req.BusinessType,
		Address:      req.Address,
		Lat:          req.Lat,
		Lng:          req.Lng,
		Phone:        req.Phone,
		Description:  req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, merchantResponse(merchant))
}

// Login handles POST /merchant-login
func (h *MerchantHandler) Login(c *gin.Context) {
	var req MerchantLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	merchant, err := h.incentives.Login(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, merchantResponse(merchant))
}

// ListCoupons handles GET /merchant-coupons/:id
func (h *MerchantHandler) ListCoupons(c *gin.Context) {
	coupons, err := h.incentives.ListCoupons(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]MerchantCouponResponse, 0, len(coupons))
	for _, coupon := range coupons {
		response = append(response, merchantCouponResponse(coupon))
	}
	respondJSON(c, http.StatusOK, response)
}

// CreateCoupon handles POST /create-merchant-coupon
func (h *MerchantHandler) CreateCoupon(c *gin.Context) {
	var req CreateMerchantCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	validUntil, err := time.Parse(time.RFC3339, req.ValidUntil)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid valid_until, want RFC3339"})
		return
	}

	coupon, err := h.incentives.CreateCoupon(c.Request.Context(), service.MerchantCouponSpec{
		MerchantID:       req.MerchantID,
		Code:             req.Code,
		Title:            req.Title,
		Description:      req.Description,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		MaxDiscount:      req.MaxDiscount,
		MinPurchase:      req.MinPurchase,
		RadiusKm:         req.RadiusKm,
		MinRidesRequired: req.MinRidesRequired,
		MinFareSpent:     req.MinFareSpent,
		UsageLimit:       req.UsageLimit,
		ValidUntil:       validUntil,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, merchantCouponResponse(coupon))
}

// ToggleCoupon handles POST /toggle-merchant-coupon/:id
func (h *MerchantHandler) ToggleCoupon(c *gin.Context) {
	merchantID := c.Query("merchant_id")

	coupon, err := h.incentives.ToggleCoupon(c.Request.Context(), merchantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, merchantCouponResponse(coupon))
}

// DeleteCoupon handles DELETE /delete-merchant-coupon/:id. Coupon records
// persist for audit; delete deactivates.
func (h *MerchantHandler) DeleteCoupon(c *gin.Context) {
	merchantID := c.Query("merchant_id")

	if err := h.incentives.DeactivateCoupon(c.Request.Context(), merchantID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"message": "coupon deactivated"})
}

// Analytics handles GET /merchant-analytics/:id
func (h *MerchantHandler) Analytics(c *gin.Context) {
	analytics, err := h.incentives.MerchantAnalytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	topCoupons := make([]gin.H, 0, len(analytics.TopCoupons))
	for _, perf := range analytics.TopCoupons {
		topCoupons = append(topCoupons, gin.H{
			"coupon":      merchantCouponResponse(perf.Coupon),
			"redemptions": perf.Redemptions,
			"total_value": perf.TotalValue,
		})
	}

	recent := make([]RedemptionResponse, 0, len(analytics.RecentActivity))
	for _, r := range analytics.RecentActivity {
		recent = append(recent, redemptionResponse(r))
	}

	respondJSON(c, http.StatusOK, gin.H{
		"total_coupons":     analytics.TotalCoupons,
		"active_coupons":    analytics.ActiveCoupons,
		"total_redemptions": analytics.TotalRedemptions,
		"total_value":       analytics.TotalValue,
		"unique_customers":  analytics.UniqueCustomers,
		"top_coupons":       topCoupons,
		"recent_activity":   recent,
	})
}

// Redemptions handles GET /merchant-redemptions/:id
func (h *MerchantHandler) Redemptions(c *gin.Context) {
	redemptions, err := h.incentives.ListRedemptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RedemptionResponse, 0, len(redemptions))
	for _, r := range redemptions {
		response = append(response, redemptionResponse(r))
	}
	respondJSON(c, http.StatusOK, response)
}

// NearbyCoupons handles GET /nearby-merchant-coupons
func (h *MerchantHandler) NearbyCoupons(c *gin.Context) {
	var query struct {
		UserID  string  `form:"user_id"`
		DestLat float64 `form:"dest_lat"`
		DestLng float64 `form:"dest_lng"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters"})
		return
	}

	offers, err := h.incentives.RecommendNear(c.Request.Context(), query.UserID, query.DestLat, query.DestLng)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]OfferResponse, 0, len(offers))
	for _, offer := range offers {
		response = append(response, OfferResponse{
			MerchantCouponResponse: merchantCouponResponse(offer.Coupon),
			MerchantName:           offer.Merchant.Name,
			BusinessType:           offer.Merchant.BusinessType,
			Address:                offer.Merchant.Address,
			DistanceKm:             offer.DistanceKm,
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// Redeem handles POST /redeem-merchant-coupon
func (h *MerchantHandler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	redemption, err := h.incentives.Redeem(c.Request.Context(), req.CouponID, req.UserID, req.RideID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, redemptionResponse(redemption))
}
