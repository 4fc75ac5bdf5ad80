package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/repository"
)

// IncentiveService manages merchants, their coupons, proximity-based offer
// recommendation at ride completion, and redemption accounting.
type IncentiveService struct {
	merchantRepo repository.MerchantRepository
	rideRepo     repository.RideRepository
}

// NewIncentiveService creates a new IncentiveService.
func NewIncentiveService(merchantRepo repository.MerchantRepository, rideRepo repository.RideRepository) *IncentiveService {
	return &IncentiveService{merchantRepo: merchantRepo, rideRepo: rideRepo}
}

// RegisterMerchantRequest contains the parameters for merchant registration.
type RegisterMerchantRequest struct {
	Name         string
	Email        string
	BusinessType string
	Address      string
	Lat          float64
	Lng          float64
	Phone        string
	Description  string
}

// RegisterMerchant registers a new merchant.
func (s *IncentiveService) RegisterMerchant(ctx context.Context, req RegisterMerchantRequest) (*domain.Merchant, error) {
	if req.Name == "" || req.Email == "" {
		return nil, ErrInvalidMerchantID
	}
	if !geo.ValidLatitude(req.Lat) || !geo.ValidLongitude(req.Lng) {
		return nil, ErrInvalidLocation
	}

	merchant := &domain.Merchant{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		BusinessType: req.BusinessType,
		Address:      req.Address,
		Lat:          req.Lat,
		Lng:          req.Lng,
		Phone:        req.Phone,
		Description:  req.Description,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}

	if err := s.merchantRepo.CreateMerchant(ctx, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

// Login looks a merchant up by email.
func (s *IncentiveService) Login(ctx context.Context, email string) (*domain.Merchant, error) {
	if email == "" {
		return nil, ErrInvalidMerchantID
	}
	return s.merchantRepo.GetMerchantByEmail(ctx, email)
}

// GetMerchant retrieves a merchant by ID.
func (s *IncentiveService) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchantID
	}
	return s.merchantRepo.GetMerchantByID(ctx, merchantID)
}

// MerchantCouponSpec contains the parameters for creating a merchant coupon.
type MerchantCouponSpec struct {
	MerchantID       string
	Code             string
	Title            string
	Description      string
	DiscountType     string
	DiscountValue    float64
	MaxDiscount      float64
	MinPurchase      float64
	RadiusKm         float64
	MinRidesRequired int
	MinFareSpent     float64
	UsageLimit       int
	ValidUntil       time.Time
}

// CreateCoupon creates a merchant coupon.
func (s *IncentiveService) CreateCoupon(ctx context.Context, spec MerchantCouponSpec) (*domain.MerchantCoupon, error) {
	if spec.MerchantID == "" {
		return nil, ErrInvalidMerchantID
	}
	if spec.Code == "" || spec.DiscountValue <= 0 {
		return nil, ErrInvalidCouponSpec
	}
	discountType := domain.DiscountType(spec.DiscountType)
	if discountType != domain.DiscountPercentage && discountType != domain.DiscountFlat {
		return nil, ErrInvalidCouponSpec
	}
	if _, err := s.merchantRepo.GetMerchantByID(ctx, spec.MerchantID); err != nil {
		return nil, err
	}

	radius := spec.RadiusKm
	if radius <= 0 {
		radius = 2.0
	}

	coupon := &domain.MerchantCoupon{
		ID:               uuid.New().String(),
		MerchantID:       spec.MerchantID,
		Code:             spec.Code,
		Title:            spec.Title,
		Description:      spec.Description,
		DiscountType:     discountType,
		DiscountValue:    spec.DiscountValue,
		MaxDiscount:      spec.MaxDiscount,
		MinPurchase:      spec.MinPurchase,
		RadiusKm:         radius,
		MinRidesRequired: spec.MinRidesRequired,
		MinFareSpent:     spec.MinFareSpent,
		UsageLimit:       spec.UsageLimit,
		ValidUntil:       spec.ValidUntil,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}

	if err := s.merchantRepo.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// ListCoupons returns all of a merchant's coupons, active or not.
func (s *IncentiveService) ListCoupons(ctx context.Context, merchantID string) ([]*domain.MerchantCoupon, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchantID
	}
	return s.merchantRepo.ListCouponsByMerchant(ctx, merchantID)
}

// ToggleCoupon flips a coupon's active flag. Only the owning merchant may
// toggle it.
func (s *IncentiveService) ToggleCoupon(ctx context.Context, merchantID, couponID string) (*domain.MerchantCoupon, error) {
	coupon, err := s.ownedCoupon(ctx, merchantID, couponID)
	if err != nil {
		return nil, err
	}

	coupon.IsActive = !coupon.IsActive
	if err := s.merchantRepo.SetCouponActive(ctx, couponID, coupon.IsActive); err != nil {
		return nil, err
	}
	return coupon, nil
}

// DeactivateCoupon retires a coupon. The record stays for audit; only the
// active flag changes.
func (s *IncentiveService) DeactivateCoupon(ctx context.Context, merchantID, couponID string) error {
	if _, err := s.ownedCoupon(ctx, merchantID, couponID); err != nil {
		return err
	}
	return s.merchantRepo.SetCouponActive(ctx, couponID, false)
}

func (s *IncentiveService) ownedCoupon(ctx context.Context, merchantID, couponID string) (*domain.MerchantCoupon, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchantID
	}
	if couponID == "" {
		return nil, ErrInvalidCouponID
	}

	coupon, err := s.merchantRepo.GetCouponByID(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if coupon.MerchantID != merchantID {
		return nil, ErrNotCouponOwner
	}
	return coupon, nil
}

// Offer is a recommended merchant coupon with the merchant's distance from
// the rider's drop-off point.
type Offer struct {
	Coupon     *domain.MerchantCoupon
	Merchant   *domain.Merchant
	DistanceKm float64
}

// RecommendNear returns redeemable offers whose merchant sits within the
// coupon's own radius of the given point and whose history gates the rider
// passes, closest merchant first.
func (s *IncentiveService) RecommendNear(ctx context.Context, riderID string, lat, lng float64) ([]Offer, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if !geo.ValidLatitude(lat) || !geo.ValidLongitude(lng) {
		return nil, ErrInvalidLocation
	}

	offers, err := s.merchantRepo.ListActiveOffers(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.rideRepo.StatsForRider(ctx, riderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var nearby []Offer
	for _, offer := range offers {
		coupon, merchant := offer.Coupon, offer.Merchant
		if !coupon.Redeemable(now) || !merchant.IsActive {
			continue
		}
		if stats.RidesCompleted < coupon.MinRidesRequired {
			continue
		}
		if stats.TotalFareSpent < coupon.MinFareSpent {
			continue
		}

		distance := geo.HaversineKm(lat, lng, merchant.Lat, merchant.Lng)
		if distance > coupon.RadiusKm {
			continue
		}

		nearby = append(nearby, Offer{Coupon: coupon, Merchant: merchant, DistanceKm: distance})
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	return nearby, nil
}

// Redeem consumes one use of a merchant coupon for the rider, tied to one
// of their rides. The repository write is atomic: the usage counter and the
// redemption record move together, and a repeat (coupon, rider, ride) is
// rejected with ErrAlreadyRedeemed.
func (s *IncentiveService) Redeem(ctx context.Context, couponID, riderID, rideID string) (*domain.Redemption, error) {
	if couponID == "" {
		return nil, ErrInvalidCouponID
	}
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	coupon, err := s.merchantRepo.GetCouponByID(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if !coupon.Redeemable(time.Now()) {
		return nil, ErrCouponInactive
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != riderID {
		return nil, ErrRiderNotEligible
	}

	stats, err := s.rideRepo.StatsForRider(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if stats.RidesCompleted < coupon.MinRidesRequired || stats.TotalFareSpent < coupon.MinFareSpent {
		return nil, ErrRiderNotEligible
	}

	redemption := &domain.Redemption{
		ID:         uuid.New().String(),
		CouponID:   couponID,
		RiderID:    riderID,
		RideID:     rideID,
		Amount:     coupon.Discount(coupon.MinPurchase),
		RedeemedAt: time.Now(),
	}

	if err := s.merchantRepo.Redeem(ctx, redemption); err != nil {
		if errors.Is(err, repository.ErrCouponLimitReached) {
			return nil, ErrCouponInactive
		}
		return nil, err
	}
	return redemption, nil
}

// ListRedemptions returns redemptions of the merchant's coupons, newest
// first.
func (s *IncentiveService) ListRedemptions(ctx context.Context, merchantID string) ([]*domain.Redemption, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchantID
	}
	return s.merchantRepo.ListRedemptionsByMerchant(ctx, merchantID)
}

// CouponPerformance summarizes one coupon's redemption volume.
type CouponPerformance struct {
	Coupon      *domain.MerchantCoupon
	Redemptions int
	TotalValue  float64
}

// Analytics is a merchant's coupon program overview.
type Analytics struct {
	TotalCoupons     int
	ActiveCoupons    int
	TotalRedemptions int
	TotalValue       float64
	UniqueCustomers  int
	TopCoupons       []CouponPerformance
	RecentActivity   []*domain.Redemption
}

// MerchantAnalytics aggregates a merchant's coupons and redemptions.
func (s *IncentiveService) MerchantAnalytics(ctx context.Context, merchantID string) (*Analytics, error) {
	if merchantID == "" {
		return nil, ErrInvalidMerchantID
	}
	if _, err := s.merchantRepo.GetMerchantByID(ctx, merchantID); err != nil {
		return nil, err
	}

	coupons, err := s.merchantRepo.ListCouponsByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	redemptions, err := s.merchantRepo.ListRedemptionsByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	analytics := &Analytics{TotalCoupons: len(coupons)}
	byCoupon := make(map[string]*CouponPerformance, len(coupons))
	for _, coupon := range coupons {
		if coupon.IsActive {
			analytics.ActiveCoupons++
		}
		byCoupon[coupon.ID] = &CouponPerformance{Coupon: coupon}
	}

	customers := make(map[string]struct{})
	for _, r := range redemptions {
		analytics.TotalRedemptions++
		analytics.TotalValue += r.Amount
		customers[r.RiderID] = struct{}{}
		if perf, ok := byCoupon[r.CouponID]; ok {
			perf.Redemptions++
			perf.TotalValue += r.Amount
		}
	}
	analytics.UniqueCustomers = len(customers)

	top := make([]CouponPerformance, 0, len(byCoupon))
	for _, perf := range byCoupon {
		if perf.Redemptions > 0 {
			top = append(top, *perf)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Redemptions > top[j].Redemptions
	})
	if len(top) > 5 {
		top = top[:5]
	}
	analytics.TopCoupons = top

	recent := redemptions
	if len(recent) > 10 {
		recent = recent[:10]
	}
	analytics.RecentActivity = recent

	return analytics, nil
}

// OnRideCompleted logs nearby offers for the finished ride when drop-off
// coordinates are known. The rider fetches the actual list through the
// nearby-offers endpoint; this is just the completion hook.
func (s *IncentiveService) OnRideCompleted(ctx context.Context, event CompletionEvent) {
	if event.Destination.Lat == 0 && event.Destination.Lng == 0 {
		return
	}

	offers, err := s.RecommendNear(ctx, event.RiderID, event.Destination.Lat, event.Destination.Lng)
	if err != nil {
		log.Printf("[INCENTIVE] recommend for ride %s: %v", event.RideID, err)
		return
	}
	if len(offers) > 0 {
		log.Printf("[INCENTIVE] ride %s: %d offers near drop-off for rider %s",
			event.RideID, len(offers), event.RiderID)
	}
}
