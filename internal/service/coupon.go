package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// CouponService validates platform coupons and atomically accounts for
// their usage.
type CouponService struct {
	couponRepo repository.CouponRepository
}

// NewCouponService creates a new CouponService.
func NewCouponService(couponRepo repository.CouponRepository) *CouponService {
	return &CouponService{couponRepo: couponRepo}
}

// CouponSpec contains the parameters for creating a platform coupon.
type CouponSpec struct {
	Code            string
	DiscountType    string
	DiscountValue   float64
	MaxDiscount     float64
	MinFare         float64
	ValidUntil      time.Time
	TotalUsageLimit int
	PerUserLimit    int
	Zone            string
}

// CouponQuote is the outcome of validating a coupon against a fare.
// Business rejections come back as Valid=false with a Reason; only storage
// faults surface as errors.
type CouponQuote struct {
	Valid    bool
	Discount float64
	CouponID string
	Code     string
	Reason   string
}

// Create creates a new coupon from the spec.
func (s *CouponService) Create(ctx context.Context, spec CouponSpec) (*domain.Coupon, error) {
	if spec.Code == "" || spec.DiscountValue <= 0 {
		return nil, ErrInvalidCouponSpec
	}
	discountType := domain.DiscountType(spec.DiscountType)
	if discountType != domain.DiscountPercentage && discountType != domain.DiscountFlat {
		return nil, ErrInvalidCouponSpec
	}

	perUserLimit := spec.PerUserLimit
	if perUserLimit <= 0 {
		perUserLimit = 1
	}

	now := time.Now()
	coupon := &domain.Coupon{
		ID:              uuid.New().String(),
		Code:            spec.Code,
		DiscountType:    discountType,
		DiscountValue:   spec.DiscountValue,
		MaxDiscount:     spec.MaxDiscount,
		MinFare:         spec.MinFare,
		ValidFrom:       now,
		ValidUntil:      spec.ValidUntil,
		TotalUsageLimit: spec.TotalUsageLimit,
		PerUserLimit:    perUserLimit,
		Zone:            spec.Zone,
		IsActive:        true,
		CreatedAt:       now,
	}

	if err := s.couponRepo.Create(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// ListActive returns all active coupons.
func (s *CouponService) ListActive(ctx context.Context) ([]*domain.Coupon, error) {
	return s.couponRepo.ListActive(ctx)
}

// RiderCoupon is a coupon a specific rider can still use, with their
// remaining allowance.
type RiderCoupon struct {
	Coupon     *domain.Coupon
	UsedByUser int
}

// ListForRider returns active, unexpired coupons the rider can still use.
// When a location is given, zone-restricted coupons outside it are hidden.
func (s *CouponService) ListForRider(ctx context.Context, riderID, location string) ([]RiderCoupon, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}

	coupons, err := s.couponRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var available []RiderCoupon
	for _, coupon := range coupons {
		if coupon.Expired(now) || coupon.Exhausted() {
			continue
		}
		if coupon.Zone != "" && location != "" && !zoneMatches(coupon.Zone, location) {
			continue
		}

		used, err := s.couponRepo.UsageForRider(ctx, coupon.ID, riderID)
		if err != nil {
			return nil, err
		}
		if used >= coupon.PerUserLimit {
			continue
		}

		available = append(available, RiderCoupon{Coupon: coupon, UsedByUser: used})
	}
	return available, nil
}

// Validate checks a coupon against a fare and location without consuming
// usage. The first failing rule short-circuits and is reported. Validation
// is a pure read and may be stale under races; Commit re-checks the limits
// atomically.
func (s *CouponService) Validate(ctx context.Context, code, riderID string, fare float64, location string) (CouponQuote, error) {
	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CouponQuote{Reason: "invalid coupon code"}, nil
		}
		return CouponQuote{}, err
	}

	now := time.Now()
	if coupon.Expired(now) {
		return CouponQuote{Reason: "coupon expired"}, nil
	}
	if fare < coupon.MinFare {
		return CouponQuote{Reason: fmt.Sprintf("minimum fare %.0f required", coupon.MinFare)}, nil
	}
	if coupon.Zone != "" && !zoneMatches(coupon.Zone, location) {
		return CouponQuote{Reason: fmt.Sprintf("coupon valid only in %s", coupon.Zone)}, nil
	}
	if coupon.Exhausted() {
		return CouponQuote{Reason: "coupon usage limit reached"}, nil
	}

	used, err := s.couponRepo.UsageForRider(ctx, coupon.ID, riderID)
	if err != nil {
		return CouponQuote{}, err
	}
	if used >= coupon.PerUserLimit {
		return CouponQuote{Reason: "you've already used this coupon"}, nil
	}

	return CouponQuote{
		Valid:    true,
		Discount: coupon.Discount(fare),
		CouponID: coupon.ID,
		Code:     coupon.Code,
	}, nil
}

// Commit consumes one use of the coupon for the rider. It must only be
// called once validation has passed and a driver has been claimed for the
// ride; the repository makes it atomic and idempotent per (coupon, ride).
func (s *CouponService) Commit(ctx context.Context, code, riderID, rideID string) error {
	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	return s.couponRepo.CommitUsage(ctx, coupon.ID, riderID, rideID)
}

// zoneMatches applies the zone restriction: case-insensitive substring
// match of the zone tag inside the rider's location.
func zoneMatches(zone, location string) bool {
	if location == "" {
		return false
	}
	return strings.Contains(strings.ToLower(location), strings.ToLower(zone))
}
