package service

import (
	"context"

	"dispatch/internal/domain"
	"dispatch/internal/pricing"
)

// FareService computes base fares and applies validated coupon discounts.
type FareService struct {
	policy  pricing.Policy
	coupons *CouponService
}

// NewFareService creates a new FareService.
func NewFareService(policy pricing.Policy, coupons *CouponService) *FareService {
	return &FareService{policy: policy, coupons: coupons}
}

// FareQuote is a priced ride with an optional applied discount.
type FareQuote struct {
	BaseFare  float64
	Discount  float64
	FinalFare float64
	Coupon    CouponQuote
}

// Quote computes the base fare for a route via the configured policy.
func (s *FareService) Quote(pickup, destination domain.Location) float64 {
	return s.policy.Quote(pickup, destination)
}

// ApplyCoupon prices the ride with the coupon applied. No code means no
// discount. The final fare never goes negative.
func (s *FareService) ApplyCoupon(ctx context.Context, baseFare float64, code, riderID, location string) (FareQuote, error) {
	quote := FareQuote{BaseFare: baseFare, FinalFare: baseFare}
	if code == "" {
		return quote, nil
	}

	couponQuote, err := s.coupons.Validate(ctx, code, riderID, baseFare, location)
	if err != nil {
		return quote, err
	}

	quote.Coupon = couponQuote
	if couponQuote.Valid {
		quote.Discount = couponQuote.Discount
		quote.FinalFare = baseFare - couponQuote.Discount
		if quote.FinalFare < 0 {
			quote.FinalFare = 0
		}
	}
	return quote, nil
}
