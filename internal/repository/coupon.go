package repository

import (
	"context"

	"dispatch/internal/domain"
)

// CouponRepository defines the persistence operations for platform coupons.
type CouponRepository interface {
	// Create persists a new coupon.
	Create(ctx context.Context, coupon *domain.Coupon) error

	// GetByCode retrieves an active coupon by code.
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// ListActive retrieves all active coupons.
	ListActive(ctx context.Context) ([]*domain.Coupon, error)

	// UsageForRider returns how many times the rider has used the coupon.
	UsageForRider(ctx context.Context, couponID, riderID string) (int, error)

	// CommitUsage atomically increments the coupon's total and per-rider
	// usage counters, guarded by both limits. It is idempotent per
	// (coupon, ride): committing again for the same ride is a no-op.
	// Returns ErrCouponLimitReached when either limit would be exceeded.
	CommitUsage(ctx context.Context, couponID, riderID, rideID string) error
}
