package repository

import (
	"context"

	"dispatch/internal/domain"
)

// MerchantOffer pairs a merchant coupon with its merchant for proximity
// filtering.
type MerchantOffer struct {
	Coupon   *domain.MerchantCoupon
	Merchant *domain.Merchant
}

// MerchantRepository defines the persistence operations for merchants,
// merchant coupons and redemptions.
type MerchantRepository interface {
	// CreateMerchant persists a new merchant.
	CreateMerchant(ctx context.Context, merchant *domain.Merchant) error

	// GetMerchantByID retrieves a merchant by ID.
	GetMerchantByID(ctx context.Context, id string) (*domain.Merchant, error)

	// GetMerchantByEmail retrieves a merchant by email.
	GetMerchantByEmail(ctx context.Context, email string) (*domain.Merchant, error)

	// CreateCoupon persists a new merchant coupon.
	CreateCoupon(ctx context.Context, coupon *domain.MerchantCoupon) error

	// GetCouponByID retrieves a merchant coupon by ID.
	GetCouponByID(ctx context.Context, id string) (*domain.MerchantCoupon, error)

	// ListCouponsByMerchant retrieves all of a merchant's coupons,
	// including inactive ones.
	ListCouponsByMerchant(ctx context.Context, merchantID string) ([]*domain.MerchantCoupon, error)

	// ListActiveOffers retrieves every active coupon joined with its
	// merchant, for proximity recommendation.
	ListActiveOffers(ctx context.Context) ([]MerchantOffer, error)

	// SetCouponActive flips a coupon's active flag. Deletion is modeled
	// as deactivation; coupon records persist for audit.
	SetCouponActive(ctx context.Context, id string, active bool) error

	// Redeem atomically increments the coupon's usage counter and appends
	// the redemption. The (coupon, rider, ride) key is unique: a repeat
	// returns ErrAlreadyRedeemed, and a counter at its limit returns
	// ErrCouponLimitReached. On conflict nothing is written.
	Redeem(ctx context.Context, redemption *domain.Redemption) error

	// ListRedemptionsByMerchant retrieves redemptions of the merchant's
	// coupons, newest first.
	ListRedemptionsByMerchant(ctx context.Context, merchantID string) ([]*domain.Redemption, error)
}
