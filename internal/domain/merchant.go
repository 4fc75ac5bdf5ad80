package domain

import "time"

// Merchant is a business that offers ride-completion coupons.
type Merchant struct {
	ID           string
	Name         string
	Email        string
	BusinessType string // restaurant, cafe, shop, grocery, ...
	Address      string
	Lat          float64
	Lng          float64
	Phone        string
	Description  string
	IsActive     bool
	CreatedAt    time.Time
}

// MerchantCoupon is a merchant-scoped offer recommended near a ride's
// destination. Eligibility is additionally gated by the rider's ride history.
type MerchantCoupon struct {
	ID               string
	MerchantID       string
	Code             string
	Title            string
	Description      string
	DiscountType     DiscountType
	DiscountValue    float64
	MaxDiscount      float64 // 0 means no cap
	MinPurchase      float64
	RadiusKm         float64
	MinRidesRequired int
	MinFareSpent     float64
	UsageLimit       int // 0 means unlimited
	UsageCount       int
	ValidUntil       time.Time
	IsActive         bool
	CreatedAt        time.Time
}

// Redeemable reports whether the coupon itself can still be redeemed,
// ignoring rider-specific gates.
func (c *MerchantCoupon) Redeemable(now time.Time) bool {
	if !c.IsActive || now.After(c.ValidUntil) {
		return false
	}
	return c.UsageLimit == 0 || c.UsageCount < c.UsageLimit
}

// Discount computes the discount for the given purchase amount, clamped to
// the purchase and to MaxDiscount when set.
func (c *MerchantCoupon) Discount(purchase float64) float64 {
	var discount float64
	switch c.DiscountType {
	case DiscountPercentage:
		discount = purchase * c.DiscountValue / 100
	default:
		discount = c.DiscountValue
	}
	if discount > purchase {
		discount = purchase
	}
	if c.MaxDiscount > 0 && discount > c.MaxDiscount {
		discount = c.MaxDiscount
	}
	return discount
}

// Redemption is one append-only record of a merchant coupon redemption.
// Records are never mutated after creation.
type Redemption struct {
	ID         string
	CouponID   string
	RiderID    string
	RideID     string
	Amount     float64
	RedeemedAt time.Time
}
