package domain

import "time"

// DiscountType determines how a coupon's discount value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

// Coupon is a platform-wide ride discount. Coupons are never deleted; they
// are deactivated or exhausted, and the record persists for audit.
type Coupon struct {
	ID              string
	Code            string
	DiscountType    DiscountType
	DiscountValue   float64
	MaxDiscount     float64 // 0 means no cap
	MinFare         float64
	ValidFrom       time.Time
	ValidUntil      time.Time
	TotalUsageLimit int // 0 means unlimited
	PerUserLimit    int
	UsageCount      int
	Zone            string // free-text region tag, empty means everywhere
	IsActive        bool
	CreatedAt       time.Time
}

// Expired reports whether the coupon is past its validity window.
func (c *Coupon) Expired(now time.Time) bool {
	return now.After(c.ValidUntil)
}

// Exhausted reports whether the total usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.TotalUsageLimit > 0 && c.UsageCount >= c.TotalUsageLimit
}

// Discount computes the discount for the given fare, clamped to the fare and
// to MaxDiscount when set. It does not check eligibility.
func (c *Coupon) Discount(fare float64) float64 {
	var discount float64
	switch c.DiscountType {
	case DiscountPercentage:
		discount = fare * c.DiscountValue / 100
	default:
		discount = c.DiscountValue
	}
	if discount > fare {
		discount = fare
	}
	if c.MaxDiscount > 0 && discount > c.MaxDiscount {
		discount = c.MaxDiscount
	}
	return discount
}
