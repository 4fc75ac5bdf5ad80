package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDriverUnavailable is returned when an atomic driver claim finds
	// the driver offline or already bound to a ride.
	ErrDriverUnavailable = errors.New("driver unavailable")

	// ErrRideConflict is returned when a guarded ride transition finds the
	// stored status already changed by a concurrent writer.
	ErrRideConflict = errors.New("ride status changed concurrently")

	// ErrCouponLimitReached is returned when an atomic usage increment
	// would exceed the coupon's total or per-rider limit.
	ErrCouponLimitReached = errors.New("coupon usage limit reached")

	// ErrAlreadyRedeemed is returned when a redemption with the same
	// (coupon, rider, ride) key already exists.
	ErrAlreadyRedeemed = errors.New("coupon already redeemed for this ride")
)
