package service

import "errors"

var (
	// ErrNoDriverAvailable is returned when no driver can be claimed.
	ErrNoDriverAvailable = errors.New("no drivers available")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidMerchantID is returned when merchant ID is empty.
	ErrInvalidMerchantID = errors.New("invalid merchant id")

	// ErrInvalidCouponID is returned when coupon ID is empty.
	ErrInvalidCouponID = errors.New("invalid coupon id")

	// ErrInvalidCouponSpec is returned when a coupon definition is
	// malformed (missing code, non-positive value, bad type).
	ErrInvalidCouponSpec = errors.New("invalid coupon specification")

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrRideNotAssigned is returned when completing a ride that is not
	// in assigned status.
	ErrRideNotAssigned = errors.New("ride not assigned")

	// ErrRideAlreadyCancelled is returned when cancelling an already
	// cancelled ride.
	ErrRideAlreadyCancelled = errors.New("ride already cancelled")

	// ErrRideCannotBeCancelled is returned when a ride is in a state that
	// cannot be cancelled.
	ErrRideCannotBeCancelled = errors.New("ride cannot be cancelled in current state")

	// ErrRiderNotEligible is returned when a rider's history does not
	// meet a merchant coupon's gates.
	ErrRiderNotEligible = errors.New("rider not eligible for this coupon")

	// ErrCouponInactive is returned when redeeming an inactive or
	// expired merchant coupon.
	ErrCouponInactive = errors.New("coupon inactive or expired")

	// ErrNotCouponOwner is returned when a merchant manipulates a coupon
	// belonging to another merchant.
	ErrNotCouponOwner = errors.New("coupon belongs to another merchant")
)
