package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/pricing"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

func percentageCoupon() *domain.Coupon {
	return &domain.Coupon{
		ID:            "coupon-save20",
		Code:          "SAVE20",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: 20,
		MaxDiscount:   50,
		MinFare:       100,
		ValidUntil:    time.Now().Add(24 * time.Hour),
		PerUserLimit:  1,
		IsActive:      true,
	}
}

func flatCoupon() *domain.Coupon {
	return &domain.Coupon{
		ID:            "coupon-flat50",
		Code:          "FLAT50",
		DiscountType:  domain.DiscountFlat,
		DiscountValue: 50,
		ValidUntil:    time.Now().Add(24 * time.Hour),
		PerUserLimit:  1,
		IsActive:      true,
	}
}

func TestValidate_PercentageClampedToMaxDiscount(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	repo.AddCoupon(percentageCoupon())
	coupons := service.NewCouponService(repo)

	// 20% of 500 is 100, clamped to maxDiscount 50.
	quote, err := coupons.Validate(ctx, "SAVE20", "rider-1", 500, "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !quote.Valid {
		t.Fatalf("expected valid, got reason %q", quote.Reason)
	}
	if quote.Discount != 50 {
		t.Errorf("expected discount 50, got %.2f", quote.Discount)
	}
}

func TestValidate_FlatClampedToFare(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	coupon := flatCoupon()
	coupon.MinFare = 0
	repo.AddCoupon(coupon)
	coupons := service.NewCouponService(repo)

	quote, err := coupons.Validate(ctx, "FLAT50", "rider-1", 30, "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !quote.Valid {
		t.Fatalf("expected valid, got reason %q", quote.Reason)
	}
	if quote.Discount != 30 {
		t.Errorf("flat discount must clamp to fare, expected 30, got %.2f", quote.Discount)
	}
}

func TestValidate_RuleOrderShortCircuits(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	repo.AddCoupon(percentageCoupon())

	expired := percentageCoupon()
	expired.ID = "coupon-expired"
	expired.Code = "EXPIRED"
	expired.ValidUntil = time.Now().Add(-time.Hour)
	expired.MinFare = 1000 // expiry must be reported before min fare
	repo.AddCoupon(expired)

	zoned := percentageCoupon()
	zoned.ID = "coupon-zoned"
	zoned.Code = "ZONED"
	zoned.Zone = "Indiranagar"
	repo.AddCoupon(zoned)

	coupons := service.NewCouponService(repo)

	cases := []struct {
		name   string
		code   string
		fare   float64
		loc    string
		reason string
	}{
		{"unknown code", "NOPE", 500, "", "invalid coupon code"},
		{"expired before min fare", "EXPIRED", 10, "", "coupon expired"},
		{"min fare", "SAVE20", 50, "", "minimum fare 100 required"},
		{"zone mismatch", "ZONED", 500, "Koramangala", "coupon valid only in Indiranagar"},
	}
	for _, tc := range cases {
		quote, err := coupons.Validate(ctx, tc.code, "rider-1", tc.fare, tc.loc)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if quote.Valid {
			t.Errorf("%s: expected invalid", tc.name)
		}
		if quote.Reason != tc.reason {
			t.Errorf("%s: expected reason %q, got %q", tc.name, tc.reason, quote.Reason)
		}
	}
}

func TestValidate_ZoneMatchIsCaseInsensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	zoned := percentageCoupon()
	zoned.Zone = "indiranagar"
	repo.AddCoupon(zoned)
	coupons := service.NewCouponService(repo)

	quote, err := coupons.Validate(ctx, "SAVE20", "rider-1", 500, "100 Feet Road, Indiranagar, Bengaluru")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !quote.Valid {
		t.Errorf("expected zone substring match, got reason %q", quote.Reason)
	}
}

func TestCommitUsage_ConcurrentCommitsRespectTotalLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	coupon := percentageCoupon()
	coupon.TotalUsageLimit = 3
	coupon.PerUserLimit = 10
	repo.AddCoupon(coupon)

	// 10 riders race for 3 remaining uses; exactly 3 may win.
	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CommitUsage(ctx, coupon.ID, riderID(i), rideIDFor(i))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, repository.ErrCouponLimitReached) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 3 {
		t.Errorf("expected exactly 3 winners, got %d", wins)
	}
	if got := repo.GetCoupon(coupon.ID).UsageCount; got != 3 {
		t.Errorf("usage count must never pass the limit, got %d", got)
	}
}

func TestCommitUsage_ConcurrentSameRiderCommitsRespectPerUserLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	coupon := percentageCoupon()
	coupon.PerUserLimit = 1
	coupon.TotalUsageLimit = 0
	repo.AddCoupon(coupon)

	// One rider races itself across different rides; the per-rider limit
	// must hold even with no total limit in play.
	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CommitUsage(ctx, coupon.ID, "rider-1", rideIDFor(i))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, repository.ErrCouponLimitReached) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winner for per-user limit 1, got %d", wins)
	}
	if got := repo.GetCoupon(coupon.ID).UsageCount; got != 1 {
		t.Errorf("expected usage count 1, got %d", got)
	}
}

func TestCommitUsage_PerUserLimitEnforced(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	coupon := percentageCoupon()
	coupon.PerUserLimit = 1
	repo.AddCoupon(coupon)

	if err := repo.CommitUsage(ctx, coupon.ID, "rider-1", "ride-1"); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	err := repo.CommitUsage(ctx, coupon.ID, "rider-1", "ride-2")
	if !errors.Is(err, repository.ErrCouponLimitReached) {
		t.Errorf("expected ErrCouponLimitReached on second use, got %v", err)
	}
}

func TestCommitUsage_IdempotentPerRide(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	coupon := percentageCoupon()
	repo.AddCoupon(coupon)

	if err := repo.CommitUsage(ctx, coupon.ID, "rider-1", "ride-1"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// Retried booking call commits again for the same ride.
	if err := repo.CommitUsage(ctx, coupon.ID, "rider-1", "ride-1"); err != nil {
		t.Fatalf("retried commit must be a no-op, got %v", err)
	}
	if got := repo.GetCoupon(coupon.ID).UsageCount; got != 1 {
		t.Errorf("expected usage count 1 after retry, got %d", got)
	}
}

func TestBookRide_FailedBookingNeverConsumesCoupon(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.couponRepo.AddCoupon(percentageCoupon())

	// No drivers online: booking queues, coupon must stay uncommitted.
	result, err := f.dispatch.BookRide(ctx, service.BookRideRequest{
		RiderID:    "rider-1",
		Pickup:     domain.Location{Text: "MG Road"},
		CouponCode: "SAVE20",
	})
	if err != nil {
		t.Fatalf("book ride: %v", err)
	}
	if !result.Queued {
		t.Fatal("expected queued")
	}
	if got := f.couponRepo.GetCoupon("coupon-save20").UsageCount; got != 0 {
		t.Errorf("queued booking must not consume coupon usage, got %d", got)
	}
}

func TestBookRide_CouponCommittedOnAssignment(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.couponRepo.AddCoupon(percentageCoupon())
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	result, err := f.dispatch.BookRide(ctx, service.BookRideRequest{
		RiderID:    "rider-1",
		Pickup:     domain.Location{Text: "MG Road"},
		CouponCode: "SAVE20",
	})
	if err != nil {
		t.Fatalf("book ride: %v", err)
	}
	if !result.Assigned {
		t.Fatal("expected assigned")
	}

	// Fixed policy fare is 100; 20% = 20, under the 50 cap.
	if result.Ride.Discount != 20 {
		t.Errorf("expected discount 20, got %.2f", result.Ride.Discount)
	}
	if result.Ride.FinalFare != 80 {
		t.Errorf("expected final fare 80, got %.2f", result.Ride.FinalFare)
	}
	if got := f.couponRepo.GetCoupon("coupon-save20").UsageCount; got != 1 {
		t.Errorf("expected coupon committed once, got %d", got)
	}
}

func TestApplyCoupon_InvalidCouponBooksFullFare(t *testing.T) {
	ctx := context.Background()
	repo := NewMockCouponRepository()
	coupons := service.NewCouponService(repo)
	fare := service.NewFareService(pricing.FixedPolicy{BaseFare: 100}, coupons)

	quote, err := fare.ApplyCoupon(ctx, 100, "NOPE", "rider-1", "")
	if err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	if quote.Coupon.Valid {
		t.Error("expected invalid coupon")
	}
	if quote.FinalFare != 100 {
		t.Errorf("invalid coupon must not change the fare, got %.2f", quote.FinalFare)
	}
}

func riderID(i int) string {
	return "rider-" + string(rune('a'+i))
}

func rideIDFor(i int) string {
	return "ride-" + string(rune('a'+i))
}
