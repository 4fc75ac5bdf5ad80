package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/pricing"
	"dispatch/internal/provisioner"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

type dispatchFixture struct {
	driverRepo *MockDriverRepository
	rideRepo   *MockRideRepository
	couponRepo *MockCouponRepository
	pool       *provisioner.Pool
	registry   *service.RegistryService
	dispatch   *service.DispatchService
}

func newDispatchFixture(poolSize int) *dispatchFixture {
	driverRepo := NewMockDriverRepository()
	rideRepo := NewMockRideRepository()
	couponRepo := NewMockCouponRepository()
	pool := provisioner.NewPool(7000, poolSize, nil)

	registry := service.NewRegistryService(driverRepo, nil, nil, 0)
	coupons := service.NewCouponService(couponRepo)
	fare := service.NewFareService(pricing.FixedPolicy{BaseFare: 100}, coupons)
	admin := &MockAdminRepository{Users: NewMockUserRepository(), Drivers: driverRepo, Rides: rideRepo}

	dispatch := service.NewDispatchService(rideRepo, registry, fare, coupons, pool, admin, false, 0)

	return &dispatchFixture{
		driverRepo: driverRepo,
		rideRepo:   rideRepo,
		couponRepo: couponRepo,
		pool:       pool,
		registry:   registry,
		dispatch:   dispatch,
	}
}

func onlineDriver(id string, lat, lng float64) *domain.Driver {
	return &domain.Driver{
		ID:       id,
		Name:     id,
		Email:    id + "@example.com",
		Status:   domain.DriverStatusOnline,
		Location: domain.Location{Lat: lat, Lng: lng},
		LastSeen: time.Now(),
	}
}

func TestBookRide_AssignsDriverAndPort(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.97, 77.59))

	result, err := f.dispatch.BookRide(ctx, service.BookRideRequest{
		RiderID:     "rider-1",
		Pickup:      domain.Location{Text: "MG Road", Lat: 12.97, Lng: 77.60},
		Destination: domain.Location{Text: "Airport", Lat: 13.19, Lng: 77.70},
	})
	if err != nil {
		t.Fatalf("book ride: %v", err)
	}

	if !result.Assigned {
		t.Fatal("expected driver to be assigned")
	}
	if result.Ride.Status != domain.RideStatusAssigned {
		t.Errorf("expected status assigned, got %s", result.Ride.Status)
	}
	if result.Ride.DriverID != "driver-1" {
		t.Errorf("expected driver-1, got %s", result.Ride.DriverID)
	}
	if result.Ride.Port != 7000 {
		t.Errorf("expected lowest pool port 7000, got %d", result.Ride.Port)
	}
	if got := f.driverRepo.GetDriver("driver-1").Status; got != domain.DriverStatusOnTrip {
		t.Errorf("expected driver on_trip, got %s", got)
	}
}

func TestBookRide_NoDriversQueuesRide(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)

	result, err := f.dispatch.BookRide(ctx, service.BookRideRequest{
		RiderID: "rider-1",
		Pickup:  domain.Location{Text: "MG Road"},
	})
	if err != nil {
		t.Fatalf("book ride: %v", err)
	}

	if !result.Queued {
		t.Fatal("expected ride to be queued")
	}
	if result.Ride.Status != domain.RideStatusPending {
		t.Errorf("expected status pending, got %s", result.Ride.Status)
	}
	if f.pool.Allocated() != 0 {
		t.Errorf("queued ride must hold no slot, pool has %d", f.pool.Allocated())
	}
}

func TestBookRide_ConcurrentBookingsNeverShareADriver(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(50)

	const drivers = 5
	const bookings = 20
	for i := 0; i < drivers; i++ {
		f.driverRepo.AddDriver(onlineDriver(driverID(i), 12.9+float64(i)*0.01, 77.6))
	}

	var wg sync.WaitGroup
	results := make([]*service.BookRideResult, bookings)
	for i := 0; i < bookings; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.dispatch.BookRide(ctx, service.BookRideRequest{
				RiderID: "rider",
				Pickup:  domain.Location{Lat: 12.9, Lng: 77.6},
			})
			if err != nil {
				t.Errorf("book ride: %v", err)
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	assignedDrivers := make(map[string]string)
	assigned := 0
	for _, result := range results {
		if result == nil || !result.Assigned {
			continue
		}
		assigned++
		if prev, taken := assignedDrivers[result.Ride.DriverID]; taken {
			t.Fatalf("driver %s assigned to both ride %s and ride %s",
				result.Ride.DriverID, prev, result.Ride.ID)
		}
		assignedDrivers[result.Ride.DriverID] = result.Ride.ID
	}

	if assigned != drivers {
		t.Errorf("expected exactly %d assignments, got %d", drivers, assigned)
	}
	if f.pool.Allocated() != drivers {
		t.Errorf("expected %d allocated slots, got %d", drivers, f.pool.Allocated())
	}
}

func driverID(i int) string {
	return "driver-" + string(rune('a'+i))
}

func TestBookRide_PoolExhaustedQueuesAndReleasesDriver(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(1)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))
	f.driverRepo.AddDriver(onlineDriver("driver-2", 12.9, 77.6))

	first, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if err != nil || !first.Assigned {
		t.Fatalf("first booking should assign: %v", err)
	}

	second, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-2"})
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}
	if !second.Queued {
		t.Fatal("expected second ride queued on pool exhaustion")
	}

	// The claimed driver must have been rolled back to claimable.
	free := 0
	for _, id := range []string{"driver-1", "driver-2"} {
		d := f.driverRepo.GetDriver(id)
		if d.Status == domain.DriverStatusOnline && d.CurrentRideID == "" {
			free++
		}
	}
	if free != 1 {
		t.Errorf("expected exactly 1 free driver after rollback, got %d", free)
	}
}

func TestCompleteRide_ReleasesDriverSlotAndDrainsQueue(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	first, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if err != nil || !first.Assigned {
		t.Fatalf("first booking should assign: %v", err)
	}

	queued, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-2"})
	if err != nil || !queued.Queued {
		t.Fatalf("second booking should queue: %v", err)
	}

	completed, err := f.dispatch.CompleteRide(ctx, first.Ride.ID)
	if err != nil {
		t.Fatalf("complete ride: %v", err)
	}
	if completed.Status != domain.RideStatusCompleted {
		t.Errorf("expected completed, got %s", completed.Status)
	}

	// Completion frees the driver, which must pick up the queued ride.
	drained := f.rideRepo.GetRide(queued.Ride.ID)
	if drained.Status != domain.RideStatusAssigned {
		t.Errorf("expected queued ride drained to assigned, got %s", drained.Status)
	}
	if drained.DriverID != "driver-1" {
		t.Errorf("expected freed driver-1 reassigned, got %s", drained.DriverID)
	}
	if f.pool.Allocated() != 1 {
		t.Errorf("expected 1 slot (drained ride only), got %d", f.pool.Allocated())
	}
}

type countingListener struct {
	events int32
}

func (l *countingListener) OnRideCompleted(ctx context.Context, event service.CompletionEvent) {
	atomic.AddInt32(&l.events, 1)
}

func TestCompleteRide_ConcurrentCompletesWinOnce(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	listener := &countingListener{}
	f.dispatch.AddCompletionListener(listener)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	booked, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if err != nil || !booked.Assigned {
		t.Fatalf("booking should assign: %v", err)
	}

	const racers = 8
	start := make(chan struct{})
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.dispatch.CompleteRide(ctx, booked.Ride.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, service.ErrRideNotAssigned) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one completion to win, got %d", wins)
	}
	if got := atomic.LoadInt32(&listener.events); got != 1 {
		t.Errorf("expected exactly one completion event, got %d", got)
	}
	if got := f.driverRepo.GetDriver("driver-1"); got.Status != domain.DriverStatusOnline || got.CurrentRideID != "" {
		t.Errorf("expected driver released exactly once, got status=%s ride=%q", got.Status, got.CurrentRideID)
	}
}

func TestCancelRide_RacingCompleteResolvesToOneWinner(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		f := newDispatchFixture(10)
		f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))
		booked, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
		if err != nil || !booked.Assigned {
			t.Fatalf("booking should assign: %v", err)
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		var completeErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, completeErr = f.dispatch.CompleteRide(ctx, booked.Ride.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, cancelErr = f.dispatch.CancelRide(ctx, booked.Ride.ID)
		}()
		close(start)
		wg.Wait()

		wins := 0
		if completeErr == nil {
			wins++
		} else if !errors.Is(completeErr, service.ErrRideNotAssigned) {
			t.Fatalf("unexpected complete error: %v", completeErr)
		}
		if cancelErr == nil {
			wins++
		} else if !errors.Is(cancelErr, service.ErrRideCannotBeCancelled) {
			t.Fatalf("unexpected cancel error: %v", cancelErr)
		}
		if wins != 1 {
			t.Fatalf("expected exactly one terminal transition, got %d", wins)
		}

		got := f.rideRepo.GetRide(booked.Ride.ID)
		if got.Status != domain.RideStatusCompleted && got.Status != domain.RideStatusCancelled {
			t.Fatalf("expected terminal status, got %s", got.Status)
		}
		if d := f.driverRepo.GetDriver("driver-1"); d.Status != domain.DriverStatusOnline || d.CurrentRideID != "" {
			t.Fatalf("expected driver released exactly once, got status=%s ride=%q", d.Status, d.CurrentRideID)
		}
		if f.pool.Allocated() != 0 {
			t.Fatalf("expected slot released, pool has %d", f.pool.Allocated())
		}
	}
}

func TestCompleteRide_OnlyFromAssigned(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)

	queued, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if err != nil {
		t.Fatalf("book ride: %v", err)
	}

	if _, err := f.dispatch.CompleteRide(ctx, queued.Ride.ID); err != service.ErrRideNotAssigned {
		t.Errorf("expected ErrRideNotAssigned, got %v", err)
	}
}

func TestCancelRide_ReleasesHeldResourcesSynchronously(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	booked, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if err != nil || !booked.Assigned {
		t.Fatalf("booking should assign: %v", err)
	}

	cancelled, err := f.dispatch.CancelRide(ctx, booked.Ride.ID)
	if err != nil {
		t.Fatalf("cancel ride: %v", err)
	}
	if cancelled.Status != domain.RideStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if f.pool.Allocated() != 0 {
		t.Errorf("cancel must release the slot before returning, pool has %d", f.pool.Allocated())
	}
	if got := f.driverRepo.GetDriver("driver-1"); got.CurrentRideID != "" {
		t.Errorf("cancel must release the driver, still bound to %s", got.CurrentRideID)
	}
}

func TestCancelRide_TerminalStatesRejected(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	booked, _ := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if _, err := f.dispatch.CancelRide(ctx, booked.Ride.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.dispatch.CancelRide(ctx, booked.Ride.ID); err != service.ErrRideAlreadyCancelled {
		t.Errorf("expected ErrRideAlreadyCancelled, got %v", err)
	}

	f.driverRepo.AddDriver(onlineDriver("driver-2", 12.9, 77.6))
	done, _ := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-2"})
	if _, err := f.dispatch.CompleteRide(ctx, done.Ride.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.dispatch.CancelRide(ctx, done.Ride.ID); err != service.ErrRideCannotBeCancelled {
		t.Errorf("expected ErrRideCannotBeCancelled, got %v", err)
	}
}

func TestNextAvailableRide_FIFOAndEmpty(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)

	next, err := f.dispatch.NextAvailableRide(ctx)
	if err != nil {
		t.Fatalf("next ride: %v", err)
	}
	if next != nil {
		t.Fatal("expected nil on empty queue")
	}

	first, _ := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	_, _ = f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-2"})

	next, err = f.dispatch.NextAvailableRide(ctx)
	if err != nil {
		t.Fatalf("next ride: %v", err)
	}
	if next == nil || next.ID != first.Ride.ID {
		t.Errorf("expected oldest pending ride %s first", first.Ride.ID)
	}
}

func TestRideByPort_OnlyWhileAssigned(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	booked, err := f.dispatch.BookRide(ctx, service.BookRideRequest{RiderID: "rider-1"})
	if err != nil || !booked.Assigned {
		t.Fatalf("booking should assign: %v", err)
	}

	found, err := f.dispatch.RideByPort(ctx, booked.Ride.Port)
	if err != nil {
		t.Fatalf("ride by port: %v", err)
	}
	if found.ID != booked.Ride.ID {
		t.Errorf("expected ride %s on port %d, got %s", booked.Ride.ID, booked.Ride.Port, found.ID)
	}

	if _, err := f.dispatch.CompleteRide(ctx, booked.Ride.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// The port is free again; a completed ride no longer answers for it.
	if _, err := f.dispatch.RideByPort(ctx, booked.Ride.Port); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound after completion, got %v", err)
	}
}

func TestSimulateAssignment_UsesAtomicClaim(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	result, err := f.dispatch.SimulateAssignment(ctx, "rider-1", "driver-1",
		domain.Location{Text: "A"}, domain.Location{Text: "B"})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.Ride.Status != domain.RideStatusAssigned {
		t.Errorf("expected assigned, got %s", result.Ride.Status)
	}
	if !result.Ride.Simulated {
		t.Error("expected simulated flag set")
	}

	// The same driver cannot be claimed again through either path.
	if _, err := f.dispatch.SimulateAssignment(ctx, "rider-2", "driver-1",
		domain.Location{}, domain.Location{}); err == nil {
		t.Error("expected second claim of the same driver to fail")
	}
}

func TestCleanupSimulationData_ReleasesSlots(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(10)
	f.driverRepo.AddDriver(onlineDriver("driver-1", 12.9, 77.6))

	sim, err := f.dispatch.SimulateAssignment(ctx, "rider-1", "driver-1",
		domain.Location{}, domain.Location{})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if f.pool.Allocated() != 1 {
		t.Fatalf("expected 1 slot held, got %d", f.pool.Allocated())
	}

	stats, err := f.dispatch.CleanupSimulationData(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if stats.RidesDeleted != 1 {
		t.Errorf("expected 1 simulated ride deleted, got %d", stats.RidesDeleted)
	}
	if f.pool.Allocated() != 0 {
		t.Errorf("cleanup must release slots, pool has %d", f.pool.Allocated())
	}
	if f.rideRepo.GetRide(sim.Ride.ID) != nil {
		t.Error("expected simulated ride purged")
	}
}
