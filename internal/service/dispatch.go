package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/provisioner"
	"dispatch/internal/repository"
)

// DispatchService owns the ride lifecycle: booking, driver assignment,
// per-ride resource provisioning, completion and cancellation.
type DispatchService struct {
	rideRepo  repository.RideRepository
	registry  *RegistryService
	fare      *FareService
	coupons   *CouponService
	pool      *provisioner.Pool
	adminRepo repository.AdminRepository
	listeners []CompletionListener

	autoComplete bool
	tripDuration time.Duration
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	rideRepo repository.RideRepository,
	registry *RegistryService,
	fare *FareService,
	coupons *CouponService,
	pool *provisioner.Pool,
	adminRepo repository.AdminRepository,
	autoComplete bool,
	tripDuration time.Duration,
) *DispatchService {
	return &DispatchService{
		rideRepo:     rideRepo,
		registry:     registry,
		fare:         fare,
		coupons:      coupons,
		pool:         pool,
		adminRepo:    adminRepo,
		autoComplete: autoComplete,
		tripDuration: tripDuration,
	}
}

// AddCompletionListener registers a listener for ride completion events.
// Not safe to call after the service starts serving requests.
func (s *DispatchService) AddCompletionListener(l CompletionListener) {
	s.listeners = append(s.listeners, l)
}

// BookRideRequest contains the parameters for booking a ride.
type BookRideRequest struct {
	RiderID     string
	Pickup      domain.Location
	Destination domain.Location
	CouponCode  string
	Simulated   bool
}

// BookRideResult reports what booking produced: the persisted ride, and
// whether a driver was assigned immediately or the ride was queued.
type BookRideResult struct {
	Ride     *domain.RideRequest
	Driver   *domain.Driver
	Assigned bool
	Queued   bool
	Coupon   CouponQuote
}

// BookRide prices and persists a ride, then tries to assign a driver right
// away. When no driver can be claimed the ride stays pending in the queue;
// a later go-online or completion drains it. Coupon rule failures do not
// fail the booking, the ride just books at full fare.
func (s *DispatchService) BookRide(ctx context.Context, req BookRideRequest) (*BookRideResult, error) {
	if req.RiderID == "" {
		return nil, ErrInvalidRiderID
	}

	baseFare := s.fare.Quote(req.Pickup, req.Destination)
	quote, err := s.fare.ApplyCoupon(ctx, baseFare, req.CouponCode, req.RiderID, req.Pickup.Text)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ride := &domain.RideRequest{
		ID:          uuid.New().String(),
		RiderID:     req.RiderID,
		Pickup:      req.Pickup,
		Destination: req.Destination,
		Status:      domain.RideStatusPending,
		BaseFare:    quote.BaseFare,
		Discount:    quote.Discount,
		FinalFare:   quote.FinalFare,
		Simulated:   req.Simulated,
		CreatedAt:   now,
	}
	if quote.Coupon.Valid {
		ride.CouponCode = quote.Coupon.Code
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}

	result := &BookRideResult{Ride: ride, Coupon: quote.Coupon}

	driver, err := s.assign(ctx, ride)
	if err != nil {
		if errors.Is(err, ErrNoDriverAvailable) || errors.Is(err, provisioner.ErrPoolExhausted) {
			result.Queued = true
			return result, nil
		}
		return nil, err
	}

	result.Driver = driver
	result.Assigned = true
	return result, nil
}

// assign binds one driver and one resource slot to a pending ride and
// persists the assigned state. Each step is individually atomic and is
// rolled back on later failure, so a ride is either fully assigned or left
// pending with nothing held. The driver claim comes first because it is
// the contended step; the coupon commit comes last because it is the one
// that cannot be undone.
func (s *DispatchService) assign(ctx context.Context, ride *domain.RideRequest) (*domain.Driver, error) {
	if ride.Status != domain.RideStatusPending {
		return nil, ErrRideCannotBeCancelled
	}

	driver, err := s.registry.Claim(ctx, ride.Pickup, ride.ID)
	if err != nil {
		return nil, err
	}

	return s.finishAssignment(ctx, ride, driver)
}

// finishAssignment runs the post-claim half of assignment: slot, coupon
// commit, persist. The caller has already claimed the driver.
func (s *DispatchService) finishAssignment(ctx context.Context, ride *domain.RideRequest, driver *domain.Driver) (*domain.Driver, error) {
	slot, err := s.pool.Allocate(ctx, ride.ID)
	if err != nil {
		_ = s.registry.Release(ctx, driver.ID)
		return nil, err
	}

	if ride.CouponCode != "" {
		if err := s.coupons.Commit(ctx, ride.CouponCode, ride.RiderID, ride.ID); err != nil {
			if errors.Is(err, repository.ErrCouponLimitReached) {
				// Another ride won the last use between validation and now.
				// The booking survives at full fare.
				ride.CouponCode = ""
				ride.Discount = 0
				ride.FinalFare = ride.BaseFare
			} else {
				s.pool.Release(ctx, ride.ID)
				_ = s.registry.Release(ctx, driver.ID)
				return nil, err
			}
		}
	}

	ride.Status = domain.RideStatusAssigned
	ride.DriverID = driver.ID
	ride.Port = slot.Port
	ride.InstanceName = slot.InstanceName

	// Guarded on pending: a ride cancelled between the queue read and here
	// loses the transition and everything held is handed back.
	if err := s.rideRepo.Transition(ctx, ride, domain.RideStatusPending); err != nil {
		s.pool.Release(ctx, ride.ID)
		_ = s.registry.Release(ctx, driver.ID)
		ride.Status = domain.RideStatusPending
		ride.DriverID = ""
		ride.Port = 0
		ride.InstanceName = ""
		return nil, err
	}

	log.Printf("[DISPATCH] ride %s assigned: driver=%s port=%d", ride.ID, driver.ID, slot.Port)

	if s.autoComplete {
		s.scheduleAutoComplete(ride.ID)
	}
	return driver, nil
}

// SimulateAssignment books a ride for the rider and assigns the named
// driver through the same atomic claim as normal dispatch.
func (s *DispatchService) SimulateAssignment(ctx context.Context, riderID, driverID string, pickup, destination domain.Location) (*BookRideResult, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}

	rideID := uuid.New().String()
	driver, err := s.registry.ClaimSpecific(ctx, driverID, rideID)
	if err != nil {
		return nil, err
	}

	baseFare := s.fare.Quote(pickup, destination)
	now := time.Now()
	ride := &domain.RideRequest{
		ID:          rideID,
		RiderID:     riderID,
		Pickup:      pickup,
		Destination: destination,
		Status:      domain.RideStatusPending,
		BaseFare:    baseFare,
		FinalFare:   baseFare,
		Simulated:   true,
		CreatedAt:   now,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		_ = s.registry.Release(ctx, driverID)
		return nil, err
	}

	assigned, err := s.finishAssignment(ctx, ride, driver)
	if err != nil {
		return nil, err
	}
	return &BookRideResult{Ride: ride, Driver: assigned, Assigned: true}, nil
}

// NextAvailableRide returns the oldest pending ride, or nil when the queue
// is empty.
func (s *DispatchService) NextAvailableRide(ctx context.Context) (*domain.RideRequest, error) {
	ride, err := s.rideRepo.OldestPending(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// Queue returns every ride in creation order, any status. Read-only
// snapshot for polling clients.
func (s *DispatchService) Queue(ctx context.Context) ([]*domain.RideRequest, error) {
	return s.rideRepo.GetAll(ctx)
}

// PendingRides returns pending rides oldest-first.
func (s *DispatchService) PendingRides(ctx context.Context) ([]*domain.RideRequest, error) {
	return s.rideRepo.ListPending(ctx)
}

// GetRide retrieves a ride by ID.
func (s *DispatchService) GetRide(ctx context.Context, rideID string) (*domain.RideRequest, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	return s.rideRepo.GetByID(ctx, rideID)
}

// RideByPort retrieves the ride currently bound to the given port.
func (s *DispatchService) RideByPort(ctx context.Context, port int) (*domain.RideRequest, error) {
	return s.rideRepo.GetByPort(ctx, port)
}

// CompleteRide moves an assigned ride to completed, releases its driver and
// resource slot, notifies listeners, and drains the pending queue onto the
// freed driver.
func (s *DispatchService) CompleteRide(ctx context.Context, rideID string) (*domain.RideRequest, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != domain.RideStatusAssigned {
		return nil, ErrRideNotAssigned
	}

	ride.Status = domain.RideStatusCompleted
	ride.CompletedAt = time.Now()
	if err := s.rideRepo.Transition(ctx, ride, domain.RideStatusAssigned); err != nil {
		if errors.Is(err, repository.ErrRideConflict) {
			// A concurrent complete or cancel won; only the winner releases
			// the driver and emits the completion event.
			return nil, ErrRideNotAssigned
		}
		return nil, err
	}

	if ride.DriverID != "" {
		if err := s.registry.Release(ctx, ride.DriverID); err != nil {
			log.Printf("[DISPATCH] release driver %s after ride %s: %v", ride.DriverID, ride.ID, err)
		}
	}
	s.pool.Release(ctx, ride.ID)

	event := CompletionEvent{
		RideID:      ride.ID,
		RiderID:     ride.RiderID,
		DriverID:    ride.DriverID,
		Destination: ride.Destination,
		FinalFare:   ride.FinalFare,
		CompletedAt: ride.CompletedAt,
	}
	for _, l := range s.listeners {
		l.OnRideCompleted(ctx, event)
	}

	s.drainPending(ctx)
	return ride, nil
}

// CancelRide cancels a pending or assigned ride, releasing any held driver
// and slot synchronously so capacity is back before the call returns.
func (s *DispatchService) CancelRide(ctx context.Context, rideID string) (*domain.RideRequest, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	// A pending ride can be assigned between the read and the guarded write
	// when a drain runs concurrently; the status machine only moves forward,
	// so re-reading converges within two retries.
	for attempt := 0; attempt < 3; attempt++ {
		ride, err := s.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, err
		}

		switch ride.Status {
		case domain.RideStatusCancelled:
			return nil, ErrRideAlreadyCancelled
		case domain.RideStatusPending, domain.RideStatusAssigned:
		default:
			return nil, ErrRideCannotBeCancelled
		}

		from := ride.Status
		ride.Status = domain.RideStatusCancelled
		ride.CancelledAt = time.Now()
		if err := s.rideRepo.Transition(ctx, ride, from); err != nil {
			if errors.Is(err, repository.ErrRideConflict) {
				continue
			}
			return nil, err
		}

		if ride.DriverID != "" {
			if err := s.registry.Release(ctx, ride.DriverID); err != nil {
				log.Printf("[DISPATCH] release driver %s after cancel %s: %v", ride.DriverID, ride.ID, err)
			}
		}
		s.pool.Release(ctx, ride.ID)

		s.drainPending(ctx)
		return ride, nil
	}
	return nil, ErrRideCannotBeCancelled
}

// DrainPending tries to assign queued rides to whatever drivers are free.
// Called when capacity comes back: a driver going online, a completion, a
// cancellation.
func (s *DispatchService) DrainPending(ctx context.Context) {
	s.drainPending(ctx)
}

func (s *DispatchService) drainPending(ctx context.Context) {
	pending, err := s.rideRepo.ListPending(ctx)
	if err != nil {
		log.Printf("[DISPATCH] drain pending: %v", err)
		return
	}

	for _, ride := range pending {
		if _, err := s.assign(ctx, ride); err != nil {
			if errors.Is(err, ErrNoDriverAvailable) || errors.Is(err, provisioner.ErrPoolExhausted) {
				return
			}
			if errors.Is(err, repository.ErrRideConflict) {
				// Cancelled while we were assigning; nothing is held.
				continue
			}
			log.Printf("[DISPATCH] drain pending ride %s: %v", ride.ID, err)
		}
	}
}

// scheduleAutoComplete completes the ride after the configured trip
// duration, simulating the trip ending. Already-terminal rides are left
// alone.
func (s *DispatchService) scheduleAutoComplete(rideID string) {
	go func() {
		time.Sleep(s.tripDuration)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.CompleteRide(ctx, rideID); err != nil {
			if errors.Is(err, ErrRideNotAssigned) || errors.Is(err, repository.ErrNotFound) {
				return
			}
			log.Printf("[DISPATCH] auto-complete ride %s: %v", rideID, err)
		}
	}()
}

// CleanupSimulationData purges simulation riders, drivers and rides, and
// releases any resource slots those rides still held.
func (s *DispatchService) CleanupSimulationData(ctx context.Context) (repository.CleanupStats, error) {
	stats, rideIDs, err := s.adminRepo.PurgeSimulationData(ctx)
	if err != nil {
		return repository.CleanupStats{}, err
	}
	for _, rideID := range rideIDs {
		s.pool.Release(ctx, rideID)
	}
	return stats, nil
}
