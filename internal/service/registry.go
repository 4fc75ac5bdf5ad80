package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

const (
	driverClaimLockTTL = 10 * time.Second

	// claimSearchRadiusKm bounds the geo index lookup when ordering claim
	// candidates. Drivers outside it stay claimable through the repository
	// fallback, just later in the order.
	claimSearchRadiusKm = 50.0
)

// RegistryService tracks driver identity, liveness and availability, and
// owns the atomic claim that binds a driver to a ride.
type RegistryService struct {
	driverRepo    repository.DriverRepository
	locationStore redis.LocationStoreInterface // optional
	lockStore     redis.LockStoreInterface     // optional
	staleAfter    time.Duration
}

// NewRegistryService creates a new RegistryService. The Redis stores may be
// nil; the registry then runs on the repository alone.
func NewRegistryService(
	driverRepo repository.DriverRepository,
	locationStore redis.LocationStoreInterface,
	lockStore redis.LockStoreInterface,
	staleAfter time.Duration,
) *RegistryService {
	return &RegistryService{
		driverRepo:    driverRepo,
		locationStore: locationStore,
		lockStore:     lockStore,
		staleAfter:    staleAfter,
	}
}

// RegisterDriverRequest contains the parameters for driver registration.
type RegisterDriverRequest struct {
	Name     string
	Email    string
	Location domain.Location
}

// Register registers a driver, or refreshes an existing registration with
// the same email. New and returning drivers both start offline. The second
// return value reports whether the driver already existed.
func (s *RegistryService) Register(ctx context.Context, req RegisterDriverRequest) (*domain.Driver, bool, error) {
	if req.Name == "" || req.Email == "" {
		return nil, false, ErrInvalidDriverID
	}
	if req.Location.Lat != 0 || req.Location.Lng != 0 {
		if !geo.ValidLatitude(req.Location.Lat) || !geo.ValidLongitude(req.Location.Lng) {
			return nil, false, ErrInvalidLocation
		}
	}

	existing, err := s.driverRepo.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		if err := s.driverRepo.UpdateStatus(ctx, existing.ID, domain.DriverStatusOffline); err != nil {
			return nil, false, err
		}
		existing.Status = domain.DriverStatusOffline
		return existing, true, nil
	}

	now := time.Now()
	driver := &domain.Driver{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		Location:  req.Location,
		Status:    domain.DriverStatusOffline,
		LastSeen:  now,
		CreatedAt: now,
	}

	if err := s.driverRepo.Create(ctx, driver); err != nil {
		return nil, false, err
	}

	s.mirrorLocation(ctx, driver)
	return driver, false, nil
}

// SetOnline marks a driver online or offline.
func (s *RegistryService) SetOnline(ctx context.Context, driverID string, online bool) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	status := domain.DriverStatusOffline
	if online {
		status = domain.DriverStatusOnline
	}

	if err := s.driverRepo.UpdateStatus(ctx, driverID, status); err != nil {
		return nil, err
	}
	driver.Status = status

	if online {
		_ = s.driverRepo.Heartbeat(ctx, driverID, time.Now())
		s.mirrorLocation(ctx, driver)
	} else if s.locationStore != nil {
		_ = s.locationStore.RemoveLocation(ctx, driverID)
	}

	return driver, nil
}

// Heartbeat records driver liveness; an offline driver that heartbeats comes
// back online.
func (s *RegistryService) Heartbeat(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	if err := s.driverRepo.Heartbeat(ctx, driverID, time.Now()); err != nil {
		return nil, err
	}
	return s.driverRepo.GetByID(ctx, driverID)
}

// AvailableDrivers demotes stale drivers and returns the online ones. The
// snapshot is read-only beyond the staleness sweep.
func (s *RegistryService) AvailableDrivers(ctx context.Context) ([]*domain.Driver, error) {
	if s.staleAfter > 0 {
		if _, err := s.driverRepo.MarkStaleOffline(ctx, time.Now().Add(-s.staleAfter)); err != nil {
			return nil, err
		}
	}

	drivers, err := s.driverRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	online := make([]*domain.Driver, 0, len(drivers))
	for _, d := range drivers {
		if d.Status == domain.DriverStatusOnline {
			online = append(online, d)
		}
	}
	return online, nil
}

// GetAll returns every registered driver.
func (s *RegistryService) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	return s.driverRepo.GetAll(ctx)
}

// Claim selects one available driver for the ride: closest to the pickup
// first, registration order on ties. The repository claim is the single
// atomic step, so two concurrent bookings can never win the same driver;
// losing a candidate just moves on to the next.
func (s *RegistryService) Claim(ctx context.Context, pickup domain.Location, rideID string) (*domain.Driver, error) {
	candidates, err := s.driverRepo.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoDriverAvailable
	}

	s.orderByProximity(ctx, candidates, pickup)

	for _, candidate := range candidates {
		if !s.tryLock(ctx, candidate.ID) {
			continue
		}

		err := s.driverRepo.Claim(ctx, candidate.ID, rideID)
		if err == nil {
			candidate.Status = domain.DriverStatusOnTrip
			candidate.CurrentRideID = rideID
			return candidate, nil
		}

		s.unlock(ctx, candidate.ID)
		if errors.Is(err, repository.ErrDriverUnavailable) {
			continue
		}
		return nil, err
	}

	return nil, ErrNoDriverAvailable
}

// ClaimSpecific claims one named driver through the same atomic step as
// Claim. Used by the simulation entry point.
func (s *RegistryService) ClaimSpecific(ctx context.Context, driverID, rideID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	if err := s.driverRepo.Claim(ctx, driverID, rideID); err != nil {
		return nil, err
	}

	driver.Status = domain.DriverStatusOnTrip
	driver.CurrentRideID = rideID
	return driver, nil
}

// Release clears the driver's ride binding so they become claimable again.
func (s *RegistryService) Release(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}

	if err := s.driverRepo.Release(ctx, driverID); err != nil {
		return err
	}
	s.unlock(ctx, driverID)
	return nil
}

// orderByProximity sorts claim candidates nearest to the pickup first. The
// geo index carries the freshest positions, so indexed drivers are measured
// from it; drivers missing from the index (or when the store is absent)
// fall back to their registered coordinates. Sort stability keeps the
// registration-order tie-break.
func (s *RegistryService) orderByProximity(ctx context.Context, candidates []*domain.Driver, pickup domain.Location) {
	var indexed map[string]redis.DriverLocation
	if s.locationStore != nil && (pickup.Lat != 0 || pickup.Lng != 0) {
		if near, err := s.locationStore.FindNearbyDrivers(ctx, pickup.Lat, pickup.Lng, claimSearchRadiusKm); err == nil {
			indexed = make(map[string]redis.DriverLocation, len(near))
			for _, loc := range near {
				indexed[loc.DriverID] = loc
			}
		}
	}

	geo.SortByDistance(candidates, func(d *domain.Driver) float64 {
		if loc, ok := indexed[d.ID]; ok {
			return geo.HaversineKm(loc.Lat, loc.Lng, pickup.Lat, pickup.Lng)
		}
		return claimDistance(d, pickup)
	})
}

// claimDistance orders candidates for a claim. Drivers without coordinates
// sort last but stay claimable.
func claimDistance(d *domain.Driver, pickup domain.Location) float64 {
	if d.Location.Lat == 0 && d.Location.Lng == 0 {
		return math.MaxFloat64
	}
	if pickup.Lat == 0 && pickup.Lng == 0 {
		return math.MaxFloat64
	}
	return geo.HaversineKm(d.Location.Lat, d.Location.Lng, pickup.Lat, pickup.Lng)
}

func (s *RegistryService) tryLock(ctx context.Context, driverID string) bool {
	if s.lockStore == nil {
		return true
	}
	locked, err := s.lockStore.AcquireDriverLock(ctx, driverID, driverClaimLockTTL)
	if err != nil {
		// Lock store faults must not stop dispatch; the repository claim
		// still guarantees exactly-once.
		return true
	}
	return locked
}

func (s *RegistryService) unlock(ctx context.Context, driverID string) {
	if s.lockStore == nil {
		return
	}
	_ = s.lockStore.ReleaseDriverLock(ctx, driverID)
}

func (s *RegistryService) mirrorLocation(ctx context.Context, driver *domain.Driver) {
	if s.locationStore == nil {
		return
	}
	if driver.Location.Lat == 0 && driver.Location.Lng == 0 {
		return
	}
	_ = s.locationStore.UpdateLocation(ctx, driver.ID, driver.Location.Lat, driver.Location.Lng)
}
