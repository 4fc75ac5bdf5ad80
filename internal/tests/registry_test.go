package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

func TestClaim_PrefersClosestDriver(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 0)

	repo.AddDriver(onlineDriver("driver-far", 13.10, 77.60))
	repo.AddDriver(onlineDriver("driver-close", 12.98, 77.60))

	driver, err := registry.Claim(ctx, domain.Location{Lat: 12.97, Lng: 77.60}, "ride-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if driver.ID != "driver-close" {
		t.Errorf("expected closest driver, got %s", driver.ID)
	}
}

func TestClaim_TieBreakByRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 0)

	// Same position; the earlier registration wins.
	repo.AddDriver(onlineDriver("driver-first", 12.97, 77.60))
	repo.AddDriver(onlineDriver("driver-second", 12.97, 77.60))

	driver, err := registry.Claim(ctx, domain.Location{Lat: 12.97, Lng: 77.60}, "ride-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if driver.ID != "driver-first" {
		t.Errorf("expected registration-order tie-break, got %s", driver.ID)
	}
}

func TestClaim_ConcurrentClaimsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 0)
	repo.AddDriver(onlineDriver("driver-1", 12.97, 77.60))

	const racers = 10
	var wg sync.WaitGroup
	winners := make([]bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := registry.Claim(ctx, domain.Location{Lat: 12.97, Lng: 77.60}, rideIDFor(i))
			winners[i] = err == nil
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, won := range winners {
		if won {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one claim to win, got %d", wins)
	}
}

func TestClaim_GeoIndexPositionsOverrideRegisteredCoordinates(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	locations := NewMockLocationStore()
	registry := service.NewRegistryService(repo, locations, nil, 0)

	// Registered coordinates say driver-a is closer.
	repo.AddDriver(onlineDriver("driver-a", 12.98, 77.60))
	repo.AddDriver(onlineDriver("driver-b", 13.10, 77.60))

	// The geo index carries fresher positions: driver-b has moved next to
	// the pickup and driver-a has driven away.
	locations.SetLocations([]redis.DriverLocation{
		{DriverID: "driver-a", Lat: 13.20, Lng: 77.60},
		{DriverID: "driver-b", Lat: 12.971, Lng: 77.60},
	})

	driver, err := registry.Claim(ctx, domain.Location{Lat: 12.97, Lng: 77.60}, "ride-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if driver.ID != "driver-b" {
		t.Errorf("expected geo index positions to decide the order, got %s", driver.ID)
	}
}

func TestClaim_FallsThroughToNextCandidate(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	lockStore := NewMockLockStore()
	registry := service.NewRegistryService(repo, nil, lockStore, 0)

	repo.AddDriver(onlineDriver("driver-close", 12.98, 77.60))
	repo.AddDriver(onlineDriver("driver-far", 13.00, 77.60))

	// Someone already holds the close driver's claim lock.
	if _, err := lockStore.AcquireDriverLock(ctx, "driver-close", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	driver, err := registry.Claim(ctx, domain.Location{Lat: 12.97, Lng: 77.60}, "ride-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if driver.ID != "driver-far" {
		t.Errorf("expected fall-through to next candidate, got %s", driver.ID)
	}
}

func TestRegister_ExistingEmailResetsToOffline(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 0)

	first, existed, err := registry.Register(ctx, service.RegisterDriverRequest{
		Name:  "Asha",
		Email: "asha@example.com",
	})
	if err != nil || existed {
		t.Fatalf("first register: existed=%v err=%v", existed, err)
	}

	if err := repo.UpdateStatus(ctx, first.ID, domain.DriverStatusOnline); err != nil {
		t.Fatalf("set online: %v", err)
	}

	second, existed, err := registry.Register(ctx, service.RegisterDriverRequest{
		Name:  "Asha",
		Email: "asha@example.com",
	})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if !existed {
		t.Error("expected existing registration to be detected")
	}
	if second.ID != first.ID {
		t.Errorf("expected same driver ID, got %s and %s", first.ID, second.ID)
	}
	if second.Status != domain.DriverStatusOffline {
		t.Errorf("re-registration must reset to offline, got %s", second.Status)
	}
}

func TestAvailableDrivers_DemotesStaleDrivers(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 15*time.Second)

	fresh := onlineDriver("driver-fresh", 12.9, 77.6)
	stale := onlineDriver("driver-stale", 12.9, 77.6)
	stale.LastSeen = time.Now().Add(-time.Minute)
	repo.AddDriver(fresh)
	repo.AddDriver(stale)

	drivers, err := registry.AvailableDrivers(ctx)
	if err != nil {
		t.Fatalf("available drivers: %v", err)
	}
	if len(drivers) != 1 || drivers[0].ID != "driver-fresh" {
		t.Fatalf("expected only the fresh driver, got %d", len(drivers))
	}
	if got := repo.GetDriver("driver-stale").Status; got != domain.DriverStatusOffline {
		t.Errorf("expected stale driver demoted offline, got %s", got)
	}
}

func TestHeartbeat_RevivesOfflineDriver(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 15*time.Second)

	d := onlineDriver("driver-1", 12.9, 77.6)
	d.Status = domain.DriverStatusOffline
	repo.AddDriver(d)

	driver, err := registry.Heartbeat(ctx, "driver-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if driver.Status != domain.DriverStatusOnline {
		t.Errorf("expected heartbeat to revive driver, got %s", driver.Status)
	}
}

func TestClaimSpecific_UnavailableDriver(t *testing.T) {
	ctx := context.Background()
	repo := NewMockDriverRepository()
	registry := service.NewRegistryService(repo, nil, nil, 0)

	busy := onlineDriver("driver-busy", 12.9, 77.6)
	busy.Status = domain.DriverStatusOnTrip
	busy.CurrentRideID = "ride-0"
	repo.AddDriver(busy)

	_, err := registry.ClaimSpecific(ctx, "driver-busy", "ride-1")
	if !errors.Is(err, repository.ErrDriverUnavailable) {
		t.Errorf("expected ErrDriverUnavailable, got %v", err)
	}
}
