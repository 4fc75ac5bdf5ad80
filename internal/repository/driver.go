package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create adds a new driver.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByEmail retrieves a driver by email.
	GetByEmail(ctx context.Context, email string) (*domain.Driver, error)

	// GetAll retrieves all drivers.
	GetAll(ctx context.Context) ([]*domain.Driver, error)

	// ListAvailable retrieves online drivers with no current ride,
	// ordered by registration time.
	ListAvailable(ctx context.Context) ([]*domain.Driver, error)

	// UpdateStatus updates the status of a driver.
	UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error

	// Claim atomically binds the driver to a ride. It succeeds only when
	// the driver is online with no current ride; otherwise it returns
	// ErrDriverUnavailable. This is the single atomic step that makes
	// assignment exactly-once under concurrent bookings.
	Claim(ctx context.Context, driverID, rideID string) error

	// Release clears the driver's current ride and puts them back online.
	Release(ctx context.Context, driverID string) error

	// Heartbeat records driver liveness at the given time and revives
	// offline drivers.
	Heartbeat(ctx context.Context, driverID string, at time.Time) error

	// MarkStaleOffline demotes online drivers not seen since the cutoff.
	// It returns how many drivers were demoted.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error)
}
