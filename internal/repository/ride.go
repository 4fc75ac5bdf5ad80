package repository

import (
	"context"

	"dispatch/internal/domain"
)

// RiderStats summarizes a rider's completed ride history. Merchant coupon
// eligibility gates on these numbers.
type RiderStats struct {
	RidesCompleted int
	TotalFareSpent float64
}

// RideRepository defines the persistence operations for ride requests.
type RideRepository interface {
	// Create persists a new ride request.
	Create(ctx context.Context, ride *domain.RideRequest) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.RideRequest, error)

	// GetByPort retrieves the ride bound to the given resource port.
	GetByPort(ctx context.Context, port int) (*domain.RideRequest, error)

	// GetAll retrieves all rides in creation order.
	GetAll(ctx context.Context) ([]*domain.RideRequest, error)

	// OldestPending returns the oldest ride still in pending status, or
	// ErrNotFound when the queue is empty.
	OldestPending(ctx context.Context) (*domain.RideRequest, error)

	// ListPending returns pending rides oldest-first.
	ListPending(ctx context.Context) ([]*domain.RideRequest, error)

	// Transition persists the ride only if its stored status still equals
	// from, so concurrent lifecycle transitions resolve to exactly one
	// winner. Losers get ErrRideConflict.
	Transition(ctx context.Context, ride *domain.RideRequest, from domain.RideStatus) error

	// StatsForRider aggregates the rider's completed rides.
	StatsForRider(ctx context.Context, riderID string) (RiderStats, error)
}
