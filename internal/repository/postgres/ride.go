package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

const rideColumns = `id, rider_id, pickup_text, pickup_lat, pickup_lng, dest_text, dest_lat, dest_lng, status, driver_id, port, instance_name, base_fare, discount, final_fare, coupon_code, simulated, created_at, completed_at, cancelled_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride request.
func (r *RideRepository) Create(ctx context.Context, ride *domain.RideRequest) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		ride.Pickup.Text,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Destination.Text,
		ride.Destination.Lat,
		ride.Destination.Lng,
		ride.Status,
		nullString(ride.DriverID),
		nullPort(ride.Port),
		nullString(ride.InstanceName),
		ride.BaseFare,
		ride.Discount,
		ride.FinalFare,
		nullString(ride.CouponCode),
		ride.Simulated,
		ride.CreatedAt,
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
	)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return scanRide(r.q.QueryRowContext(ctx, query, id))
}

// GetByPort retrieves the ride currently bound to the given resource port.
// Finished rides keep their port column for audit, so the lookup filters on
// status; the pool guarantees at most one assigned ride per port.
func (r *RideRepository) GetByPort(ctx context.Context, port int) (*domain.RideRequest, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE port = $1 AND status = 'assigned'`
	return scanRide(r.q.QueryRowContext(ctx, query, port))
}

// GetAll retrieves all rides in creation order.
func (r *RideRepository) GetAll(ctx context.Context) ([]*domain.RideRequest, error) {
	query := `SELECT ` + rideColumns + ` FROM rides ORDER BY created_at`
	return r.list(ctx, query)
}

// OldestPending returns the oldest pending ride.
func (r *RideRepository) OldestPending(ctx context.Context) (*domain.RideRequest, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = 'pending' ORDER BY created_at LIMIT 1`
	return scanRide(r.q.QueryRowContext(ctx, query))
}

// ListPending returns pending rides oldest-first.
func (r *RideRepository) ListPending(ctx context.Context) ([]*domain.RideRequest, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = 'pending' ORDER BY created_at`
	return r.list(ctx, query)
}

// Transition persists the ride guarded by its expected current status.
// Rows affected decides the winner: a concurrent transition that got there
// first leaves zero rows and the caller gets ErrRideConflict.
func (r *RideRepository) Transition(ctx context.Context, ride *domain.RideRequest, from domain.RideStatus) error {
	query := `
		UPDATE rides
		SET status = $1, driver_id = $2, port = $3, instance_name = $4,
		    base_fare = $5, discount = $6, final_fare = $7, coupon_code = $8,
		    completed_at = $9, cancelled_at = $10
		WHERE id = $11 AND status = $12
	`

	result, err := r.q.ExecContext(ctx, query,
		ride.Status,
		nullString(ride.DriverID),
		nullPort(ride.Port),
		nullString(ride.InstanceName),
		ride.BaseFare,
		ride.Discount,
		ride.FinalFare,
		nullString(ride.CouponCode),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		ride.ID,
		from,
	)
	if err != nil {
		return err
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		return repository.ErrRideConflict
	}
	return nil
}

// StatsForRider aggregates the rider's completed rides.
func (r *RideRepository) StatsForRider(ctx context.Context, riderID string) (repository.RiderStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(final_fare), 0)
		FROM rides WHERE rider_id = $1 AND status = 'completed'
	`

	var stats repository.RiderStats
	err := r.q.QueryRowContext(ctx, query, riderID).Scan(&stats.RidesCompleted, &stats.TotalFareSpent)
	return stats, err
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.RideRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.RideRequest
	for rows.Next() {
		ride, err := scanRideRows(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

type rideScanner interface {
	Scan(dest ...any) error
}

func scanRide(row *sql.Row) (*domain.RideRequest, error) {
	ride, err := scanRideFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

func scanRideRows(rows *sql.Rows) (*domain.RideRequest, error) {
	return scanRideFrom(rows)
}

func scanRideFrom(s rideScanner) (*domain.RideRequest, error) {
	var ride domain.RideRequest
	var driverID, instanceName, couponCode sql.NullString
	var port sql.NullInt64
	var completedAt, cancelledAt sql.NullTime

	if err := s.Scan(
		&ride.ID,
		&ride.RiderID,
		&ride.Pickup.Text,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Destination.Text,
		&ride.Destination.Lat,
		&ride.Destination.Lng,
		&ride.Status,
		&driverID,
		&port,
		&instanceName,
		&ride.BaseFare,
		&ride.Discount,
		&ride.FinalFare,
		&couponCode,
		&ride.Simulated,
		&ride.CreatedAt,
		&completedAt,
		&cancelledAt,
	); err != nil {
		return nil, err
	}

	if driverID.Valid {
		ride.DriverID = driverID.String
	}
	if port.Valid {
		ride.Port = int(port.Int64)
	}
	if instanceName.Valid {
		ride.InstanceName = instanceName.String
	}
	if couponCode.Valid {
		ride.CouponCode = couponCode.String
	}
	if completedAt.Valid {
		ride.CompletedAt = completedAt.Time
	}
	if cancelledAt.Valid {
		ride.CancelledAt = cancelledAt.Time
	}
	return &ride, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullPort(port int) sql.NullInt64 {
	if port == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(port), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
