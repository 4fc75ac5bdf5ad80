package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

const driverColumns = `id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(location, ''), latitude, longitude, status, current_ride_id, last_seen, created_at`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `
		INSERT INTO drivers (id, name, email, location, latitude, longitude, status, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		driver.ID,
		driver.Name,
		driver.Email,
		driver.Location.Text,
		driver.Location.Lat,
		driver.Location.Lng,
		driver.Status,
		driver.LastSeen,
		driver.CreatedAt,
	)
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	return scanDriver(r.q.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a driver by email.
func (r *DriverRepository) GetByEmail(ctx context.Context, email string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE email = $1`
	return scanDriver(r.q.QueryRowContext(ctx, query, email))
}

// GetAll retrieves all drivers.
func (r *DriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers ORDER BY created_at`
	return r.list(ctx, query)
}

// ListAvailable retrieves online drivers with no current ride, ordered by
// registration time.
func (r *DriverRepository) ListAvailable(ctx context.Context) ([]*domain.Driver, error) {
	query := `
		SELECT ` + driverColumns + ` FROM drivers
		WHERE status = 'online' AND current_ride_id IS NULL
		ORDER BY created_at
	`
	return r.list(ctx, query)
}

// UpdateStatus updates the status of a driver.
func (r *DriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	query := `UPDATE drivers SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Claim atomically binds the driver to a ride. The condition and the write
// are one statement so two concurrent bookings can never claim the same
// driver: exactly one sees a row updated.
func (r *DriverRepository) Claim(ctx context.Context, driverID, rideID string) error {
	query := `
		UPDATE drivers
		SET status = 'on_trip', current_ride_id = $2
		WHERE id = $1 AND status = 'online' AND current_ride_id IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, driverID, rideID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrDriverUnavailable
	}
	return nil
}

// Release clears the driver's current ride and puts them back online.
// Drivers that went offline mid-trip stay offline.
func (r *DriverRepository) Release(ctx context.Context, driverID string) error {
	query := `
		UPDATE drivers
		SET current_ride_id = NULL,
		    status = CASE WHEN status = 'on_trip' THEN 'online' ELSE status END
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, driverID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Heartbeat records driver liveness and revives offline drivers.
func (r *DriverRepository) Heartbeat(ctx context.Context, driverID string, at time.Time) error {
	query := `
		UPDATE drivers
		SET last_seen = $2,
		    status = CASE WHEN status = 'offline' THEN 'online' ELSE status END
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, driverID, at)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkStaleOffline demotes online drivers not seen since the cutoff.
func (r *DriverRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	query := `UPDATE drivers SET status = 'offline' WHERE status = 'online' AND last_seen < $1`

	result, err := r.q.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	rowsAffected, err := result.RowsAffected()
	return int(rowsAffected), err
}

func (r *DriverRepository) list(ctx context.Context, query string) ([]*domain.Driver, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriverRows(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

func scanDriver(row *sql.Row) (*domain.Driver, error) {
	var driver domain.Driver
	var lat, lng sql.NullFloat64
	var currentRideID sql.NullString

	err := row.Scan(
		&driver.ID,
		&driver.Name,
		&driver.Email,
		&driver.Location.Text,
		&lat,
		&lng,
		&driver.Status,
		&currentRideID,
		&driver.LastSeen,
		&driver.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	applyDriverNulls(&driver, lat, lng, currentRideID)
	return &driver, nil
}

func scanDriverRows(rows *sql.Rows) (*domain.Driver, error) {
	var driver domain.Driver
	var lat, lng sql.NullFloat64
	var currentRideID sql.NullString

	if err := rows.Scan(
		&driver.ID,
		&driver.Name,
		&driver.Email,
		&driver.Location.Text,
		&lat,
		&lng,
		&driver.Status,
		&currentRideID,
		&driver.LastSeen,
		&driver.CreatedAt,
	); err != nil {
		return nil, err
	}

	applyDriverNulls(&driver, lat, lng, currentRideID)
	return &driver, nil
}

func applyDriverNulls(driver *domain.Driver, lat, lng sql.NullFloat64, currentRideID sql.NullString) {
	if lat.Valid {
		driver.Location.Lat = lat.Float64
	}
	if lng.Valid {
		driver.Location.Lng = lng.Float64
	}
	if currentRideID.Valid {
		driver.CurrentRideID = currentRideID.String
	}
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
