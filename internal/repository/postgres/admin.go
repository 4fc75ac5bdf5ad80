package postgres

import (
	"context"
	"database/sql"

	"dispatch/internal/repository"
)

// AdminRepository is a PostgreSQL implementation of repository.AdminRepository.
type AdminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new PostgreSQL admin repository.
func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// PurgeSimulationData deletes simulation riders, drivers and their rides in
// one transaction. Simulation entities are marked at creation time.
func (r *AdminRepository) PurgeSimulationData(ctx context.Context) (repository.CleanupStats, []string, error) {
	var stats repository.CleanupStats

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM rides WHERE simulated = TRUE`)
	if err != nil {
		return stats, nil, err
	}
	var rideIDs []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return stats, nil, err
		}
		rideIDs = append(rideIDs, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return stats, nil, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM rides WHERE simulated = TRUE`)
	if err != nil {
		return stats, nil, err
	}
	rides, _ := result.RowsAffected()

	result, err = tx.ExecContext(ctx, `DELETE FROM users WHERE email LIKE '%@example.com' OR name LIKE 'Sim %'`)
	if err != nil {
		return stats, nil, err
	}
	users, _ := result.RowsAffected()

	result, err = tx.ExecContext(ctx, `DELETE FROM drivers WHERE email LIKE '%@example.com' OR name LIKE 'Sim %'`)
	if err != nil {
		return stats, nil, err
	}
	drivers, _ := result.RowsAffected()

	if err = tx.Commit(); err != nil {
		return stats, nil, err
	}

	stats.RidesDeleted = int(rides)
	stats.UsersDeleted = int(users)
	stats.DriversDeleted = int(drivers)
	return stats, rideIDs, nil
}
