package repository

import "context"

// CleanupStats reports what a simulation-data purge removed.
type CleanupStats struct {
	UsersDeleted   int
	DriversDeleted int
	RidesDeleted   int
}

// AdminRepository defines maintenance operations used by admin tooling.
type AdminRepository interface {
	// PurgeSimulationData deletes simulation riders, drivers and their
	// rides in one transaction and returns what was removed. It also
	// returns the ride IDs that were purged so held resources can be
	// released.
	PurgeSimulationData(ctx context.Context) (CleanupStats, []string, error)
}
