package domain

import "time"

// DriverStatus represents the current status of a driver.
type DriverStatus string

const (
	DriverStatusOnline  DriverStatus = "online"
	DriverStatusOffline DriverStatus = "offline"
	DriverStatusOnTrip  DriverStatus = "on_trip"
)

// Driver represents a driver in the system. CurrentRideID is non-empty only
// while the driver is claimed for a non-terminal ride; the registry enforces
// at most one such ride per driver.
type Driver struct {
	ID            string
	Name          string
	Email         string
	Location      Location
	Status        DriverStatus
	CurrentRideID string
	LastSeen      time.Time
	CreatedAt     time.Time
}

// Available reports whether the driver can be claimed for a new ride.
func (d *Driver) Available() bool {
	return d.Status == DriverStatusOnline && d.CurrentRideID == ""
}
