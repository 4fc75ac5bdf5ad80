package domain

import "time"

// RideStatus represents the current status of a ride request.
type RideStatus string

const (
	RideStatusPending   RideStatus = "pending"
	RideStatusSearching RideStatus = "searching"
	RideStatusAssigned  RideStatus = "assigned"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// IsTerminal reports whether a ride in this status can no longer transition.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Location is a named point. Lat/Lng may be zero when the client only sent a
// free-text place name.
type Location struct {
	Text string
	Lat  float64
	Lng  float64
}

// RideRequest represents a ride request in the system. It is owned by the
// dispatch service until it reaches a terminal status, after which it is
// read-only.
type RideRequest struct {
	ID           string
	RiderID      string
	Pickup       Location
	Destination  Location
	Status       RideStatus
	DriverID     string
	Port         int    // resource slot bound while assigned, 0 otherwise
	InstanceName string // lifecycle handle of the per-ride instance
	BaseFare     float64
	Discount     float64
	FinalFare    float64
	CouponCode   string
	Simulated    bool
	CreatedAt    time.Time
	CompletedAt  time.Time
	CancelledAt  time.Time
}

// allowedTransitions encodes the forward-only ride state machine.
// searching -> pending appears only because searching is a transient
// in-memory marker during matching; it is never persisted.
var allowedTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:   {RideStatusSearching, RideStatusAssigned, RideStatusCancelled},
	RideStatusSearching: {RideStatusAssigned, RideStatusPending},
	RideStatusAssigned:  {RideStatusCompleted, RideStatusCancelled},
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
