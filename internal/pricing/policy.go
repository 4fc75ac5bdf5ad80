// Package pricing computes base fares. The exact formula is a policy choice,
// so the calculator is an interface with interchangeable implementations.
package pricing

import (
	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// Policy computes a base fare for a route. Implementations must be pure:
// the same pickup/destination pair always yields the same fare.
type Policy interface {
	Quote(pickup, destination domain.Location) float64
}

// FixedPolicy charges the same base fare for every ride.
type FixedPolicy struct {
	BaseFare float64
}

// Quote returns the configured flat fare.
func (p FixedPolicy) Quote(_, _ domain.Location) float64 {
	return p.BaseFare
}

// DistancePolicy charges per straight-line kilometre with a floor. Routes
// without coordinates fall back to the minimum fare.
type DistancePolicy struct {
	PerKm       float64
	MinimumFare float64
}

// Quote returns max(MinimumFare, distance * PerKm).
func (p DistancePolicy) Quote(pickup, destination domain.Location) float64 {
	if pickup.Lat == 0 && pickup.Lng == 0 && destination.Lat == 0 && destination.Lng == 0 {
		return p.MinimumFare
	}
	fare := geo.HaversineKm(pickup.Lat, pickup.Lng, destination.Lat, destination.Lng) * p.PerKm
	if fare < p.MinimumFare {
		fare = p.MinimumFare
	}
	return fare
}
