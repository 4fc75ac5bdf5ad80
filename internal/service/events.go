package service

import (
	"context"
	"log"
	"time"

	"dispatch/internal/domain"
)

// CompletionEvent is emitted when a ride reaches completed status.
type CompletionEvent struct {
	RideID      string
	RiderID     string
	DriverID    string
	Destination domain.Location
	FinalFare   float64
	CompletedAt time.Time
}

// CompletionListener consumes ride completion events. Listener failures
// never affect the completed ride.
type CompletionListener interface {
	OnRideCompleted(ctx context.Context, event CompletionEvent)
}

// LogCompletionListener logs completion events.
type LogCompletionListener struct{}

// OnRideCompleted logs the event.
func (LogCompletionListener) OnRideCompleted(_ context.Context, event CompletionEvent) {
	log.Printf("[DISPATCH] ride %s completed: rider=%s driver=%s fare=%.2f",
		event.RideID, event.RiderID, event.DriverID, event.FinalFare)
}
