package provisioner

import (
	"context"
	"log"
)

// Runtime manages the per-ride service instance bound to an allocated slot.
// The real container runtime lives outside this engine; implementations only
// need to honor Start/Stop for a (name, port) pair.
type Runtime interface {
	Start(ctx context.Context, name string, port int) error
	Stop(ctx context.Context, name string, port int) error
}

// LogRuntime is the default Runtime. It records lifecycle events without
// launching anything.
type LogRuntime struct{}

// Start logs the instance start.
func (LogRuntime) Start(_ context.Context, name string, port int) error {
	log.Printf("[PROVISIONER] started instance %s on port %d", name, port)
	return nil
}

// Stop logs the instance stop.
func (LogRuntime) Stop(_ context.Context, name string, port int) error {
	log.Printf("[PROVISIONER] stopped instance %s on port %d", name, port)
	return nil
}
