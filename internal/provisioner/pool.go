// Package provisioner allocates an exclusive (port, instance) pair for each
// assigned ride from a fixed-capacity pool.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolExhausted is returned when every slot in the pool is allocated.
// This is a hard capacity limit on concurrently assigned rides.
var ErrPoolExhausted = errors.New("resource pool exhausted")

// Slot is an allocated per-ride resource endpoint.
type Slot struct {
	Port         int
	InstanceName string
}

// Pool hands out ports from [basePort, basePort+size) one per active ride.
// All mutations happen under a single mutex scoped to the slot bookkeeping;
// runtime start/stop runs outside the lock.
type Pool struct {
	basePort int
	size     int
	runtime  Runtime

	mu     sync.Mutex
	inUse  map[int]string // port -> rideID
	byRide map[string]int // rideID -> port
}

// NewPool creates a pool of size exclusive ports starting at basePort.
func NewPool(basePort, size int, runtime Runtime) *Pool {
	if runtime == nil {
		runtime = LogRuntime{}
	}
	return &Pool{
		basePort: basePort,
		size:     size,
		runtime:  runtime,
		inUse:    make(map[int]string),
		byRide:   make(map[string]int),
	}
}

// Allocate takes the lowest free port for the ride and starts its instance.
// Allocation is idempotent per ride: a ride that already holds a slot gets
// the same slot back.
func (p *Pool) Allocate(ctx context.Context, rideID string) (Slot, error) {
	p.mu.Lock()
	if port, ok := p.byRide[rideID]; ok {
		p.mu.Unlock()
		return Slot{Port: port, InstanceName: instanceName(rideID)}, nil
	}

	port := -1
	for candidate := p.basePort; candidate < p.basePort+p.size; candidate++ {
		if _, taken := p.inUse[candidate]; !taken {
			port = candidate
			break
		}
	}
	if port < 0 {
		p.mu.Unlock()
		return Slot{}, ErrPoolExhausted
	}

	p.inUse[port] = rideID
	p.byRide[rideID] = port
	p.mu.Unlock()

	name := instanceName(rideID)
	if err := p.runtime.Start(ctx, name, port); err != nil {
		// Roll the slot back so a runtime fault never leaks capacity.
		p.mu.Lock()
		delete(p.inUse, port)
		delete(p.byRide, rideID)
		p.mu.Unlock()
		return Slot{}, err
	}

	return Slot{Port: port, InstanceName: name}, nil
}

// Release returns the ride's slot to the free set and stops its instance.
// Releasing a ride that holds no slot is a no-op.
func (p *Pool) Release(ctx context.Context, rideID string) {
	p.mu.Lock()
	port, ok := p.byRide[rideID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, port)
	delete(p.byRide, rideID)
	p.mu.Unlock()

	_ = p.runtime.Stop(ctx, instanceName(rideID), port)
}

// Allocated returns the number of slots currently in use.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Capacity returns the pool size.
func (p *Pool) Capacity() int {
	return p.size
}

// PortFor returns the port held by the ride, if any.
func (p *Pool) PortFor(rideID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	port, ok := p.byRide[rideID]
	return port, ok
}

func instanceName(rideID string) string {
	return fmt.Sprintf("ride-%s", rideID)
}
