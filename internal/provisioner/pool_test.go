package provisioner

import (
	"context"
	"sync"
	"testing"
)

func TestAllocate_LowestFreePort(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(7000, 3, nil)

	slot, err := pool.Allocate(ctx, "ride-1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if slot.Port != 7000 {
		t.Errorf("expected 7000, got %d", slot.Port)
	}
	if slot.InstanceName != "ride-ride-1" {
		t.Errorf("unexpected instance name %s", slot.InstanceName)
	}

	second, _ := pool.Allocate(ctx, "ride-2")
	if second.Port != 7001 {
		t.Errorf("expected 7001, got %d", second.Port)
	}

	// Releasing the first slot makes 7000 the lowest free port again.
	pool.Release(ctx, "ride-1")
	third, _ := pool.Allocate(ctx, "ride-3")
	if third.Port != 7000 {
		t.Errorf("expected reissued 7000, got %d", third.Port)
	}
}

func TestAllocate_IdempotentPerRide(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(7000, 3, nil)

	first, err := pool.Allocate(ctx, "ride-1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	again, err := pool.Allocate(ctx, "ride-1")
	if err != nil {
		t.Fatalf("repeat allocate: %v", err)
	}
	if again.Port != first.Port {
		t.Errorf("expected same slot %d, got %d", first.Port, again.Port)
	}
	if pool.Allocated() != 1 {
		t.Errorf("repeat allocation must not consume capacity, got %d", pool.Allocated())
	}
}

func TestAllocate_Exhaustion(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(7000, 2, nil)

	if _, err := pool.Allocate(ctx, "ride-1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := pool.Allocate(ctx, "ride-2"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := pool.Allocate(ctx, "ride-3"); err != ErrPoolExhausted {
		t.Errorf("expected ErrPoolExhausted, got %v", err)
	}

	pool.Release(ctx, "ride-1")
	if _, err := pool.Allocate(ctx, "ride-3"); err != nil {
		t.Errorf("expected allocation after release, got %v", err)
	}
}

func TestRelease_UnknownRideIsNoOp(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(7000, 2, nil)

	pool.Release(ctx, "never-held")
	if pool.Allocated() != 0 {
		t.Errorf("expected empty pool, got %d", pool.Allocated())
	}
}

func TestPool_ConcurrentAllocateRelease(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(7000, 8, nil)

	// Churn allocations from many goroutines; the pool must never hand out
	// the same port twice at once or lose a slot.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := "ride-" + string(rune('a'+g))
			for i := 0; i < 1000; i++ {
				slot, err := pool.Allocate(ctx, id)
				if err != nil {
					t.Errorf("allocate %s: %v", id, err)
					return
				}
				if slot.Port < 7000 || slot.Port >= 7008 {
					t.Errorf("port %d out of range", slot.Port)
					return
				}
				pool.Release(ctx, id)
			}
		}(g)
	}
	wg.Wait()

	if pool.Allocated() != 0 {
		t.Errorf("expected all slots returned, %d still held", pool.Allocated())
	}
}

func TestPool_SlotCountMatchesAssignedRides(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(7000, 4, nil)

	for _, id := range []string{"ride-1", "ride-2", "ride-3"} {
		if _, err := pool.Allocate(ctx, id); err != nil {
			t.Fatalf("allocate %s: %v", id, err)
		}
	}
	if pool.Allocated() != 3 {
		t.Errorf("expected 3 held slots, got %d", pool.Allocated())
	}

	port, ok := pool.PortFor("ride-2")
	if !ok || port != 7001 {
		t.Errorf("expected ride-2 on 7001, got %d (held=%v)", port, ok)
	}

	pool.Release(ctx, "ride-2")
	if _, ok := pool.PortFor("ride-2"); ok {
		t.Error("expected ride-2 slot released")
	}
	if pool.Allocated() != 2 {
		t.Errorf("expected 2 held slots, got %d", pool.Allocated())
	}
}
