package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot TTLs. Polled read endpoints must stay cheap, so their responses
// are cached briefly; correctness never depends on the polling cadence.
const (
	QueueSnapshotTTL   = 2 * time.Second
	DriversSnapshotTTL = 2 * time.Second
)

const snapshotPrefix = "snapshot:"

// SnapshotStore caches rendered responses for the polled read endpoints
// (/queue, /available-drivers) in Redis.
type SnapshotStore struct {
	client *redis.Client
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// Get loads a cached snapshot into dest. The second return value is false on
// a cache miss.
func (s *SnapshotStore) Get(ctx context.Context, name string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, snapshotPrefix+name).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a snapshot with the given TTL.
func (s *SnapshotStore) Set(ctx context.Context, name string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, snapshotPrefix+name, data, ttl).Err()
}

// Invalidate drops a snapshot after a write that changes it.
func (s *SnapshotStore) Invalidate(ctx context.Context, name string) error {
	return s.client.Del(ctx, snapshotPrefix+name).Err()
}
