package cache

import (
	"context"
	"time"
)

// Store represents a shared TTL-keyed cache used across the application.
// Login challenges and rate-limit counters live behind this interface so a
// multi-instance deployment can back them with Redis instead of process
// memory.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
