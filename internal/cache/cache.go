// Package cache holds the short-lived shared state of the pipeline: content
// memos, per-hash resolution locks and flood counters.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout is returned by Acquire when the lock stayed taken.
var ErrLockTimeout = errors.New("cache lock timeout")

// Cache is implemented by Redis and by the in-process Memory store.
type Cache interface {
	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Lock takes key when it is free. The lock expires after ttl.
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	// Incr increments the counter at key and sets ttl when it was created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

const lockPrefix = "lock:"

// Acquire polls until key is locked, wait elapses or ctx ends.
func Acquire(ctx context.Context, c Cache, key string, ttl, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := c.Lock(ctx, lockPrefix+key, ttl)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Release frees a lock taken with Acquire.
func Release(ctx context.Context, c Cache, key string) error {
	return c.Unlock(ctx, lockPrefix+key)
}
