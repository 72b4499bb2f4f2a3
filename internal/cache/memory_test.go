package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_GetSetExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := m.Set(ctx, "load-message:abc", "42", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := m.Get(ctx, "load-message:abc")
	if err != nil || !ok || got != "42" {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}

	now = now.Add(time.Hour)
	if _, ok, _ := m.Get(ctx, "load-message:abc"); ok {
		t.Fatalf("entry survived its ttl")
	}
}

func TestMemory_WritesSweepExpiredEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for _, key := range []string{"load-message:a", "load-message:b", "load-message:c"} {
		if err := m.Set(ctx, key, "1", time.Hour); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}
	if err := m.Set(ctx, "crawl:failures:yuk", "2", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := m.Incr(ctx, "crawl:failures:other", time.Hour); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if got := m.Len(); got != 2 {
		t.Fatalf("Len() = %d after sweep, want 2", got)
	}
}

func TestMemory_LockIsExclusive(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	ok, err := m.Lock(ctx, "h", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Lock() = %v, %v", ok, err)
	}
	if ok, _ := m.Lock(ctx, "h", time.Minute); ok {
		t.Fatalf("second Lock() succeeded while held")
	}
	if err := m.Unlock(ctx, "h"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if ok, _ := m.Lock(ctx, "h", time.Minute); !ok {
		t.Fatalf("Lock() after Unlock failed")
	}
}

func TestMemory_IncrKeepsFirstTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.August, 21, 10, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := m.Incr(ctx, "flood:7", time.Minute)
		if err != nil || n != want {
			t.Fatalf("Incr() = %d, %v, want %d", n, err, want)
		}
		now = now.Add(10 * time.Second)
	}
	now = now.Add(40 * time.Second)
	if n, _ := m.Incr(ctx, "flood:7", time.Minute); n != 1 {
		t.Fatalf("Incr() after expiry = %d, want 1", n)
	}
}

func TestAcquire_TimesOut(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	if err := Acquire(ctx, m, "hash", time.Minute, 0); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	err := Acquire(ctx, m, "hash", time.Minute, 50*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Acquire() error = %v, want timeout", err)
	}
	if err := Release(ctx, m, "hash"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := Acquire(ctx, m, "hash", time.Minute, 0); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
}
