package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLocker(rdb, time.Minute), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "sources")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "sources"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if _, err := l.Acquire(ctx, "headlines"); err != nil {
		t.Fatalf("different names must not conflict: %v", err)
	}

	if err := first(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := l.Acquire(ctx, "sources")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again(ctx)
}

func TestReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	held, err := l.Acquire(ctx, "sources")
	if err != nil {
		t.Fatal(err)
	}
	// simulate expiry and takeover by another process
	mr.FastForward(2 * time.Minute)
	other, err := l.Acquire(ctx, "sources")
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}

	if err := held(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists(keyPrefix + "sources") {
		t.Fatal("stale holder must not delete the new holder's lock")
	}
	_ = other(ctx)
	if mr.Exists(keyPrefix + "sources") {
		t.Fatal("lock should be gone after owner release")
	}
}

func TestAcquireRedisDown(t *testing.T) {
	l, mr := newLocker(t)
	mr.Close()

	if _, err := l.Acquire(context.Background(), "sources"); err == nil || errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected a transport error, got %v", err)
	}
}
