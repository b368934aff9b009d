package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisRunLock(t *testing.T, ttl time.Duration) (*RedisRunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisRunLock(rdb, ttl), mr
}

// A run that outlives the ttl keeps its lock.
func TestRedisRunLockOutlivesTTL(t *testing.T) {
	const ttl = 300 * time.Millisecond
	l, mr := newRedisRunLock(t, ttl)
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "refresh-all")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	mr.FastForward(200 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL("lock:refresh-all") <= ttl/2 {
		if time.Now().After(deadline) {
			t.Fatalf("lock not extended, ttl = %v", mr.TTL("lock:refresh-all"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	mr.FastForward(200 * time.Millisecond)
	if _, err := l.TryAcquire(ctx, "refresh-all"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}

	release()
	release()
	if mr.Exists("lock:refresh-all") {
		t.Fatal("lock still present after release")
	}
	again, err := l.TryAcquire(ctx, "refresh-all")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

// Release never deletes a lock that another holder took over.
func TestRedisRunLockReleaseKeepsForeignLock(t *testing.T) {
	l, mr := newRedisRunLock(t, time.Minute)

	release, err := l.TryAcquire(context.Background(), "refresh-all")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := mr.Set("lock:refresh-all", "someone-else"); err != nil {
		t.Fatal(err)
	}
	release()

	got, err := mr.Get("lock:refresh-all")
	if err != nil || got != "someone-else" {
		t.Errorf("lock = %q, %v; want foreign token kept", got, err)
	}
}
