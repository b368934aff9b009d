package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"instapulse/pkg/circuitbreaker"
)

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return "upstream said no" }
func (e tempErr) Temporary() bool { return e.temp }

func TestIsRetryableError(t *testing.T) {
	var syntaxErr *json.SyntaxError
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})
	if !errors.As(jsonErr, &syntaxErr) {
		t.Fatalf("expected a syntax error, got %T", jsonErr)
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"json", jsonErr, false, "json_decode_error"},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"breaker open", circuitbreaker.ErrCircuitBreakerOpen, true, "circuit_open"},
		{"no rows", fmt.Errorf("find post: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"connection lost", &pgconn.PgError{Code: "08006"}, true, "db_transient_error"},
		{"temporary upstream", tempErr{temp: true}, true, "upstream_unavailable"},
		{"rejected upstream", tempErr{temp: false}, false, "upstream_rejected"},
		{"unknown", errors.New("mystery"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tt.err)
			if retryable != tt.retryable || kind != tt.kind {
				t.Errorf("IsRetryableError() = (%v, %q), want (%v, %q)", retryable, kind, tt.retryable, tt.kind)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if ShouldRetry(1, 3, false) {
		t.Error("non-retryable error retried")
	}
	if !ShouldRetry(3, 3, true) {
		t.Error("third attempt should retry")
	}
	if ShouldRetry(4, 3, true) {
		t.Error("fourth attempt should not retry")
	}
}

func TestLocalDeduper(t *testing.T) {
	d := NewDeduper(nil, time.Minute, nil)
	now := time.Unix(100, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if !d.AcquireOnce(ctx, "enrich", 7) {
		t.Fatal("first acquire should succeed")
	}
	if d.AcquireOnce(ctx, "enrich", 7) {
		t.Fatal("second acquire should be deduplicated")
	}
	if !d.AcquireOnce(ctx, "enrich", 8) {
		t.Fatal("different id should not collide")
	}

	now = now.Add(2 * time.Minute)
	if !d.AcquireOnce(ctx, "enrich", 7) {
		t.Fatal("acquire after ttl should succeed")
	}

	d.Release(ctx, "enrich", 8)
	if !d.AcquireOnce(ctx, "enrich", 8) {
		t.Fatal("acquire after release should succeed")
	}
}

func TestLocalRetryCounter(t *testing.T) {
	rc := NewRetryCounter(nil, time.Hour)
	ctx := context.Background()
	key := FormatRetryKey("enrich", 3)
	if key != "retry:enrich:3" {
		t.Fatalf("key = %q", key)
	}

	for want := int64(1); want <= 3; want++ {
		got, err := rc.IncrementAndGet(ctx, key)
		if err != nil || got != want {
			t.Fatalf("IncrementAndGet = %d, %v; want %d", got, err, want)
		}
	}
	if err := rc.Reset(ctx, key); err != nil {
		t.Fatal(err)
	}
	if got, _ := rc.Get(ctx, key); got != 0 {
		t.Errorf("after reset got %d", got)
	}
}

func TestLocalRunLock(t *testing.T) {
	l := NewLocalRunLock()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "refresh-all")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.TryAcquire(ctx, "refresh-all"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}
	if _, err := l.TryAcquire(ctx, "other"); err != nil {
		t.Fatalf("other lock: %v", err)
	}

	release()
	release()
	again, err := l.TryAcquire(ctx, "refresh-all")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}
