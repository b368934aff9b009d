package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"instapulse/pkg/trace"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLocalBusDeliversWithTrace(t *testing.T) {
	bus := NewLocalBus(zap.NewNop(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	bus.Subscribe("post.submitted", func(ctx context.Context, data json.RawMessage) error {
		got <- trace.FromContext(ctx) + "|" + string(data)
		return nil
	})
	go bus.Run(ctx)

	pubCtx := trace.WithContext(context.Background(), "t-1")
	if err := bus.PublishWithContext(pubCtx, "post.submitted", []byte(`{"post_id":1}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-got:
		if v != `t-1|{"post_id":1}` {
			t.Errorf("got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestLocalBusRetriesThenDeadLetters(t *testing.T) {
	bus := NewLocalBus(zap.NewNop(), 8).WithRetry(3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	bus.Subscribe("post.submitted", func(context.Context, json.RawMessage) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still failing")
	})
	go bus.Run(ctx)

	if err := bus.PublishWithContext(context.Background(), "post.submitted", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return bus.DeadLetters() == 1 })
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("handler called %d times, want 3", n)
	}
}

func TestLocalBusRecoversFromPanic(t *testing.T) {
	bus := NewLocalBus(zap.NewNop(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	bus.Subscribe("boom", func(context.Context, json.RawMessage) error {
		atomic.AddInt32(&calls, 1)
		panic("handler exploded")
	})
	go bus.Run(ctx)

	_ = bus.PublishWithContext(context.Background(), "boom", []byte(`{}`))
	_ = bus.PublishWithContext(context.Background(), "boom", []byte(`{}`))

	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 2 })
}
