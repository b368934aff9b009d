package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"instapulse/pkg/trace"
)

type fakeStore struct {
	events map[int64]*Event
	sent   []int64
	failed []int64
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{events: map[int64]*Event{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.events[id].Status = StatusSent
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	e := s.events[id]
	e.RetryCount++
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	}
	s.failed = append(s.failed, id)
	return nil
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusFailed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type published struct {
	routingKey string
	body       string
	traceID    string
}

type fakePublisher struct {
	fail map[string]bool
	got  []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, body []byte) error {
	if p.fail[routingKey] {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, published{routingKey, string(body), trace.FromContext(ctx)})
	return nil
}

func event(id int64, key string, payload any) *Event {
	b, _ := json.Marshal(payload)
	return &Event{ID: id, RoutingKey: key, Payload: b, Status: StatusPending}
}

func TestDispatcherPublishesAndMarks(t *testing.T) {
	store := newFakeStore(
		event(1, "post.submitted", map[string]any{"post_id": 1, "trace_id": "abc"}),
		event(2, "broken", map[string]any{"post_id": 2}),
		event(3, "post.submitted", map[string]any{"post_id": 3}),
	)
	pub := &fakePublisher{fail: map[string]bool{"broken": true}}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2)

	if sent := d.ProcessPending(context.Background()); sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(pub.got) != 2 || pub.got[0].traceID != "abc" {
		t.Fatalf("published = %+v", pub.got)
	}
	if store.events[2].Status != StatusPending || store.events[2].RetryCount != 1 {
		t.Fatalf("event 2 = %+v, want pending with one retry", store.events[2])
	}

	d.ProcessPending(context.Background())
	if store.events[2].Status != StatusFailed {
		t.Errorf("event 2 status = %s, want failed after max retries", store.events[2].Status)
	}
}

func TestReplayFailedEvents(t *testing.T) {
	e := event(1, "post.submitted", map[string]any{"post_id": 1})
	e.Status = StatusFailed
	store := newFakeStore(e)
	pub := &fakePublisher{}
	s := NewReplayService(store, pub, zap.NewNop())

	n, err := s.ReplayFailedEvents(context.Background(), 10)
	if err != nil || n != 1 {
		t.Fatalf("ReplayFailedEvents = %d, %v", n, err)
	}
	if store.events[1].Status != StatusSent {
		t.Errorf("status = %s, want sent", store.events[1].Status)
	}
}

func TestReplayUnknownEvent(t *testing.T) {
	s := NewReplayService(newFakeStore(), &fakePublisher{}, zap.NewNop())
	if err := s.ReplayEvent(context.Background(), 42); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("err = %v, want ErrEventNotFound", err)
	}
}
