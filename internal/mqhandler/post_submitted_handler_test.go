package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	mqcontracts "instapulse/contracts/mq"
	"instapulse/internal/insights"
	"instapulse/internal/model"
	postsvc "instapulse/internal/service/post"
	"instapulse/internal/testutil"
	"instapulse/pkg/mq"
	"instapulse/pkg/rbac"
	"instapulse/pkg/util"
)

type scriptedSource struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedSource) FetchInsights(context.Context, string) (*model.Insights, error) {
	return nil, errors.New("not used")
}

func (s *scriptedSource) FetchMetadata(_ context.Context, id string) (*model.PostMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &model.PostMetadata{
		Caption:   "caption " + id,
		MediaType: "IMAGE",
		MediaURL:  "https://cdn/" + id,
		Permalink: "https://www.instagram.com/p/" + id + "/",
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type dlqRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (d *dlqRecorder) PublishToDLQ(routingKey string, _ []byte, originalError string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, routingKey+": "+originalError)
	return nil
}

type fixture struct {
	store   *testutil.MemStore
	source  *scriptedSource
	dlq     *dlqRecorder
	handler *PostSubmittedHandler
	post    *model.Post
}

func newFixture(t *testing.T, errs ...error) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.NewMemStore(),
		source: &scriptedSource{errs: errs},
		dlq:    &dlqRecorder{},
	}
	f.handler = NewPostSubmittedHandler(
		f.store.Posts(),
		f.source,
		util.NewDeduper(nil, time.Hour, zap.NewNop()),
		util.NewRetryCounter(nil, time.Hour),
		f.dlq,
		time.Second,
		zap.NewNop(),
	)

	acc := &model.Account{Email: "intern@company.com", Role: rbac.RoleIntern}
	if err := f.store.Accounts().Create(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
	f.post = &model.Post{UserID: acc.ID, URL: "https://instagram.com/p/abc", ExternalID: "abc"}
	if err := f.store.Posts().CreateWithEvent(context.Background(), f.post, "trace-1"); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) message(t *testing.T) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(f.store.Events()[0])
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestEnrichesPost(t *testing.T) {
	f := newFixture(t)
	msg := f.message(t)

	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	p, _ := f.store.Posts().FindByID(context.Background(), f.post.ID)
	if p.Caption == nil || *p.Caption != "caption abc" || p.PostedAt == nil {
		t.Errorf("post not enriched: %+v", p)
	}

	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if f.source.calls != 1 {
		t.Errorf("calls = %d, want 1 (redelivery is a no-op)", f.source.calls)
	}
}

func TestDeletedPostIsAcked(t *testing.T) {
	f := newFixture(t)
	msg := f.message(t)
	if err := f.store.Posts().Delete(context.Background(), f.post.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Errorf("Handle = %v, want ack", err)
	}
	if f.source.calls != 0 {
		t.Error("fetched metadata for a deleted post")
	}
}

func TestRetryableFailureIsBounded(t *testing.T) {
	unavailable := &insights.StatusError{Endpoint: "media", Code: http.StatusServiceUnavailable}
	f := newFixture(t, unavailable, unavailable, unavailable, unavailable)
	msg := f.message(t)

	for i := 1; i <= maxEnrichRetries; i++ {
		if err := f.handler.Handle(context.Background(), msg); err == nil {
			t.Fatalf("attempt %d acked, want redelivery", i)
		}
	}
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("final attempt = %v, want ack", err)
	}
	if f.source.calls != maxEnrichRetries+1 {
		t.Errorf("calls = %d, want %d", f.source.calls, maxEnrichRetries+1)
	}
	if len(f.dlq.entries) != 1 {
		t.Errorf("dlq = %v, want one entry", f.dlq.entries)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	f := newFixture(t, &insights.StatusError{Endpoint: "media", Code: http.StatusBadGateway})
	msg := f.message(t)

	if err := f.handler.Handle(context.Background(), msg); err == nil {
		t.Fatal("first attempt acked")
	}
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	p, _ := f.store.Posts().FindByID(context.Background(), f.post.ID)
	if p.Caption == nil {
		t.Error("post not enriched after retry")
	}
	if len(f.dlq.entries) != 0 {
		t.Errorf("dlq = %v", f.dlq.entries)
	}
}

func TestNonRetryableFailureDeadLetters(t *testing.T) {
	f := newFixture(t, &insights.StatusError{Endpoint: "media", Code: http.StatusNotFound})
	if err := f.handler.Handle(context.Background(), f.message(t)); err != nil {
		t.Errorf("Handle = %v, want ack", err)
	}
	if len(f.dlq.entries) != 1 {
		t.Errorf("dlq = %v", f.dlq.entries)
	}
	p, _ := f.store.Posts().FindByID(context.Background(), f.post.ID)
	if p.Caption != nil {
		t.Error("post enriched despite failure")
	}
}

func TestBadPayloadDeadLetters(t *testing.T) {
	f := newFixture(t)
	if err := f.handler.Handle(context.Background(), json.RawMessage(`{"post_id":"x"`)); err != nil {
		t.Errorf("Handle = %v, want ack", err)
	}
	if len(f.dlq.entries) != 1 {
		t.Errorf("dlq = %v", f.dlq.entries)
	}
}

// Submission returns before enrichment; the bus delivers the event afterwards.
func TestSubmitEnrichesThroughLocalBus(t *testing.T) {
	store := testutil.NewMemStore()
	bus := mq.NewLocalBus(zap.NewNop(), 8).WithRetry(3, 10*time.Millisecond)
	store.WithPublisher(bus)

	source := insights.NewSimulatedSource(7, 0)
	handler := NewPostSubmittedHandler(store.Posts(), source,
		util.NewDeduper(nil, time.Hour, zap.NewNop()), util.NewRetryCounter(nil, time.Hour),
		bus, time.Second, zap.NewNop())
	bus.Subscribe(mqcontracts.RoutingKeyPostSubmitted, handler.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	acc := &model.Account{Email: "intern@company.com", Role: rbac.RoleIntern}
	if err := store.Accounts().Create(ctx, acc); err != nil {
		t.Fatal(err)
	}
	p, err := postsvc.NewService(store.Posts(), zap.NewNop()).Submit(ctx, acc.Subject(), "https://www.instagram.com/p/xyz/")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := store.Posts().FindByID(ctx, p.ID)
		if got.Caption != nil {
			if *got.MediaType != "IMAGE" {
				t.Errorf("media type = %q", *got.MediaType)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("post was not enriched")
}
