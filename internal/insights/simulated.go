package insights

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"instapulse/internal/model"
)

// SimulatedSource returns random counts in plausible ranges. Used when no
// Graph API credentials are configured.
type SimulatedSource struct {
	mu              sync.Mutex
	rng             *rand.Rand
	metadataLatency time.Duration
	now             func() time.Time
}

func NewSimulatedSource(seed int64, metadataLatency time.Duration) *SimulatedSource {
	return &SimulatedSource{
		rng:             rand.New(rand.NewPCG(uint64(seed), uint64(seed>>1))),
		metadataLatency: metadataLatency,
		now:             time.Now,
	}
}

// between returns an int in [lo, hi].
func (s *SimulatedSource) between(lo, hi int64) int64 {
	return lo + s.rng.Int64N(hi-lo+1)
}

func (s *SimulatedSource) FetchInsights(ctx context.Context, _ string) (*model.Insights, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.Insights{
		Likes:       s.between(50, 1049),
		Comments:    s.between(5, 104),
		Shares:      s.between(1, 20),
		Reach:       s.between(100, 2099),
		Impressions: s.between(200, 3199),
		Saved:       s.between(1, 50),
	}, nil
}

func (s *SimulatedSource) FetchMetadata(ctx context.Context, externalID string) (*model.PostMetadata, error) {
	if s.metadataLatency > 0 {
		t := time.NewTimer(s.metadataLatency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return &model.PostMetadata{
		Caption:   fmt.Sprintf("Sample caption for post %s", externalID),
		MediaType: "IMAGE",
		MediaURL:  fmt.Sprintf("https://example.com/media/%s.jpg", externalID),
		Permalink: fmt.Sprintf("https://www.instagram.com/p/%s/", externalID),
		Timestamp: s.now().UTC(),
	}, nil
}
