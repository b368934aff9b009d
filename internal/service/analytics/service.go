package analytics

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"instapulse/internal/insights"
	"instapulse/internal/model"
	"instapulse/internal/repository"
	"instapulse/pkg/apperr"
	"instapulse/pkg/config"
	"instapulse/pkg/logger"
	"instapulse/pkg/metrics"
	"instapulse/pkg/util"
)

const (
	topPostsLimit = 5
	bulkLockName  = "analytics:refresh-all"

	modeSingle = "single"
	modeBulk   = "bulk"
)

type PostStore interface {
	FindByID(ctx context.Context, id int) (*model.Post, error)
	ListAll(ctx context.Context) ([]*model.Post, error)
	ListViewsByUser(ctx context.Context, userID int) ([]model.PostView, error)
}

type AccountStore interface {
	FindByID(ctx context.Context, id int) (*model.Account, error)
}

type SnapshotStore interface {
	Upsert(ctx context.Context, s *model.Snapshot) error
	FindByPostID(ctx context.Context, postID int) (*model.Snapshot, error)
	Aggregates(ctx context.Context) (model.Aggregates, error)
	TopPosts(ctx context.Context, limit int) ([]model.TopPost, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Service struct {
	posts     PostStore
	accounts  AccountStore
	snapshots SnapshotStore
	source    insights.Source
	lock      util.RunLock
	timeout   time.Duration
	delay     time.Duration
	sleep     Sleeper
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(
	posts PostStore,
	accounts AccountStore,
	snapshots SnapshotStore,
	source insights.Source,
	lock util.RunLock,
	cfg config.InsightsConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		posts:     posts,
		accounts:  accounts,
		snapshots: snapshots,
		source:    source,
		lock:      lock,
		timeout:   cfg.Timeout(),
		delay:     cfg.RefreshDelay(),
		sleep:     sleepContext,
		now:       time.Now,
		logger:    logger,
	}
}

// WithSleeper replaces the inter-post wait used by RefreshAll.
func (s *Service) WithSleeper(sleep Sleeper) *Service {
	s.sleep = sleep
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RefreshPost fetches fresh counts for one post and overwrites its snapshot.
func (s *Service) RefreshPost(ctx context.Context, postID int) (*model.Snapshot, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Post not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to load post", err)
	}

	snap, err := s.refresh(ctx, post)
	metrics.IncrementAnalyticsRefresh(modeSingle, refreshStatus(err))
	if err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Analytics refresh failed",
			zap.Int("post_id", post.ID),
			zap.Error(err),
		)
		return nil, err
	}
	return snap, nil
}

// PostAnalytics returns the stored snapshot of a post without refreshing it.
func (s *Service) PostAnalytics(ctx context.Context, postID int) (*model.Snapshot, error) {
	if _, err := s.posts.FindByID(ctx, postID); errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Post not found")
	} else if err != nil {
		return nil, apperr.Store("failed to load post", err)
	}

	snap, err := s.snapshots.FindByPostID(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Analytics not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to load analytics", err)
	}
	return snap, nil
}

// refresh fetches and upserts one snapshot. The rate is always derived from
// the counts being stored.
func (s *Service) refresh(ctx context.Context, post *model.Post) (*model.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	in, err := s.source.FetchInsights(fetchCtx, post.ExternalID)
	cancel()
	if err != nil {
		return nil, apperr.Upstream("Failed to fetch analytics data", err)
	}
	if in == nil {
		return nil, apperr.Upstream("Failed to fetch analytics data", nil)
	}
	if err := in.Validate(); err != nil {
		return nil, apperr.Upstream("Failed to fetch analytics data", err)
	}

	snap := model.NewSnapshot(post.ID, *in, s.now())
	if err := s.snapshots.Upsert(ctx, &snap); err != nil {
		return nil, apperr.Store("failed to store analytics", err)
	}
	return &snap, nil
}

func refreshStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperr.Is(err, apperr.KindUpstream):
		return "upstream_error"
	}
	return "store_error"
}

// RefreshAll refreshes every post one at a time, waiting the configured delay
// between posts. A failing post is counted and skipped. Only one run may be
// in progress; a concurrent call gets a Conflict.
func (s *Service) RefreshAll(ctx context.Context) (*model.RefreshResult, error) {
	log := logger.WithTrace(ctx, s.logger)

	release, err := s.lock.TryAcquire(ctx, bulkLockName)
	if errors.Is(err, util.ErrLockHeld) {
		return nil, apperr.Conflict("Bulk refresh already running")
	}
	if err != nil {
		return nil, apperr.Store("failed to acquire refresh lock", err)
	}
	defer release()

	posts, err := s.posts.ListAll(ctx)
	if err != nil {
		return nil, apperr.Store("failed to list posts", err)
	}
	if len(posts) == 0 {
		return &model.RefreshResult{Message: "No posts to refresh"}, nil
	}

	start := time.Now()
	res := &model.RefreshResult{Message: "Bulk analytics refresh completed", Total: len(posts)}
	for i, post := range posts {
		if i > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				log.Warn("Bulk refresh interrupted",
					zap.Int("attempted", i),
					zap.Int("total", len(posts)),
					zap.Error(err),
				)
				break
			}
		}

		_, err := s.refresh(ctx, post)
		metrics.IncrementAnalyticsRefresh(modeBulk, refreshStatus(err))
		if err != nil {
			res.Errors++
			log.Warn("Bulk refresh item failed", zap.Int("post_id", post.ID), zap.Error(err))
			continue
		}
		res.Updated++
	}

	metrics.RecordBulkRefreshDuration(time.Since(start))
	log.Info("Bulk refresh finished",
		zap.Int("updated", res.Updated),
		zap.Int("errors", res.Errors),
		zap.Int("total", res.Total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// Summary aggregates every post and ranks the top five by engagement rate.
func (s *Service) Summary(ctx context.Context) (*model.SummaryReport, error) {
	agg, err := s.snapshots.Aggregates(ctx)
	if err != nil {
		return nil, apperr.Store("failed to aggregate analytics", err)
	}
	top, err := s.snapshots.TopPosts(ctx, topPostsLimit)
	if err != nil {
		return nil, apperr.Store("failed to rank posts", err)
	}
	if top == nil {
		top = []model.TopPost{}
	}
	return &model.SummaryReport{Summary: model.SummaryFrom(agg), TopPosts: top}, nil
}

// AccountSummary lists one account's posts with their snapshots.
func (s *Service) AccountSummary(ctx context.Context, accountID int) (*model.AccountReport, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Store("failed to load user", err)
	}

	posts, err := s.posts.ListViewsByUser(ctx, accountID)
	if err != nil {
		return nil, apperr.Store("failed to list posts", err)
	}
	if posts == nil {
		posts = []model.PostView{}
	}
	return &model.AccountReport{Posts: posts, Summary: model.SummarizeAccount(posts)}, nil
}
