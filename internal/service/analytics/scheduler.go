package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"instapulse/pkg/apperr"
	"instapulse/pkg/logger"
	"instapulse/pkg/trace"
)

// Scheduler runs RefreshAll on a fixed interval.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(svc *Service, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{svc: svc, interval: interval, logger: logger}
}

// Start blocks until ctx is done. A non-positive interval disables it.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Auto refresh disabled")
		return
	}
	s.logger.Info("Starting auto refresh", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Auto refresh stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scheduled refresh under a fresh trace id.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	log := logger.WithTrace(ctx, s.logger)

	res, err := s.svc.RefreshAll(ctx)
	if apperr.Is(err, apperr.KindConflict) {
		log.Info("Auto refresh skipped, a run is already in progress")
		return
	}
	if err != nil {
		log.Error("Auto refresh failed", zap.Error(err))
		return
	}
	log.Info("Auto refresh completed",
		zap.Int("updated", res.Updated),
		zap.Int("errors", res.Errors),
	)
}
