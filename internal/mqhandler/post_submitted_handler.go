package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	mqcontracts "instapulse/contracts/mq"
	"instapulse/internal/insights"
	"instapulse/internal/model"
	"instapulse/internal/repository"
	"instapulse/pkg/logger"
	"instapulse/pkg/metrics"
	"instapulse/pkg/mq"
	"instapulse/pkg/trace"
	"instapulse/pkg/util"
)

const (
	enrichHandlerName = "enrich"
	maxEnrichRetries  = 3
)

type PostStore interface {
	FindByID(ctx context.Context, id int) (*model.Post, error)
	UpdateMetadata(ctx context.Context, id int, m *model.PostMetadata) error
}

// PostSubmittedHandler back-fills caption and media fields of a new post.
// Failures never reach the submitter: they are logged, counted, retried a
// bounded number of times and finally dead-lettered.
type PostSubmittedHandler struct {
	posts        PostStore
	source       insights.Source
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	dlq          mq.DeadLetterPublisher
	timeout      time.Duration
	logger       *zap.Logger
}

func NewPostSubmittedHandler(
	posts PostStore,
	source insights.Source,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	dlq mq.DeadLetterPublisher,
	timeout time.Duration,
	logger *zap.Logger,
) *PostSubmittedHandler {
	return &PostSubmittedHandler{
		posts:        posts,
		source:       source,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		timeout:      timeout,
		logger:       logger,
	}
}

// Handle returns an error only when the message should be redelivered.
func (h *PostSubmittedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.PostSubmittedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error("Invalid PostSubmittedPayload, sending to DLQ",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		metrics.IncrementEnrichment("failed")
		h.deadLetter(raw, err)
		return nil
	}

	if payload.TraceID != "" {
		ctx = trace.WithContext(ctx, payload.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(zap.Int("post_id", payload.PostID))

	post, err := h.posts.FindByID(ctx, payload.PostID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Post deleted before enrichment, skip")
		metrics.IncrementEnrichment("skipped")
		return nil
	}
	if err != nil {
		return h.handleRepoError(log, "FindByID", err)
	}

	// 幂等：已经补全过
	if post.Caption != nil {
		log.Debug("Post already enriched, skip")
		metrics.IncrementEnrichment("skipped")
		return nil
	}

	if !h.deduper.AcquireOnce(ctx, enrichHandlerName, payload.PostID) {
		return nil
	}

	retryKey := util.FormatRetryKey(enrichHandlerName, payload.PostID)
	retryCount, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Retry counter unavailable", zap.Error(err))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.timeout)
	meta, err := h.source.FetchMetadata(fetchCtx, payload.ExternalID)
	cancel()
	if err != nil {
		return h.handleFetchError(ctx, log, raw, payload.PostID, retryKey, retryCount, err)
	}
	if meta == nil {
		log.Info("No metadata available for post")
		metrics.IncrementEnrichment("skipped")
		_ = h.retryCounter.Reset(ctx, retryKey)
		return nil
	}

	if err := h.posts.UpdateMetadata(ctx, payload.PostID, meta); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("Post deleted during enrichment, skip")
			metrics.IncrementEnrichment("skipped")
			return nil
		}
		h.deduper.Release(ctx, enrichHandlerName, payload.PostID)
		return h.handleRepoError(log, "UpdateMetadata", err)
	}

	_ = h.retryCounter.Reset(ctx, retryKey)
	metrics.IncrementEnrichment("success")
	log.Info("Post metadata enriched",
		zap.String("media_type", meta.MediaType),
		zap.Int64("attempt", retryCount),
	)
	return nil
}

func (h *PostSubmittedHandler) handleRepoError(log *zap.Logger, op string, err error) error {
	isRetryable, errType := util.IsRetryableError(err)
	log.Error("Repo error",
		zap.String("op", op),
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)
	metrics.IncrementEnrichment("failed")

	if isRetryable {
		return err // nack → 重试
	}
	return nil // ack → 吃掉
}

func (h *PostSubmittedHandler) handleFetchError(
	ctx context.Context,
	log *zap.Logger,
	raw json.RawMessage,
	postID int,
	retryKey string,
	retryCount int64,
	err error,
) error {
	isRetryable, errType := util.IsRetryableError(err)
	log.Warn("Metadata fetch failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry", retryCount),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, maxEnrichRetries, isRetryable) {
		// 释放去重标记，否则重新投递会被跳过
		h.deduper.Release(ctx, enrichHandlerName, postID)
		metrics.IncrementEnrichment("retried")
		return err
	}

	metrics.IncrementEnrichment("failed")
	_ = h.retryCounter.Reset(ctx, retryKey)
	h.deadLetter(raw, err)
	return nil
}

func (h *PostSubmittedHandler) deadLetter(raw json.RawMessage, cause error) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyPostSubmitted, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
