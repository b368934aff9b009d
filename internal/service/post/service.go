package post

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"instapulse/internal/model"
	"instapulse/internal/repository"
	"instapulse/pkg/apperr"
	"instapulse/pkg/logger"
	"instapulse/pkg/metrics"
	"instapulse/pkg/rbac"
	"instapulse/pkg/trace"
)

var (
	urlPattern       = regexp.MustCompile(`^https://(www\.)?instagram\.com/p/[a-zA-Z0-9_-]+/?`)
	shortcodePattern = regexp.MustCompile(`/p/([a-zA-Z0-9_-]+)`)
)

const duplicateMessage = "This Instagram post has already been submitted"

// ExtractShortcode validates the post URL shape and returns its shortcode.
func ExtractShortcode(rawURL string) (string, error) {
	if rawURL == "" {
		return "", apperr.Validation("Instagram URL is required")
	}
	if !urlPattern.MatchString(rawURL) {
		return "", apperr.Validation("Invalid Instagram post URL format")
	}
	m := shortcodePattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", apperr.Validation("Invalid Instagram URL")
	}
	return m[1], nil
}

type Store interface {
	CreateWithEvent(ctx context.Context, p *model.Post, traceID string) error
	FindByID(ctx context.Context, id int) (*model.Post, error)
	FindByURL(ctx context.Context, url string) (*model.Post, error)
	ListViewsByUser(ctx context.Context, userID int) ([]model.PostView, error)
	ListViews(ctx context.Context) ([]model.PostView, error)
	FindView(ctx context.Context, id int) (*model.PostView, error)
	Delete(ctx context.Context, id int) error
}

type Service struct {
	posts  Store
	logger *zap.Logger
}

func NewService(posts Store, logger *zap.Logger) *Service {
	return &Service{posts: posts, logger: logger}
}

func denied(err error) error {
	return &apperr.Error{Kind: apperr.KindForbidden, Msg: "Permission denied", Err: err}
}

// Submit stores a new post and queues its metadata enrichment through the
// outbox. The caller gets the post back before enrichment runs.
func (s *Service) Submit(ctx context.Context, actor rbac.Subject, rawURL string) (*model.Post, error) {
	if err := rbac.CheckPermission(actor, rbac.PermissionSubmitPost); err != nil {
		return nil, denied(err)
	}

	rawURL = strings.TrimSpace(rawURL)
	shortcode, err := ExtractShortcode(rawURL)
	if err != nil {
		metrics.IncrementPostSubmitted("invalid")
		return nil, err
	}

	// 友好提示，真正的唯一性由数据库约束保证
	_, err = s.posts.FindByURL(ctx, rawURL)
	switch {
	case err == nil:
		metrics.IncrementPostSubmitted("duplicate")
		return nil, apperr.Conflict(duplicateMessage)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Store("failed to check post", err)
	}

	p := &model.Post{UserID: actor.ID, URL: rawURL, ExternalID: shortcode}
	if err := s.posts.CreateWithEvent(ctx, p, trace.FromContext(ctx)); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.IncrementPostSubmitted("duplicate")
			return nil, apperr.Conflict(duplicateMessage)
		}
		return nil, apperr.Store("Failed to save post", err)
	}

	metrics.IncrementPostSubmitted("accepted")
	logger.WithTrace(ctx, s.logger).Info("Post submitted",
		zap.Int("post_id", p.ID),
		zap.Int("user_id", p.UserID),
		zap.String("shortcode", shortcode),
	)
	return p, nil
}

// ListMine returns the actor's own posts, newest first.
func (s *Service) ListMine(ctx context.Context, actor rbac.Subject) ([]model.PostView, error) {
	if err := rbac.CheckPermission(actor, rbac.PermissionReadOwnPosts); err != nil {
		return nil, denied(err)
	}
	posts, err := s.posts.ListViewsByUser(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Store("failed to list posts", err)
	}
	return posts, nil
}

// ListAll returns every post with its submitter, newest first.
func (s *Service) ListAll(ctx context.Context, actor rbac.Subject) ([]model.PostView, error) {
	if err := rbac.CheckPermission(actor, rbac.PermissionReadAllPosts); err != nil {
		return nil, denied(err)
	}
	posts, err := s.posts.ListViews(ctx)
	if err != nil {
		return nil, apperr.Store("failed to list posts", err)
	}
	return posts, nil
}

func (s *Service) Get(ctx context.Context, actor rbac.Subject, id int) (*model.PostView, error) {
	if err := rbac.CheckPermission(actor, rbac.PermissionReadAllPosts); err != nil {
		return nil, denied(err)
	}
	v, err := s.posts.FindView(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Post not found")
	}
	if err != nil {
		return nil, apperr.Store("failed to load post", err)
	}
	return v, nil
}

// Delete removes a post and its snapshot. Interns may only delete their own.
func (s *Service) Delete(ctx context.Context, actor rbac.Subject, id int) error {
	p, err := s.posts.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Post not found")
	}
	if err != nil {
		return apperr.Store("failed to load post", err)
	}

	if err := rbac.Authorize(actor, rbac.PermissionDeleteOwnPost, p.UserID); err != nil {
		return denied(err)
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Post not found")
		}
		return apperr.Store("failed to delete post", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Post deleted",
		zap.Int("post_id", id),
		zap.Int("by_user", actor.ID),
	)
	return nil
}
