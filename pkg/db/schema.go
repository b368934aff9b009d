package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// schema 幂等建表，启动时执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            SERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'intern' CHECK (role IN ('admin', 'intern')),
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS instagram_posts (
		id                SERIAL PRIMARY KEY,
		user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		instagram_url     TEXT NOT NULL UNIQUE,
		instagram_post_id TEXT NOT NULL,
		caption           TEXT,
		media_type        TEXT,
		media_url         TEXT,
		permalink         TEXT,
		posted_at         TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_instagram_posts_user_id ON instagram_posts(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_instagram_posts_created_at ON instagram_posts(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS analytics (
		id              SERIAL PRIMARY KEY,
		post_id         INTEGER NOT NULL UNIQUE REFERENCES instagram_posts(id) ON DELETE CASCADE,
		likes_count     BIGINT NOT NULL DEFAULT 0 CHECK (likes_count >= 0),
		comments_count  BIGINT NOT NULL DEFAULT 0 CHECK (comments_count >= 0),
		shares_count    BIGINT NOT NULL DEFAULT 0 CHECK (shares_count >= 0),
		reach           BIGINT NOT NULL DEFAULT 0 CHECK (reach >= 0),
		impressions     BIGINT NOT NULL DEFAULT 0 CHECK (impressions >= 0),
		saved_count     BIGINT NOT NULL DEFAULT 0 CHECK (saved_count >= 0),
		engagement_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		fetched_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_engagement_rate ON analytics(engagement_rate DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   BIGINT,
		routing_key    TEXT NOT NULL,
		payload        JSONB NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		next_retry_at  TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending ON outbox_events(status, next_retry_at)`,
}

// EnsureSchema 创建缺失的表和索引
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	logger.Info("Database schema ensured", zap.Int("statements", len(schema)))
	return nil
}
