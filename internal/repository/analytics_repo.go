package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"instapulse/internal/model"
	"instapulse/pkg/otel"
)

type AnalyticsRepository struct {
	db *pgxpool.Pool
}

func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Upsert writes the post's snapshot in a single statement keyed by post_id.
// An existing row keeps its id and has every metric overwritten.
func (r *AnalyticsRepository) Upsert(ctx context.Context, s *model.Snapshot) error {
	query := `
        INSERT INTO analytics (post_id, likes_count, comments_count, shares_count, reach,
                               impressions, saved_count, engagement_rate, fetched_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (post_id) DO UPDATE SET
            likes_count     = EXCLUDED.likes_count,
            comments_count  = EXCLUDED.comments_count,
            shares_count    = EXCLUDED.shares_count,
            reach           = EXCLUDED.reach,
            impressions     = EXCLUDED.impressions,
            saved_count     = EXCLUDED.saved_count,
            engagement_rate = EXCLUDED.engagement_rate,
            fetched_at      = EXCLUDED.fetched_at
        RETURNING id
    `
	err := otel.QueryRow(ctx, "analytics.upsert", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query,
			s.PostID, s.Likes, s.Comments, s.Shares, s.Reach,
			s.Impressions, s.Saved, s.EngagementRate, s.FetchedAt,
		).Scan(&s.ID)
	})
	return translate(err)
}

// FindByPostID returns the snapshot of a post.
func (r *AnalyticsRepository) FindByPostID(ctx context.Context, postID int) (*model.Snapshot, error) {
	query := `
        SELECT id, post_id, likes_count, comments_count, shares_count, reach,
               impressions, saved_count, engagement_rate, fetched_at
        FROM analytics
        WHERE post_id = $1
    `
	var s model.Snapshot
	err := r.db.QueryRow(ctx, query, postID).Scan(
		&s.ID, &s.PostID, &s.Likes, &s.Comments, &s.Shares, &s.Reach,
		&s.Impressions, &s.Saved, &s.EngagementRate, &s.FetchedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// Aggregates counts every post and averages/sums the snapshots that exist.
// Posts without a snapshot contribute NULL, which AVG and SUM skip.
func (r *AnalyticsRepository) Aggregates(ctx context.Context) (model.Aggregates, error) {
	query := `
        SELECT
            COUNT(p.id),
            COALESCE(AVG(a.likes_count)::float8, 0),
            COALESCE(AVG(a.comments_count)::float8, 0),
            COALESCE(AVG(a.reach)::float8, 0),
            COALESCE(AVG(a.impressions)::float8, 0),
            COALESCE(AVG(a.engagement_rate), 0),
            COALESCE(SUM(a.likes_count), 0)::bigint,
            COALESCE(SUM(a.comments_count), 0)::bigint,
            COALESCE(SUM(a.reach), 0)::bigint,
            COALESCE(SUM(a.impressions), 0)::bigint
        FROM instagram_posts p
        LEFT JOIN analytics a ON a.post_id = p.id
    `
	var agg model.Aggregates
	err := otel.QueryRow(ctx, "analytics.aggregates", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query).Scan(
			&agg.TotalPosts,
			&agg.AvgLikes, &agg.AvgComments, &agg.AvgReach, &agg.AvgImpressions, &agg.AvgEngagementRate,
			&agg.TotalLikes, &agg.TotalComments, &agg.TotalReach, &agg.TotalImpressions,
		)
	})
	return agg, err
}

// TopPosts ranks posts that have a snapshot by engagement rate.
func (r *AnalyticsRepository) TopPosts(ctx context.Context, limit int) ([]model.TopPost, error) {
	query := `
        SELECT p.id, p.instagram_url, p.caption, a.likes_count, a.comments_count, a.reach,
               a.engagement_rate, u.first_name, u.last_name
        FROM instagram_posts p
        JOIN analytics a ON a.post_id = p.id
        JOIN users u ON u.id = p.user_id
        ORDER BY a.engagement_rate DESC, p.id ASC
        LIMIT $1
    `
	top := []model.TopPost{}
	err := otel.Query(ctx, "analytics.top_posts", query, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t model.TopPost
			if err := rows.Scan(&t.PostID, &t.URL, &t.Caption, &t.LikesCount, &t.CommentsCount,
				&t.Reach, &t.EngagementRate, &t.FirstName, &t.LastName); err != nil {
				return err
			}
			top = append(top, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return top, nil
}
