package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	contractsmq "instapulse/contracts/mq"
	"instapulse/internal/model"
	"instapulse/pkg/otel"
	"instapulse/pkg/outbox"
)

type PostRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewPostRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *PostRepository {
	return &PostRepository{db: db, outbox: outboxRepo}
}

const postColumns = `p.id, p.user_id, p.instagram_url, p.instagram_post_id, p.caption, p.media_type,
        p.media_url, p.permalink, p.posted_at, p.created_at, p.updated_at`

const snapshotColumns = `a.likes_count, a.comments_count, a.shares_count, a.reach, a.impressions,
        a.saved_count, a.engagement_rate, a.fetched_at`

func postScanTargets(p *model.Post) []any {
	return []any{&p.ID, &p.UserID, &p.URL, &p.ExternalID, &p.Caption, &p.MediaType,
		&p.MediaURL, &p.Permalink, &p.PostedAt, &p.CreatedAt, &p.UpdatedAt}
}

func viewScanTargets(v *model.PostView) []any {
	return append(postScanTargets(&v.Post),
		&v.LikesCount, &v.CommentsCount, &v.SharesCount, &v.Reach, &v.Impressions,
		&v.SavedCount, &v.EngagementRate, &v.FetchedAt)
}

// CreateWithEvent inserts the post and its post.submitted outbox event in one
// transaction. A URL that is already stored yields ErrDuplicate.
func (r *PostRepository) CreateWithEvent(ctx context.Context, p *model.Post, traceID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO instagram_posts (user_id, instagram_url, instagram_post_id)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at
    `
	err = otel.QueryRow(ctx, "instagram_posts.insert", query, func(ctx context.Context) error {
		return tx.QueryRow(ctx, query, p.UserID, p.URL, p.ExternalID).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	})
	if err != nil {
		return translate(err)
	}

	aggregateID := int64(p.ID)
	payload := contractsmq.PostSubmittedPayload{
		PostID:      p.ID,
		UserID:      p.UserID,
		URL:         p.URL,
		ExternalID:  p.ExternalID,
		SubmittedAt: p.CreatedAt,
		TraceID:     traceID,
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "post", &aggregateID, contractsmq.RoutingKeyPostSubmitted, payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindByID returns post by id.
func (r *PostRepository) FindByID(ctx context.Context, id int) (*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM instagram_posts p WHERE p.id = $1`
	var p model.Post
	if err := r.db.QueryRow(ctx, query, id).Scan(postScanTargets(&p)...); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// FindByURL returns post by its canonical URL.
func (r *PostRepository) FindByURL(ctx context.Context, url string) (*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM instagram_posts p WHERE p.instagram_url = $1`
	var p model.Post
	if err := r.db.QueryRow(ctx, query, url).Scan(postScanTargets(&p)...); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// ListAll returns every post in submission order, for bulk refresh.
func (r *PostRepository) ListAll(ctx context.Context) ([]*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM instagram_posts p ORDER BY p.id ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(postScanTargets(&p)...); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

// UpdateMetadata back-fills caption and media fields.
func (r *PostRepository) UpdateMetadata(ctx context.Context, id int, m *model.PostMetadata) error {
	var postedAt *time.Time
	if !m.Timestamp.IsZero() {
		postedAt = &m.Timestamp
	}
	query := `
        UPDATE instagram_posts
        SET caption = $1, media_type = $2, media_url = $3, permalink = $4, posted_at = $5, updated_at = NOW()
        WHERE id = $6
    `
	tag, err := r.db.Exec(ctx, query, m.Caption, m.MediaType, m.MediaURL, m.Permalink, postedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListViewsByUser returns the account's posts with snapshot columns, newest first.
func (r *PostRepository) ListViewsByUser(ctx context.Context, userID int) ([]model.PostView, error) {
	query := `
        SELECT ` + postColumns + `, ` + snapshotColumns + `
        FROM instagram_posts p
        LEFT JOIN analytics a ON a.post_id = p.id
        WHERE p.user_id = $1
        ORDER BY p.created_at DESC, p.id DESC
    `
	return r.queryViews(ctx, query, false, userID)
}

// ListViews returns every post with submitter and snapshot columns, newest first.
func (r *PostRepository) ListViews(ctx context.Context) ([]model.PostView, error) {
	query := `
        SELECT ` + postColumns + `, ` + snapshotColumns + `, u.first_name, u.last_name, u.email
        FROM instagram_posts p
        JOIN users u ON u.id = p.user_id
        LEFT JOIN analytics a ON a.post_id = p.id
        ORDER BY p.created_at DESC, p.id DESC
    `
	return r.queryViews(ctx, query, true)
}

// FindView returns one post with submitter and snapshot columns.
func (r *PostRepository) FindView(ctx context.Context, id int) (*model.PostView, error) {
	query := `
        SELECT ` + postColumns + `, ` + snapshotColumns + `, u.first_name, u.last_name, u.email
        FROM instagram_posts p
        JOIN users u ON u.id = p.user_id
        LEFT JOIN analytics a ON a.post_id = p.id
        WHERE p.id = $1
    `
	var v model.PostView
	targets := append(viewScanTargets(&v), &v.FirstName, &v.LastName, &v.Email)
	if err := r.db.QueryRow(ctx, query, id).Scan(targets...); err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *PostRepository) queryViews(ctx context.Context, query string, withUser bool, args ...any) ([]model.PostView, error) {
	views := []model.PostView{}
	err := otel.Query(ctx, "instagram_posts.views", query, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var v model.PostView
			targets := viewScanTargets(&v)
			if withUser {
				targets = append(targets, &v.FirstName, &v.LastName, &v.Email)
			}
			if err := rows.Scan(targets...); err != nil {
				return err
			}
			views = append(views, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// Delete removes the snapshot and then the post in one transaction.
func (r *PostRepository) Delete(ctx context.Context, id int) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM analytics WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete analytics: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM instagram_posts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
