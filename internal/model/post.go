package model

import "time"

type Post struct {
	ID         int        `json:"id"`
	UserID     int        `json:"user_id"`
	URL        string     `json:"instagram_url"`
	ExternalID string     `json:"instagram_post_id"`
	Caption    *string    `json:"caption"`
	MediaType  *string    `json:"media_type"`
	MediaURL   *string    `json:"media_url"`
	Permalink  *string    `json:"permalink"`
	PostedAt   *time.Time `json:"timestamp"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PostMetadata is the caption and media data back-filled after submission.
type PostMetadata struct {
	Caption   string    `json:"caption"`
	MediaType string    `json:"media_type"`
	MediaURL  string    `json:"media_url"`
	Permalink string    `json:"permalink"`
	Timestamp time.Time `json:"timestamp"`
}

// PostView is a post joined with its submitter and its snapshot.
// Snapshot columns are nil when the post has never been refreshed.
type PostView struct {
	Post

	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`

	LikesCount     *int64     `json:"likes_count"`
	CommentsCount  *int64     `json:"comments_count"`
	SharesCount    *int64     `json:"shares_count"`
	Reach          *int64     `json:"reach"`
	Impressions    *int64     `json:"impressions"`
	SavedCount     *int64     `json:"saved_count"`
	EngagementRate *float64   `json:"engagement_rate"`
	FetchedAt      *time.Time `json:"fetched_at"`
}

func (v *PostView) HasAnalytics() bool {
	return v.LikesCount != nil
}
