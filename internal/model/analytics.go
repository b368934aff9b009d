package model

import (
	"errors"
	"math"
	"time"
)

// Insights are the raw engagement counts returned by an insights source.
type Insights struct {
	Likes       int64 `json:"likes_count"`
	Comments    int64 `json:"comments_count"`
	Shares      int64 `json:"shares_count"`
	Reach       int64 `json:"reach"`
	Impressions int64 `json:"impressions"`
	Saved       int64 `json:"saved_count"`
}

var ErrNegativeCount = errors.New("insights counts must be non-negative")

func (i Insights) Validate() error {
	if i.Likes < 0 || i.Comments < 0 || i.Shares < 0 || i.Reach < 0 || i.Impressions < 0 || i.Saved < 0 {
		return ErrNegativeCount
	}
	return nil
}

// EngagementRate is 100 * (likes + comments + shares + saved) / reach,
// or 0 when reach is not positive.
func (i Insights) EngagementRate() float64 {
	if i.Reach <= 0 {
		return 0
	}
	return 100 * float64(i.Likes+i.Comments+i.Shares+i.Saved) / float64(i.Reach)
}

// Snapshot is the single stored analytics row of a post.
type Snapshot struct {
	ID     int `json:"id"`
	PostID int `json:"post_id"`
	Insights
	EngagementRate float64   `json:"engagement_rate"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// NewSnapshot derives the engagement rate from the counts it stores.
func NewSnapshot(postID int, in Insights, fetchedAt time.Time) Snapshot {
	return Snapshot{
		PostID:         postID,
		Insights:       in,
		EngagementRate: in.EngagementRate(),
		FetchedAt:      fetchedAt,
	}
}

// Aggregates are the raw store-side aggregates over every post.
// Averages are over posts with a snapshot only.
type Aggregates struct {
	TotalPosts        int
	AvgLikes          float64
	AvgComments       float64
	AvgReach          float64
	AvgImpressions    float64
	AvgEngagementRate float64
	TotalLikes        int64
	TotalComments     int64
	TotalReach        int64
	TotalImpressions  int64
}

type Summary struct {
	TotalPosts            int     `json:"totalPosts"`
	AverageLikes          int64   `json:"averageLikes"`
	AverageComments       int64   `json:"averageComments"`
	AverageReach          int64   `json:"averageReach"`
	AverageImpressions    int64   `json:"averageImpressions"`
	AverageEngagementRate float64 `json:"averageEngagementRate"`
	TotalLikes            int64   `json:"totalLikes"`
	TotalComments         int64   `json:"totalComments"`
	TotalReach            int64   `json:"totalReach"`
	TotalImpressions      int64   `json:"totalImpressions"`
}

// SummaryFrom rounds counts to the nearest integer and the rate to two decimals.
func SummaryFrom(a Aggregates) Summary {
	return Summary{
		TotalPosts:            a.TotalPosts,
		AverageLikes:          int64(math.Round(a.AvgLikes)),
		AverageComments:       int64(math.Round(a.AvgComments)),
		AverageReach:          int64(math.Round(a.AvgReach)),
		AverageImpressions:    int64(math.Round(a.AvgImpressions)),
		AverageEngagementRate: Round2(a.AvgEngagementRate),
		TotalLikes:            a.TotalLikes,
		TotalComments:         a.TotalComments,
		TotalReach:            a.TotalReach,
		TotalImpressions:      a.TotalImpressions,
	}
}

type TopPost struct {
	PostID         int     `json:"id"`
	URL            string  `json:"instagram_url"`
	Caption        *string `json:"caption"`
	LikesCount     int64   `json:"likes_count"`
	CommentsCount  int64   `json:"comments_count"`
	Reach          int64   `json:"reach"`
	EngagementRate float64 `json:"engagement_rate"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
}

type SummaryReport struct {
	Summary  Summary   `json:"summary"`
	TopPosts []TopPost `json:"topPosts"`
}

type AccountSummary struct {
	TotalPosts            int     `json:"totalPosts"`
	PostsWithAnalytics    int     `json:"postsWithAnalytics"`
	AverageLikes          int64   `json:"averageLikes"`
	AverageEngagementRate float64 `json:"averageEngagementRate"`
}

// SummarizeAccount averages likes and rate over the posts that have a snapshot.
func SummarizeAccount(posts []PostView) AccountSummary {
	s := AccountSummary{TotalPosts: len(posts)}
	var likes int64
	var rate float64
	for i := range posts {
		if !posts[i].HasAnalytics() {
			continue
		}
		s.PostsWithAnalytics++
		likes += *posts[i].LikesCount
		if posts[i].EngagementRate != nil {
			rate += *posts[i].EngagementRate
		}
	}
	if s.PostsWithAnalytics > 0 {
		n := float64(s.PostsWithAnalytics)
		s.AverageLikes = int64(math.Round(float64(likes) / n))
		s.AverageEngagementRate = Round2(rate / n)
	}
	return s
}

type AccountReport struct {
	Posts   []PostView     `json:"posts"`
	Summary AccountSummary `json:"summary"`
}

type RefreshResult struct {
	Message string `json:"message"`
	Updated int    `json:"updated"`
	Errors  int    `json:"errors"`
	Total   int    `json:"total"`
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
