package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestEngagementRate(t *testing.T) {
	tests := []struct {
		name string
		in   Insights
		want float64
	}{
		{"zero reach", Insights{Likes: 10, Comments: 5, Reach: 0}, 0},
		{"negative reach", Insights{Likes: 10, Reach: -1}, 0},
		{"all counts", Insights{Likes: 50, Comments: 20, Shares: 10, Saved: 20, Reach: 1000}, 10},
		{"above 100 percent", Insights{Likes: 300, Reach: 100}, 300},
		{"fraction", Insights{Likes: 1, Reach: 3}, 100.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.EngagementRate(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EngagementRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSnapshotDerivesRate(t *testing.T) {
	in := Insights{Likes: 100, Comments: 10, Shares: 5, Saved: 5, Reach: 600}
	s := NewSnapshot(7, in, time.Unix(0, 0))
	if s.PostID != 7 || s.EngagementRate != 20 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestInsightsValidate(t *testing.T) {
	if err := (Insights{Likes: 1}).Validate(); err != nil {
		t.Errorf("valid insights rejected: %v", err)
	}
	if err := (Insights{Saved: -1}).Validate(); err != ErrNegativeCount {
		t.Errorf("negative saved accepted: %v", err)
	}
}

func TestSummaryFromRounds(t *testing.T) {
	s := SummaryFrom(Aggregates{
		TotalPosts:        4,
		AvgLikes:          100.5,
		AvgComments:       10.4,
		AvgReach:          999.49,
		AvgImpressions:    0,
		AvgEngagementRate: 12.3456,
		TotalLikes:        301,
	})
	if s.AverageLikes != 101 || s.AverageComments != 10 || s.AverageReach != 999 {
		t.Errorf("rounded counts = %+v", s)
	}
	if s.AverageEngagementRate != 12.35 {
		t.Errorf("rate = %v, want 12.35", s.AverageEngagementRate)
	}
	if s.TotalPosts != 4 || s.TotalLikes != 301 {
		t.Errorf("totals = %+v", s)
	}
}

func TestSummarizeAccount(t *testing.T) {
	with := func(likes int64, rate float64) PostView {
		return PostView{LikesCount: &likes, EngagementRate: &rate}
	}
	posts := []PostView{with(100, 10), {}, with(201, 20.556)}

	got := SummarizeAccount(posts)
	want := AccountSummary{TotalPosts: 3, PostsWithAnalytics: 2, AverageLikes: 151, AverageEngagementRate: 15.28}
	if got != want {
		t.Errorf("SummarizeAccount() = %+v, want %+v", got, want)
	}

	if empty := SummarizeAccount(nil); empty != (AccountSummary{}) {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestPostViewJSONNullsMissingSnapshot(t *testing.T) {
	v := PostView{Post: Post{ID: 1, URL: "https://instagram.com/p/abc/"}}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"likes_count":null`, `"engagement_rate":null`, `"instagram_url":"https://instagram.com/p/abc/"`} {
		if !strings.Contains(string(b), field) {
			t.Errorf("json %s missing %s", b, field)
		}
	}
}
