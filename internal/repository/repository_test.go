package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"instapulse/internal/model"
	"instapulse/internal/repository"
	"instapulse/internal/testutil"
	"instapulse/pkg/outbox"
	"instapulse/pkg/rbac"
)

type repos struct {
	accounts  *repository.AccountRepository
	posts     *repository.PostRepository
	analytics *repository.AnalyticsRepository
	outbox    *outbox.Repository
}

func setup(t *testing.T) repos {
	pool := testutil.SetupTestDB(t)
	ob := outbox.NewRepository(pool)
	return repos{
		accounts:  repository.NewAccountRepository(pool),
		posts:     repository.NewPostRepository(pool, ob),
		analytics: repository.NewAnalyticsRepository(pool),
		outbox:    ob,
	}
}

func createAccount(t *testing.T, r repos, email string) *model.Account {
	t.Helper()
	a := testutil.NewAccount(t, email, "secret1", rbac.RoleIntern)
	if err := r.accounts.Create(context.Background(), a); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return a
}

func createPost(t *testing.T, r repos, userID int, code string) *model.Post {
	t.Helper()
	p := &model.Post{UserID: userID, URL: "https://www.instagram.com/p/" + code + "/", ExternalID: code}
	if err := r.posts.CreateWithEvent(context.Background(), p, "trace-"+code); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	return p
}

func TestCreateWithEventWritesOutbox(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	a := createAccount(t, r, "intern@company.com")
	p := createPost(t, r, a.ID, "abc")

	events, err := r.outbox.GetPendingEvents(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingEvents: %v", err)
	}
	if len(events) != 1 || events[0].RoutingKey != "post.submitted" {
		t.Fatalf("events = %+v", events)
	}
	if events[0].AggregateID == nil || *events[0].AggregateID != int64(p.ID) {
		t.Errorf("aggregate id = %v, want %d", events[0].AggregateID, p.ID)
	}
}

func TestDuplicateURLRejected(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	a := createAccount(t, r, "intern@company.com")
	createPost(t, r, a.ID, "dup")

	again := &model.Post{UserID: a.ID, URL: "https://www.instagram.com/p/dup/", ExternalID: "dup"}
	if err := r.posts.CreateWithEvent(ctx, again, ""); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("second insert err = %v, want ErrDuplicate", err)
	}

	all, err := r.posts.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("posts = %d, want 1", len(all))
	}

	events, _ := r.outbox.GetPendingEvents(ctx, 10)
	if len(events) != 1 {
		t.Errorf("outbox events = %d, want 1 (failed insert must roll back)", len(events))
	}
}

func TestUpsertReplacesInPlace(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	a := createAccount(t, r, "intern@company.com")
	p := createPost(t, r, a.ID, "up")

	first := model.NewSnapshot(p.ID, model.Insights{Likes: 10, Reach: 100}, time.Now())
	if err := r.analytics.Upsert(ctx, &first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := model.NewSnapshot(p.ID, model.Insights{Likes: 3, Comments: 2, Reach: 50}, time.Now())
	if err := r.analytics.Upsert(ctx, &second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("snapshot id changed: %d -> %d", first.ID, second.ID)
	}
	got, err := r.analytics.FindByPostID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Likes != 3 || got.Comments != 2 || got.Reach != 50 || got.EngagementRate != 10 {
		t.Errorf("stored snapshot = %+v", got)
	}

	agg, err := r.analytics.Aggregates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalLikes != 3 {
		t.Errorf("total likes = %d, want 3 (no accumulation)", agg.TotalLikes)
	}
}

func TestAggregatesOverZeroPosts(t *testing.T) {
	r := setup(t)
	agg, err := r.analytics.Aggregates(context.Background())
	if err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if agg != (model.Aggregates{}) {
		t.Errorf("aggregates = %+v, want zero value", agg)
	}
	top, err := r.analytics.TopPosts(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if top == nil || len(top) != 0 {
		t.Errorf("top = %#v, want empty non-nil slice", top)
	}
}

func TestTopPostsRanking(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	a := createAccount(t, r, "intern@company.com")

	rates := map[string]int64{"A": 10, "B": 30, "C": 20}
	ids := map[string]int{}
	for _, code := range []string{"A", "B", "C", "D"} {
		p := createPost(t, r, a.ID, code)
		ids[code] = p.ID
		if likes, ok := rates[code]; ok {
			s := model.NewSnapshot(p.ID, model.Insights{Likes: likes, Reach: 100}, time.Now())
			if err := r.analytics.Upsert(ctx, &s); err != nil {
				t.Fatal(err)
			}
		}
	}

	top, err := r.analytics.TopPosts(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{ids["B"], ids["C"], ids["A"]}
	if len(top) != len(want) {
		t.Fatalf("top = %+v, want %d entries", top, len(want))
	}
	for i := range want {
		if top[i].PostID != want[i] {
			t.Errorf("top[%d] = %d, want %d", i, top[i].PostID, want[i])
		}
	}

	agg, err := r.analytics.Aggregates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalPosts != 4 {
		t.Errorf("total posts = %d, want 4", agg.TotalPosts)
	}
	if agg.AvgEngagementRate != 20 {
		t.Errorf("avg rate = %v, want 20", agg.AvgEngagementRate)
	}
}

func TestDeleteCascades(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	a := createAccount(t, r, "intern@company.com")
	p := createPost(t, r, a.ID, "gone")
	s := model.NewSnapshot(p.ID, model.Insights{Likes: 1, Reach: 10}, time.Now())
	if err := r.analytics.Upsert(ctx, &s); err != nil {
		t.Fatal(err)
	}

	if err := r.posts.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.analytics.FindByPostID(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("snapshot survived post delete: %v", err)
	}
	if err := r.posts.Delete(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	p2 := createPost(t, r, a.ID, "owned")
	if err := r.accounts.Delete(ctx, a.ID); err != nil {
		t.Fatalf("account delete: %v", err)
	}
	if _, err := r.posts.FindByID(ctx, p2.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("post survived account delete: %v", err)
	}
}

func TestListViewsNullSnapshot(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	a := createAccount(t, r, "intern@company.com")
	older := createPost(t, r, a.ID, "old")
	newer := createPost(t, r, a.ID, "new")
	s := model.NewSnapshot(older.ID, model.Insights{Likes: 5, Reach: 10}, time.Now())
	if err := r.analytics.Upsert(ctx, &s); err != nil {
		t.Fatal(err)
	}

	views, err := r.posts.ListViewsByUser(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].ID != newer.ID {
		t.Fatalf("views = %+v, want newest first", views)
	}
	if views[0].HasAnalytics() {
		t.Error("unrefreshed post reports analytics")
	}
	if !views[1].HasAnalytics() || *views[1].LikesCount != 5 {
		t.Errorf("refreshed view = %+v", views[1])
	}

	all, err := r.posts.ListViews(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Email == nil || *all[0].Email != a.Email {
		t.Errorf("all views = %+v", all)
	}
}

func TestAccountDuplicateEmail(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	createAccount(t, r, "dup@company.com")
	again := testutil.NewAccount(t, "dup@company.com", "secret1", rbac.RoleAdmin)
	if err := r.accounts.Create(ctx, again); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}

	admin := testutil.NewAccount(t, "dup@company.com", "admin123", rbac.RoleAdmin)
	created, err := r.accounts.EnsureAdmin(ctx, admin)
	if err != nil || created {
		t.Errorf("EnsureAdmin on taken email = %v, %v", created, err)
	}
}
