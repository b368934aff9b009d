package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	contractsmq "instapulse/contracts/mq"
	"instapulse/internal/model"
	"instapulse/internal/repository"
	"instapulse/pkg/mq"
	"instapulse/pkg/rbac"
)

// MemStore is an in-memory stand-in for the PostgreSQL repositories.
// Accounts, Posts and Analytics expose views that share one state so
// cascades behave like the real schema.
type MemStore struct {
	mu        sync.Mutex
	clock     time.Time
	accounts  map[int]*model.Account
	posts     map[int]*model.Post
	snapshots map[int]*model.Snapshot
	nextID    map[string]int

	publisher mq.EventPublisher
	events    []contractsmq.PostSubmittedPayload

	// UpsertErr, when set, is returned by Upsert for the given post ids.
	UpsertErr map[int]error
}

func NewMemStore() *MemStore {
	return &MemStore{
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		accounts:  map[int]*model.Account{},
		posts:     map[int]*model.Post{},
		snapshots: map[int]*model.Snapshot{},
		nextID:    map[string]int{},
		UpsertErr: map[int]error{},
	}
}

// WithPublisher makes CreateWithEvent publish the post.submitted payload.
func (m *MemStore) WithPublisher(p mq.EventPublisher) *MemStore {
	m.publisher = p
	return m
}

func (m *MemStore) Accounts() *MemAccounts   { return &MemAccounts{m} }
func (m *MemStore) Posts() *MemPosts         { return &MemPosts{m} }
func (m *MemStore) Analytics() *MemAnalytics { return &MemAnalytics{m} }

// Events returns the post.submitted payloads recorded so far.
func (m *MemStore) Events() []contractsmq.PostSubmittedPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]contractsmq.PostSubmittedPayload(nil), m.events...)
}

// SnapshotCount returns how many snapshot rows exist.
func (m *MemStore) SnapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

// tick advances the fake clock so creation order is strictly increasing.
func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MemStore) id(table string) int {
	m.nextID[table]++
	return m.nextID[table]
}

// MemAccounts mirrors repository.AccountRepository.
type MemAccounts struct{ m *MemStore }

func (a *MemAccounts) Create(_ context.Context, acc *model.Account) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	for _, existing := range a.m.accounts {
		if existing.Email == acc.Email {
			return repository.ErrDuplicate
		}
	}
	acc.ID = a.m.id("users")
	acc.CreatedAt = a.m.tick()
	acc.UpdatedAt = acc.CreatedAt
	stored := *acc
	a.m.accounts[acc.ID] = &stored
	return nil
}

func (a *MemAccounts) EnsureAdmin(ctx context.Context, acc *model.Account) (bool, error) {
	acc.Role = rbac.RoleAdmin
	err := a.Create(ctx, acc)
	if err == repository.ErrDuplicate {
		return false, nil
	}
	return err == nil, err
}

func (a *MemAccounts) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	for _, acc := range a.m.accounts {
		if acc.Email == email {
			c := *acc
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (a *MemAccounts) FindByID(_ context.Context, id int) (*model.Account, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	acc, ok := a.m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *acc
	return &c, nil
}

func (a *MemAccounts) List(_ context.Context) ([]*model.Account, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	list := []*model.Account{}
	for _, acc := range a.m.accounts {
		c := *acc
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (a *MemAccounts) Delete(_ context.Context, id int) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if _, ok := a.m.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(a.m.accounts, id)
	for pid, p := range a.m.posts {
		if p.UserID == id {
			delete(a.m.posts, pid)
			delete(a.m.snapshots, pid)
		}
	}
	return nil
}

// MemPosts mirrors repository.PostRepository.
type MemPosts struct{ m *MemStore }

func (p *MemPosts) CreateWithEvent(ctx context.Context, post *model.Post, traceID string) error {
	p.m.mu.Lock()
	for _, existing := range p.m.posts {
		if existing.URL == post.URL {
			p.m.mu.Unlock()
			return repository.ErrDuplicate
		}
	}
	post.ID = p.m.id("instagram_posts")
	post.CreatedAt = p.m.tick()
	post.UpdatedAt = post.CreatedAt
	stored := *post
	p.m.posts[post.ID] = &stored

	payload := contractsmq.PostSubmittedPayload{
		PostID:      post.ID,
		UserID:      post.UserID,
		URL:         post.URL,
		ExternalID:  post.ExternalID,
		SubmittedAt: post.CreatedAt,
		TraceID:     traceID,
	}
	p.m.events = append(p.m.events, payload)
	publisher := p.m.publisher
	p.m.mu.Unlock()

	if publisher != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return publisher.PublishWithContext(ctx, contractsmq.RoutingKeyPostSubmitted, body)
	}
	return nil
}

func (p *MemPosts) FindByID(_ context.Context, id int) (*model.Post, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	post, ok := p.m.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *post
	return &c, nil
}

func (p *MemPosts) FindByURL(_ context.Context, url string) (*model.Post, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for _, post := range p.m.posts {
		if post.URL == url {
			c := *post
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (p *MemPosts) ListAll(_ context.Context) ([]*model.Post, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	list := []*model.Post{}
	for _, post := range p.m.posts {
		c := *post
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (p *MemPosts) UpdateMetadata(_ context.Context, id int, meta *model.PostMetadata) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	post, ok := p.m.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	caption, mediaType, mediaURL, permalink := meta.Caption, meta.MediaType, meta.MediaURL, meta.Permalink
	post.Caption, post.MediaType, post.MediaURL, post.Permalink = &caption, &mediaType, &mediaURL, &permalink
	if !meta.Timestamp.IsZero() {
		ts := meta.Timestamp
		post.PostedAt = &ts
	}
	post.UpdatedAt = p.m.tick()
	return nil
}

func (p *MemPosts) ListViewsByUser(_ context.Context, userID int) ([]model.PostView, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.views(func(post *model.Post) bool { return post.UserID == userID }, false), nil
}

func (p *MemPosts) ListViews(_ context.Context) ([]model.PostView, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.views(func(*model.Post) bool { return true }, true), nil
}

func (p *MemPosts) FindView(_ context.Context, id int) (*model.PostView, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	views := p.views(func(post *model.Post) bool { return post.ID == id }, true)
	if len(views) == 0 {
		return nil, repository.ErrNotFound
	}
	return &views[0], nil
}

// attachSnapshot fills the snapshot columns the way the repository join does.
func attachSnapshot(v *model.PostView, s *model.Snapshot) {
	if s == nil {
		return
	}
	likes, comments, shares := s.Likes, s.Comments, s.Shares
	reach, impressions, saved := s.Reach, s.Impressions, s.Saved
	rate, fetched := s.EngagementRate, s.FetchedAt
	v.LikesCount, v.CommentsCount, v.SharesCount = &likes, &comments, &shares
	v.Reach, v.Impressions, v.SavedCount = &reach, &impressions, &saved
	v.EngagementRate, v.FetchedAt = &rate, &fetched
}

// views builds newest-first views; caller holds the lock.
func (p *MemPosts) views(keep func(*model.Post) bool, withUser bool) []model.PostView {
	views := []model.PostView{}
	for _, post := range p.m.posts {
		if !keep(post) {
			continue
		}
		v := model.PostView{Post: *post}
		attachSnapshot(&v, p.m.snapshots[post.ID])
		if withUser {
			if acc, ok := p.m.accounts[post.UserID]; ok {
				first, last, email := acc.FirstName, acc.LastName, acc.Email
				v.FirstName, v.LastName, v.Email = &first, &last, &email
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return views
}

func (p *MemPosts) Delete(_ context.Context, id int) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if _, ok := p.m.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(p.m.snapshots, id)
	delete(p.m.posts, id)
	return nil
}

// MemAnalytics mirrors repository.AnalyticsRepository.
type MemAnalytics struct{ m *MemStore }

func (a *MemAnalytics) Upsert(_ context.Context, s *model.Snapshot) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if err := a.m.UpsertErr[s.PostID]; err != nil {
		return err
	}
	if _, ok := a.m.posts[s.PostID]; !ok {
		return repository.ErrNotFound
	}
	if existing, ok := a.m.snapshots[s.PostID]; ok {
		s.ID = existing.ID
	} else {
		s.ID = a.m.id("analytics")
	}
	stored := *s
	a.m.snapshots[s.PostID] = &stored
	return nil
}

func (a *MemAnalytics) FindByPostID(_ context.Context, postID int) (*model.Snapshot, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	s, ok := a.m.snapshots[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (a *MemAnalytics) Aggregates(_ context.Context) (model.Aggregates, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()

	agg := model.Aggregates{TotalPosts: len(a.m.posts)}
	n := 0
	var rate float64
	for pid, s := range a.m.snapshots {
		if _, ok := a.m.posts[pid]; !ok {
			continue
		}
		n++
		agg.TotalLikes += s.Likes
		agg.TotalComments += s.Comments
		agg.TotalReach += s.Reach
		agg.TotalImpressions += s.Impressions
		rate += s.EngagementRate
	}
	if n > 0 {
		f := float64(n)
		agg.AvgLikes = float64(agg.TotalLikes) / f
		agg.AvgComments = float64(agg.TotalComments) / f
		agg.AvgReach = float64(agg.TotalReach) / f
		agg.AvgImpressions = float64(agg.TotalImpressions) / f
		agg.AvgEngagementRate = rate / f
	}
	return agg, nil
}

func (a *MemAnalytics) TopPosts(_ context.Context, limit int) ([]model.TopPost, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()

	top := []model.TopPost{}
	for pid, s := range a.m.snapshots {
		post, ok := a.m.posts[pid]
		if !ok {
			continue
		}
		acc, ok := a.m.accounts[post.UserID]
		if !ok {
			continue
		}
		top = append(top, model.TopPost{
			PostID:         post.ID,
			URL:            post.URL,
			Caption:        post.Caption,
			LikesCount:     s.Likes,
			CommentsCount:  s.Comments,
			Reach:          s.Reach,
			EngagementRate: s.EngagementRate,
			FirstName:      acc.FirstName,
			LastName:       acc.LastName,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].EngagementRate != top[j].EngagementRate {
			return top[i].EngagementRate > top[j].EngagementRate
		}
		return top[i].PostID < top[j].PostID
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}
