package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quillpress/backend/internal/models"
)

var errStoreDown = errors.New("connection refused")

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu       sync.Mutex
	totals   Totals
	signups  map[string]int
	users    []models.RecentUser
	articles []models.RecentArticle
	err      error
	calls    int

	since    time.Time
	timeZone string
}

func (f *fakeStore) setUsers(n int) {
	f.mu.Lock()
	f.totals.Users = n
	f.mu.Unlock()
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) Totals(context.Context) (Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.totals, f.err
}

func (f *fakeStore) SignupsByDay(_ context.Context, since time.Time, timeZone string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since, f.timeZone = since, timeZone
	return f.signups, f.err
}

func (f *fakeStore) RecentUsers(_ context.Context, limit int) ([]models.RecentUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.users) > limit {
		return f.users[:limit], f.err
	}
	return f.users, f.err
}

func (f *fakeStore) RecentArticles(_ context.Context, limit int) ([]models.RecentArticle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.articles) > limit {
		return f.articles[:limit], f.err
	}
	return f.articles, f.err
}
