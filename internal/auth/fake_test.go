package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/quillpress/backend/internal/models"
)

// fakeUsers is an in-memory Users store.
type fakeUsers struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	nextID int64
	err    error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]*models.User), nextID: 100}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeUsers) Create(_ context.Context, email, hash, name string, role models.Role) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrEmailTaken
		}
	}
	f.nextID++
	u := &models.User{ID: f.nextID, Email: email, Password: hash, Name: name, Role: role, CreatedAt: time.Now()}
	f.users[u.ID] = u
	return u, nil
}

var errStoreDown = errors.New("connection refused")
