package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/quillpress/backend/internal/models"
)

var errStoreDown = errors.New("connection refused")

type storedNotification struct {
	userID int64
	models.Notification
}

// fakeRepo is an in-memory Repo.
type fakeRepo struct {
	mu     sync.Mutex
	rows   []storedNotification
	nextID int64
	users  map[int64]bool
	err    error
	calls  int
}

func newFakeRepo(userIDs ...int64) *fakeRepo {
	f := &fakeRepo{users: make(map[int64]bool)}
	for _, id := range userIDs {
		f.users[id] = true
	}
	return f
}

func (f *fakeRepo) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRepo) add(userID int64, read bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows = append(f.rows, storedNotification{userID: userID, Notification: models.Notification{
		ID: f.nextID, Type: models.NotificationSystem, Message: "hello", Read: read, CreatedAt: time.Unix(f.nextID, 0).UTC(),
	}})
	return f.nextID
}

func (f *fakeRepo) ListRecent(_ context.Context, userID int64, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Notification
	for _, r := range f.rows {
		if r.userID == userID {
			out = append(out, r.Notification)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) CountUnread(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, r := range f.rows {
		if r.userID == userID && !r.Read {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) Create(_ context.Context, p CreateParams) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Notification{}, f.err
	}
	if !f.users[p.UserID] {
		return models.Notification{}, ErrUnknownReference
	}
	f.nextID++
	n := models.Notification{ID: f.nextID, Type: p.Type, Message: p.Message, CreatedAt: time.Unix(f.nextID, 0).UTC()}
	f.rows = append(f.rows, storedNotification{userID: p.UserID, Notification: n})
	return n, nil
}

func (f *fakeRepo) MarkRead(_ context.Context, userID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].userID == userID {
			f.rows[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for i := range f.rows {
		if f.rows[i].userID == userID && !f.rows[i].Read {
			f.rows[i].Read = true
			n++
		}
	}
	return n, nil
}

// fakeBus is an in-process Publisher and Subscriber.
type fakeBus struct {
	mu         sync.Mutex
	handlers   map[int64]map[int]func()
	nextSub    int
	subscribes int
	cancels    int
	publishErr error
	subErr     error
	// When set, SubscribeUser signals entered and waits on release.
	entered chan struct{}
	release chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[int64]map[int]func())}
}

func (b *fakeBus) PublishWake(_ context.Context, userID int64) error {
	b.mu.Lock()
	if b.publishErr != nil {
		b.mu.Unlock()
		return b.publishErr
	}
	var hs []func()
	for _, h := range b.handlers[userID] {
		hs = append(hs, h)
	}
	b.mu.Unlock()
	for _, h := range hs {
		h()
	}
	return nil
}

func (b *fakeBus) SubscribeUser(userID int64, handler func()) (func(), error) {
	if b.release != nil {
		b.entered <- struct{}{}
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subErr != nil {
		return nil, b.subErr
	}
	b.subscribes++
	b.nextSub++
	id := b.nextSub
	if b.handlers[userID] == nil {
		b.handlers[userID] = make(map[int]func())
	}
	b.handlers[userID][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cancels++
		delete(b.handlers[userID], id)
	}, nil
}

func (b *fakeBus) setSubErr(err error) {
	b.mu.Lock()
	b.subErr = err
	b.mu.Unlock()
}

func (b *fakeBus) counts() (subscribes, cancels int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes, b.cancels
}

// wakeCounter counts Wake calls.
type wakeCounter struct {
	mu    sync.Mutex
	wakes int
}

func (w *wakeCounter) Wake() {
	w.mu.Lock()
	w.wakes++
	w.mu.Unlock()
}

func (w *wakeCounter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes
}
