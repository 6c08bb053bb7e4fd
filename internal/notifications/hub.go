package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Wakeable is an open stream that can be asked to poll right away.
type Wakeable interface {
	Wake()
}

// Publisher announces that a user has a new notification, to every instance.
type Publisher interface {
	PublishWake(ctx context.Context, userID int64) error
}

// Subscriber delivers wake-ups published for a user.
type Subscriber interface {
	SubscribeUser(userID int64, handler func()) (cancel func(), err error)
}

// Hub maps users to their open notification streams on this instance. With a
// Redis pub/sub bridge, wake-ups reach streams held by other instances too;
// without one, they stay local. Streams keep polling either way, so a lost
// wake-up only delays delivery until the next tick.
type Hub struct {
	mu       sync.Mutex
	watchers map[int64]map[Wakeable]struct{}
	subs     map[int64]func() // cancels the Redis subscription per user
	pending  map[int64]bool   // subscriptions in flight
	pub      Publisher
	sub      Subscriber
	logger   *zap.Logger
}

// NewHub creates a hub. pub and sub may be nil.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		watchers: make(map[int64]map[Wakeable]struct{}),
		subs:     make(map[int64]func()),
		pending:  make(map[int64]bool),
		pub:      pub,
		sub:      sub,
		logger:   logger,
	}
}

// Register adds w to the user's watchers and returns the function removing
// it. A user with watchers but no subscription is subscribed to its channel,
// so a subscription that failed earlier is retried by the next watcher. The
// last watcher to leave cancels it.
func (h *Hub) Register(userID int64, w Wakeable) (unregister func()) {
	h.mu.Lock()
	if h.watchers[userID] == nil {
		h.watchers[userID] = make(map[Wakeable]struct{})
	}
	h.watchers[userID][w] = struct{}{}
	subscribe := h.claimSubscription(userID)
	h.mu.Unlock()

	if subscribe {
		h.subscribe(userID)
	}

	var once sync.Once
	return func() { once.Do(func() { h.unregister(userID, w) }) }
}

// claimSubscription reports whether the caller should subscribe the user.
// h.mu must be held.
func (h *Hub) claimSubscription(userID int64) bool {
	if h.sub == nil || h.pending[userID] {
		return false
	}
	if _, ok := h.subs[userID]; ok {
		return false
	}
	h.pending[userID] = true
	return true
}

// subscribe runs the Redis round trip without holding h.mu. The claiming
// watcher is still registered, so the subscription is always kept.
func (h *Hub) subscribe(userID int64) {
	cancel, err := h.sub.SubscribeUser(userID, func() { h.WakeLocal(userID) })

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, userID)
	if err != nil {
		h.logger.Warn("subscribe to wake-ups", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	h.subs[userID] = cancel
}

func (h *Hub) unregister(userID int64, w Wakeable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.watchers[userID]
	if !ok {
		return
	}
	delete(m, w)
	if len(m) > 0 {
		return
	}
	delete(h.watchers, userID)
	if cancel, ok := h.subs[userID]; ok {
		cancel()
		delete(h.subs, userID)
	}
}

// Subscribed reports whether this instance receives the user's published
// wake-ups.
func (h *Hub) Subscribed(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[userID]
	return ok
}

// Watchers returns the number of open streams for a user on this instance.
func (h *Hub) Watchers(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[userID])
}

// WakeLocal wakes the user's streams on this instance only.
func (h *Hub) WakeLocal(userID int64) {
	h.mu.Lock()
	targets := make([]Wakeable, 0, len(h.watchers[userID]))
	for w := range h.watchers[userID] {
		targets = append(targets, w)
	}
	h.mu.Unlock()

	for _, w := range targets {
		w.Wake()
	}
}

// Notify wakes the user's streams everywhere. When this instance holds the
// user's subscription, the subscription callback performs the local wake, so
// local streams are woken once. Otherwise they are woken directly.
func (h *Hub) Notify(ctx context.Context, userID int64) {
	if h.pub == nil {
		h.WakeLocal(userID)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := h.pub.PublishWake(ctx, userID); err != nil {
		h.logger.Warn("publish wake-up", zap.Int64("user_id", userID), zap.Error(err))
		h.WakeLocal(userID)
		return
	}
	if !h.Subscribed(userID) {
		h.WakeLocal(userID)
	}
}
