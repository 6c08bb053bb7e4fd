package notifications

import (
	"context"
	"fmt"

	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/internal/stream"
)

// DefaultLimit is how many notifications a feed snapshot carries.
const DefaultLimit = 20

// Store is the read side of the notification feed.
type Store interface {
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
}

// Provider computes a user's feed: the newest notifications plus the unread
// count over all of them. The two queries are independent, so the count may
// include unread notifications older than the listed ones.
type Provider struct {
	store Store
	limit int
}

// NewProvider creates a feed provider. A non-positive limit means
// DefaultLimit.
func NewProvider(store Store, limit int) *Provider {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Provider{store: store, limit: limit}
}

// Snapshot implements stream.Provider.
func (p *Provider) Snapshot(ctx context.Context, subject stream.Subject) (models.NotificationFeed, error) {
	list, err := p.store.ListRecent(ctx, subject.UserID, p.limit)
	if err != nil {
		return models.NotificationFeed{}, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := p.store.CountUnread(ctx, subject.UserID)
	if err != nil {
		return models.NotificationFeed{}, fmt.Errorf("count unread: %w", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return models.NotificationFeed{Notifications: list, UnreadCount: unread}, nil
}

// NewDetector returns the change detector for feed streams: a frame goes out
// only when the newest notification changes.
func NewDetector() *stream.NewestIDDetector[models.NotificationFeed] {
	return stream.NewNewestIDDetector[models.NotificationFeed](models.NotificationFeed.NewestID)
}
