package models

import "time"

// NotificationType identifies what produced a notification.
type NotificationType string

const (
	NotificationLike            NotificationType = "LIKE"
	NotificationClap            NotificationType = "CLAP"
	NotificationComment         NotificationType = "COMMENT"
	NotificationFollow          NotificationType = "FOLLOW"
	NotificationArticleApproved NotificationType = "ARTICLE_APPROVED"
	NotificationArticleRejected NotificationType = "ARTICLE_REJECTED"
	NotificationSystem          NotificationType = "SYSTEM"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationClap, NotificationComment, NotificationFollow,
		NotificationArticleApproved, NotificationArticleRejected, NotificationSystem:
		return true
	}
	return false
}

// NotificationActor is the user whose action produced a notification.
type NotificationActor struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image,omitempty"`
}

// NotificationArticle is the article a notification refers to.
type NotificationArticle struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// Notification is a single entry in a user's notification feed.
type Notification struct {
	ID        int64                `json:"id"`
	Type      NotificationType     `json:"type"`
	Message   string               `json:"message"`
	Read      bool                 `json:"read"`
	Actor     *NotificationActor   `json:"actor,omitempty"`
	Article   *NotificationArticle `json:"article,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// NotificationFeed is the payload pushed on the notification stream.
type NotificationFeed struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

// NewestID returns the id of the first (newest) notification, if any.
func (f NotificationFeed) NewestID() (int64, bool) {
	if len(f.Notifications) == 0 {
		return 0, false
	}
	return f.Notifications[0].ID, true
}
