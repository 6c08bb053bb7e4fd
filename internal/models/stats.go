package models

import "time"

// Article statuses used by the moderation queue.
const (
	ArticleStatusPending  = "PENDING"
	ArticleStatusApproved = "APPROVED"
	ArticleStatusRejected = "REJECTED"
)

// DailyCount is one bucket of the new-user histogram.
type DailyCount struct {
	Name  string `json:"name"`
	Users int    `json:"users"`
}

// RecentUser is a dashboard row for a newly registered user.
type RecentUser struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     *string   `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecentArticle is a dashboard row for a newly created article.
type RecentArticle struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Status     string    `json:"status"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DashboardStats is the payload pushed on the admin stats stream. Field order
// is part of the wire contract: the stream compares encoded bytes.
type DashboardStats struct {
	TotalUsers      int             `json:"totalUsers"`
	TotalArticles   int             `json:"totalArticles"`
	PendingArticles int             `json:"pendingArticles"`
	TotalComments   int             `json:"totalComments"`
	UserGrowth      []DailyCount    `json:"userGrowth"`
	RecentUsers     []RecentUser    `json:"recentUsers"`
	RecentArticles  []RecentArticle `json:"recentArticles"`
}
