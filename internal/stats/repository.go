package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillpress/backend/internal/models"
)

// Totals are the dashboard's headline counters.
type Totals struct {
	Users           int
	Articles        int
	PendingArticles int
	Comments        int
}

// Repository runs the dashboard aggregate queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Totals counts users, approved articles, articles awaiting moderation, and
// comments in one round trip.
func (r *Repository) Totals(ctx context.Context) (Totals, error) {
	const q = `SELECT
		(SELECT count(*) FROM users),
		(SELECT count(*) FROM articles WHERE status = $1),
		(SELECT count(*) FROM articles WHERE status = $2),
		(SELECT count(*) FROM comments)`
	var t Totals
	err := r.pool.QueryRow(ctx, q, models.ArticleStatusApproved, models.ArticleStatusPending).
		Scan(&t.Users, &t.Articles, &t.PendingArticles, &t.Comments)
	return t, err
}

// SignupsByDay counts users created at or after since, grouped by calendar
// day in the named time zone. Keys are formatted as 2006-01-02.
func (r *Repository) SignupsByDay(ctx context.Context, since time.Time, timeZone string) (map[string]int, error) {
	const q = `SELECT to_char(created_at AT TIME ZONE $2, 'YYYY-MM-DD') AS day, count(*)
		FROM users
		WHERE created_at >= $1
		GROUP BY day`
	rows, err := r.pool.Query(ctx, q, since, timeZone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out[day] = n
	}
	return out, rows.Err()
}

// RecentUsers returns the newest users first.
func (r *Repository) RecentUsers(ctx context.Context, limit int) ([]models.RecentUser, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email, image, created_at FROM users ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.RecentUser, 0, limit)
	for rows.Next() {
		var u models.RecentUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// RecentArticles returns the newest articles first, regardless of status.
func (r *Repository) RecentArticles(ctx context.Context, limit int) ([]models.RecentArticle, error) {
	const q = `SELECT a.id, a.title, a.slug, a.status, u.name, a.created_at
		FROM articles a
		JOIN users u ON u.id = a.author_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.RecentArticle, 0, limit)
	for rows.Next() {
		var a models.RecentArticle
		if err := rows.Scan(&a.ID, &a.Title, &a.Slug, &a.Status, &a.AuthorName, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
