package notifications

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillpress/backend/internal/models"
)

var (
	// ErrNotFound is returned when a notification does not exist or belongs
	// to someone else.
	ErrNotFound = errors.New("notification not found")
	// ErrUnknownReference is returned when a new notification points at a
	// user or article that does not exist.
	ErrUnknownReference = errors.New("notification references a missing user or article")
)

// CreateParams describes a new notification.
type CreateParams struct {
	UserID    int64
	Type      models.NotificationType
	Message   string
	ActorID   *int64
	ArticleID *int64
}

// Repository handles notification persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectNotification = `SELECT n.id, n.type, n.message, n.read, n.created_at,
		a.id, a.name, a.image,
		ar.id, ar.title, ar.slug
	FROM notifications n
	LEFT JOIN users a ON a.id = n.actor_id
	LEFT JOIN articles ar ON ar.id = n.article_id`

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	var typ string
	var actorID, articleID *int64
	var actorName, articleTitle, articleSlug *string
	var actorImage *string
	err := row.Scan(&n.ID, &typ, &n.Message, &n.Read, &n.CreatedAt,
		&actorID, &actorName, &actorImage,
		&articleID, &articleTitle, &articleSlug)
	if err != nil {
		return n, err
	}
	n.Type = models.NotificationType(typ)
	if actorID != nil {
		n.Actor = &models.NotificationActor{ID: *actorID, Name: deref(actorName), Image: actorImage}
	}
	if articleID != nil {
		n.Article = &models.NotificationArticle{ID: *articleID, Title: deref(articleTitle), Slug: deref(articleSlug)}
	}
	return n, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListRecent returns the user's newest notifications first.
func (r *Repository) ListRecent(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	rows, err := r.pool.Query(ctx, selectNotification+`
		WHERE n.user_id = $1
		ORDER BY n.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// CountUnread counts every unread notification of the user, not only the
// ones ListRecent would return.
func (r *Repository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&n)
	return n, err
}

// Create inserts a notification and returns it with its joins resolved.
func (r *Repository) Create(ctx context.Context, p CreateParams) (models.Notification, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, message, actor_id, article_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.UserID, string(p.Type), p.Message, p.ActorID, p.ArticleID).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return models.Notification{}, ErrUnknownReference
	}
	if err != nil {
		return models.Notification{}, err
	}
	return scanNotification(r.pool.QueryRow(ctx, selectNotification+` WHERE n.id = $1`, id))
}

// MarkRead marks one of the user's notifications as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read and
// returns how many changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
