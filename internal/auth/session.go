package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/quillpress/backend/internal/models"
)

// ErrNoCredentials means the request carried neither a session cookie nor a
// bearer token.
var ErrNoCredentials = errors.New("missing session credentials")

// UserFinder loads the user record behind a verified token.
type UserFinder interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// SessionResolver turns a request's session cookie into a user record.
type SessionResolver struct {
	jwt        *JWTService
	users      UserFinder
	cookieName string
}

// NewSessionResolver creates a resolver reading the named cookie.
func NewSessionResolver(jwt *JWTService, users UserFinder, cookieName string) *SessionResolver {
	return &SessionResolver{jwt: jwt, users: users, cookieName: cookieName}
}

// Token extracts the raw session token: cookie first, then an
// "Authorization: Bearer" header for non-browser clients.
func (r *SessionResolver) Token(req *http.Request) string {
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(req.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Resolve verifies the request's token and loads its user. Authentication
// failures are ErrNoCredentials, ErrInvalidToken or ErrUserNotFound; any other
// error comes from the store.
func (r *SessionResolver) Resolve(ctx context.Context, req *http.Request) (*models.User, error) {
	token := r.Token(req)
	if token == "" {
		return nil, ErrNoCredentials
	}
	claims, err := r.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return user, nil
}

// IsAuthError reports whether err means the caller is not authenticated, as
// opposed to the store being unavailable.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrUserNotFound)
}
