package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/backend/internal/models"
)

func TestSessionResolver(t *testing.T) {
	jwtSvc := NewJWTService("secret", 1)
	users := newFakeUsers(&models.User{ID: 7, Email: "u@example.com", Role: models.RoleUser})
	resolver := NewSessionResolver(jwtSvc, users, "token")

	valid, err := jwtSvc.Generate(7, "u@example.com", "USER")
	require.NoError(t, err)
	ghost, err := jwtSvc.Generate(99, "ghost@example.com", "USER")
	require.NoError(t, err)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		wantID  int64
		wantErr error
	}{
		{name: "no credentials", prepare: func(r *http.Request) {}, wantErr: ErrNoCredentials},
		{
			name:    "cookie",
			prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: valid}) },
			wantID:  7,
		},
		{
			name:    "bearer header",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantID:  7,
		},
		{
			name:    "invalid token",
			prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: "junk"}) },
			wantErr: ErrInvalidToken,
		},
		{
			name:    "deleted user",
			prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: ghost}) },
			wantErr: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			user, err := resolver.Resolve(context.Background(), req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsAuthError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, user.ID)
		})
	}
}

func TestSessionResolverStoreError(t *testing.T) {
	jwtSvc := NewJWTService("secret", 1)
	users := newFakeUsers()
	users.err = errStoreDown
	resolver := NewSessionResolver(jwtSvc, users, "token")

	token, err := jwtSvc.Generate(7, "u@example.com", "USER")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})

	_, err = resolver.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, IsAuthError(err))
}
