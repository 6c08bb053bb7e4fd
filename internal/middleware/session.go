package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillpress/backend/internal/auth"
	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/pkg/response"
)

// ContextUser is the key for the resolved *models.User in gin context.
const ContextUser = "user"

// RequireUser resolves the session cookie and rejects unauthenticated callers
// with 401 before the handler runs.
func RequireUser(resolver *auth.SessionResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolver.Resolve(c.Request.Context(), c.Request)
		if err != nil {
			abortResolve(c, logger, err, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Set(ContextUser, user)
		c.Next()
	}
}

// RequireAdmin resolves the session cookie and rejects every caller that is
// not an administrator with 403, including callers with no session at all.
func RequireAdmin(resolver *auth.SessionResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolver.Resolve(c.Request.Context(), c.Request)
		if err != nil {
			abortResolve(c, logger, err, http.StatusForbidden, "forbidden")
			return
		}
		if !user.IsAdmin() {
			response.Abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Set(ContextUser, user)
		c.Next()
	}
}

func abortResolve(c *gin.Context, logger *zap.Logger, err error, status int, msg string) {
	if auth.IsAuthError(err) {
		response.Abort(c, status, msg)
		return
	}
	logger.Error("resolve session", zap.Error(err))
	response.Abort(c, http.StatusServiceUnavailable, "session store unavailable")
}

// CurrentUser returns the user set by RequireUser or RequireAdmin.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
