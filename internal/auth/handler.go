package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillpress/backend/config"
	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/pkg/response"
)

// Users is the user store the auth endpoints need.
type Users interface {
	UserFinder
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, name string, role models.Role) (*models.User, error)
}

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users    Users
	jwt      *JWTService
	resolver *SessionResolver
	cookie   config.SessionConfig
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users Users, jwt *JWTService, resolver *SessionResolver, cookie config.SessionConfig, logger *zap.Logger) *Handler {
	return &Handler{users: users, jwt: jwt, resolver: resolver, cookie: cookie, logger: logger}
}

// Register handles POST /api/auth/register. Self-registration always creates
// a regular user; admins are promoted in the database.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.users.Create(c.Request.Context(), strings.TrimSpace(req.Email), hash, strings.TrimSpace(req.Name), models.RoleUser)
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(c, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, ok := h.issue(c, user)
	if !ok {
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		h.logger.Error("load user for login", zap.Error(err))
		response.ServiceUnavailable(c, "try again later")
		return
	}
	if user == nil || !CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, ok := h.issue(c, user)
	if !ok {
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Logout handles POST /api/auth/logout by expiring the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	h.setCookie(c, "", -1)
	response.NoContent(c)
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.resolver.Resolve(c.Request.Context(), c.Request)
	if err != nil {
		if IsAuthError(err) {
			response.Unauthorized(c, "not signed in")
			return
		}
		h.logger.Error("resolve session", zap.Error(err))
		response.ServiceUnavailable(c, "try again later")
		return
	}
	response.OK(c, user.ToPublic())
}

func (h *Handler) issue(c *gin.Context, user *models.User) (string, bool) {
	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return "", false
	}
	h.setCookie(c, token, int(h.jwt.TTL().Seconds()))
	return token, true
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, value, maxAge, "/", h.cookie.CookieDomain, h.cookie.CookieSecure, true)
}
