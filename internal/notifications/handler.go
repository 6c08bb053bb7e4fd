package notifications

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quillpress/backend/internal/middleware"
	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/internal/stream"
	"github.com/quillpress/backend/pkg/response"
)

// Repo is the notification store the endpoints need.
type Repo interface {
	Store
	Create(ctx context.Context, p CreateParams) (models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Config tunes the notification endpoints.
type Config struct {
	// Limit is the feed size; zero means DefaultLimit.
	Limit int
	// WSHeartbeat is the ping interval on websocket streams. Event streams
	// carry no heartbeat.
	WSHeartbeat time.Duration
	Upgrader    *websocket.Upgrader
}

// CreateRequest is the body for POST /api/admin/notifications.
type CreateRequest struct {
	UserID    int64  `json:"userId" binding:"required"`
	Type      string `json:"type" binding:"required"`
	Message   string `json:"message" binding:"required"`
	ActorID   *int64 `json:"actorId"`
	ArticleID *int64 `json:"articleId"`
}

// Handler handles the notification feed and its streams.
type Handler struct {
	repo     Repo
	provider *Provider
	hub      *Hub
	registry *stream.Registry
	opts     stream.Options
	cfg      Config
	logger   *zap.Logger
}

// NewHandler creates a notifications handler. opts carries the poll cadence
// and failure policy of every stream session it opens.
func NewHandler(repo Repo, hub *Hub, registry *stream.Registry, opts stream.Options, cfg Config, logger *zap.Logger) *Handler {
	if cfg.Upgrader == nil {
		cfg.Upgrader = &websocket.Upgrader{}
	}
	opts.Logger = logger
	return &Handler{
		repo:     repo,
		provider: NewProvider(repo, cfg.Limit),
		hub:      hub,
		registry: registry,
		opts:     opts,
		cfg:      cfg,
		logger:   logger,
	}
}

func subjectOf(user *models.User) stream.Subject {
	return stream.Subject{UserID: user.ID, Admin: user.IsAdmin()}
}

// List handles GET /api/notifications.
func (h *Handler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	feed, err := h.provider.Snapshot(c.Request.Context(), subjectOf(user))
	if err != nil {
		h.logger.Error("notification feed", zap.Error(err), zap.Int64("user_id", user.ID))
		response.ServiceUnavailable(c, "notifications unavailable")
		return
	}
	response.OK(c, feed)
}

// MarkRead handles PATCH /api/notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid notification id")
		return
	}
	err = h.repo.MarkRead(c.Request.Context(), user.ID, id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "notification not found")
		return
	}
	if err != nil {
		h.logger.Error("mark notification read", zap.Error(err))
		response.Internal(c, "failed to update notification")
		return
	}
	response.NoContent(c)
}

// ReadAll handles POST /api/notifications/read-all.
func (h *Handler) ReadAll(c *gin.Context) {
	user := middleware.CurrentUser(c)
	n, err := h.repo.MarkAllRead(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("mark all notifications read", zap.Error(err))
		response.Internal(c, "failed to update notifications")
		return
	}
	response.OK(c, gin.H{"updated": n})
}

// Create handles POST /api/admin/notifications. Other subsystems use it to
// deliver a notification; open streams of the recipient are woken at once.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	typ := models.NotificationType(strings.ToUpper(req.Type))
	if !typ.Valid() {
		response.BadRequest(c, "unknown notification type")
		return
	}

	n, err := h.repo.Create(c.Request.Context(), CreateParams{
		UserID:    req.UserID,
		Type:      typ,
		Message:   req.Message,
		ActorID:   req.ActorID,
		ArticleID: req.ArticleID,
	})
	if errors.Is(err, ErrUnknownReference) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create notification", zap.Error(err))
		response.Internal(c, "failed to create notification")
		return
	}
	h.hub.Notify(c.Request.Context(), req.UserID)
	response.Created(c, n)
}

// Stream handles GET /api/notifications/stream. The first frame is the
// current feed; later frames go out when the newest notification changes.
func (h *Handler) Stream(c *gin.Context) {
	opts := h.opts
	opts.Stream = "notifications"
	opts.HeartbeatInterval = 0
	h.serve(c, stream.NewSSETransport(c.Writer), opts, nil)
}

// StreamWS handles GET /api/notifications/ws, the same feed over a websocket
// with ping heartbeats.
func (h *Handler) StreamWS(c *gin.Context) {
	opts := h.opts
	opts.Stream = "notifications_ws"
	opts.HeartbeatInterval = h.cfg.WSHeartbeat
	tr := stream.NewWebSocketTransport(c.Writer, c.Request, h.cfg.Upgrader)
	h.serve(c, tr, opts, tr.Gone())
}

type committedTransport interface {
	stream.Transport
	Started() bool
}

// serve runs one feed session. gone, when set, signals a peer disconnect the
// request context does not see.
func (h *Handler) serve(c *gin.Context, tr committedTransport, opts stream.Options, gone <-chan struct{}) {
	user := middleware.CurrentUser(c)
	s := stream.NewSession[models.NotificationFeed](c.Request.Context(), subjectOf(user), h.provider, NewDetector(), tr, opts)
	if !h.registry.Add(s) {
		response.ServiceUnavailable(c, "server is shutting down")
		return
	}
	defer h.registry.Remove(s.ID())
	unregister := h.hub.Register(user.ID, s)
	defer unregister()

	if err := s.Open(); err != nil {
		if tr.Started() {
			return
		}
		if !errors.Is(err, stream.ErrSessionClosed) {
			h.logger.Error("open notification stream", zap.Error(err), zap.Int64("user_id", user.ID))
		}
		response.ServiceUnavailable(c, "notifications unavailable")
		return
	}

	if gone != nil {
		go func() {
			select {
			case <-gone:
				s.Cancel()
			case <-s.Done():
			}
		}()
	}
	if err := s.Run(); err != nil {
		h.logger.Warn("notification stream ended", zap.Error(err), zap.Int64("user_id", user.ID))
	}
}
