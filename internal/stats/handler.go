package stats

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillpress/backend/internal/middleware"
	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/internal/stream"
	"github.com/quillpress/backend/pkg/response"
)

// Handler serves the admin dashboard, once or as an event stream. Routes are
// expected behind middleware.RequireAdmin.
type Handler struct {
	provider stream.Provider[models.DashboardStats]
	registry *stream.Registry
	opts     stream.Options
	logger   *zap.Logger
}

// NewHandler creates a stats handler. opts carries the poll and heartbeat
// cadence for every stream session the handler opens.
func NewHandler(provider stream.Provider[models.DashboardStats], registry *stream.Registry, opts stream.Options, logger *zap.Logger) *Handler {
	opts.Stream = "stats"
	opts.Logger = logger
	return &Handler{provider: provider, registry: registry, opts: opts, logger: logger}
}

// Get handles GET /api/admin/stats.
func (h *Handler) Get(c *gin.Context) {
	user := middleware.CurrentUser(c)
	snap, err := h.provider.Snapshot(c.Request.Context(), stream.Subject{UserID: user.ID, Admin: true})
	if err != nil {
		h.logger.Error("stats snapshot", zap.Error(err))
		response.ServiceUnavailable(c, "stats unavailable")
		return
	}
	response.OK(c, snap)
}

// Stream handles GET /api/admin/stats/stream. The first frame is the current
// dashboard; later frames are sent only when it changes. Comment heartbeats
// keep the connection alive in between.
func (h *Handler) Stream(c *gin.Context) {
	user := middleware.CurrentUser(c)
	subject := stream.Subject{UserID: user.ID, Admin: true}

	tr := stream.NewSSETransport(c.Writer)
	s := stream.NewSession[models.DashboardStats](c.Request.Context(), subject, h.provider,
		stream.NewEncodedDetector[models.DashboardStats](), tr, h.opts)
	if !h.registry.Add(s) {
		response.ServiceUnavailable(c, "server is shutting down")
		return
	}
	defer h.registry.Remove(s.ID())

	if err := s.Open(); err != nil {
		if tr.Started() {
			return
		}
		if !errors.Is(err, stream.ErrSessionClosed) {
			h.logger.Error("open stats stream", zap.Error(err), zap.Int64("user_id", user.ID))
		}
		response.ServiceUnavailable(c, "stats unavailable")
		return
	}
	if err := s.Run(); err != nil {
		h.logger.Warn("stats stream ended", zap.Error(err), zap.Int64("user_id", user.ID))
	}
}
