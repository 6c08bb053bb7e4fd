// Package main runs the Quillpress API server with event streams and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quillpress/backend/config"
	"github.com/quillpress/backend/internal/auth"
	"github.com/quillpress/backend/internal/middleware"
	"github.com/quillpress/backend/internal/notifications"
	"github.com/quillpress/backend/internal/stats"
	"github.com/quillpress/backend/internal/stream"
	"github.com/quillpress/backend/pkg/database"
	"github.com/quillpress/backend/pkg/redis"
	"github.com/quillpress/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis only carries wake-ups; streams fall back to polling without it.
	var rdb *redis.Client
	hub := notifications.NewHub(logger, nil, nil)
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, wake-ups stay local", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			pubsub := notifications.NewRedisPubSub(rdb.Client, logger)
			hub = notifications.NewHub(logger, pubsub, pubsub)
		}
	}

	loc, err := cfg.Stats.Location()
	if err != nil {
		logger.Fatal("stats time zone", zap.Error(err))
	}
	locale, err := cfg.Stats.FormatLocale()
	if err != nil {
		logger.Fatal("stats locale", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	streamMetrics := stream.NewMetrics(registry)
	sessions := stream.NewRegistry()

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	resolver := auth.NewSessionResolver(jwtService, authRepo, cfg.Session.CookieName)
	authHandler := auth.NewHandler(authRepo, jwtService, resolver, cfg.Session, logger)

	// Admin dashboard
	statsProvider := stats.NewProvider(stats.NewRepository(pool), nil, loc, locale)
	statsHandler := stats.NewHandler(statsProvider, sessions, stream.Options{
		PollInterval:           cfg.Stream.StatsPollInterval,
		HeartbeatInterval:      cfg.Stream.HeartbeatInterval,
		MaxConsecutiveFailures: cfg.Stream.MaxConsecutiveFailures,
		Metrics:                streamMetrics,
	}, logger)

	// Notifications
	notificationHandler := notifications.NewHandler(notifications.NewRepository(pool), hub, sessions, stream.Options{
		PollInterval:           cfg.Stream.NotificationPollInterval,
		MaxConsecutiveFailures: cfg.Stream.MaxConsecutiveFailures,
		Metrics:                streamMetrics,
	}, notifications.Config{
		Limit:       cfg.Stream.NotificationLimit,
		WSHeartbeat: cfg.Stream.HeartbeatInterval,
		Upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     middleware.CheckOrigin(cfg.Server.CORSAllowedOrigins),
		},
	}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		status := gin.H{"status": "ok", "streams": sessions.Len(), "redis": "disabled"}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Check(c.Request.Context()); err != nil {
				status["redis"] = "down"
			}
		}
		response.OK(c, status)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", middleware.RequireUser(resolver, logger), authHandler.Me)
	}

	notificationGroup := api.Group("/notifications", middleware.RequireUser(resolver, logger))
	{
		notificationGroup.GET("", notificationHandler.List)
		notificationGroup.GET("/stream", notificationHandler.Stream)
		notificationGroup.GET("/ws", notificationHandler.StreamWS)
		notificationGroup.PATCH("/:id/read", notificationHandler.MarkRead)
		notificationGroup.POST("/read-all", notificationHandler.ReadAll)
	}

	adminGroup := api.Group("/admin", middleware.RequireAdmin(resolver, logger))
	{
		adminGroup.GET("/stats", statsHandler.Get)
		adminGroup.GET("/stats/stream", statsHandler.Stream)
		adminGroup.POST("/notifications", notificationHandler.Create)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	// Shutdown waits for active handlers, and streams never finish on their own.
	logger.Info("closing streams", zap.Int("sessions", sessions.Len()))
	if err := sessions.CancelAll(shutdownCtx); err != nil {
		logger.Warn("streams did not close in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
