package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillpress/backend/config"
)

const pingTimeout = 5 * time.Second

// Client is the go-redis client used for notification wake-ups.
type Client struct {
	*redis.Client
}

// NewClient connects to the configured Redis and verifies it answers a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("Redis client connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Client{Client: rdb}, nil
}

// Check reports whether Redis is reachable.
func (c *Client) Check(ctx context.Context) error {
	return ping(ctx, c.Client)
}

func ping(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
