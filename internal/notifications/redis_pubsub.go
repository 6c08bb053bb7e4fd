package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "notifications:user:"

// wakePayload is the message published to a user's channel.
type wakePayload struct {
	UserID int64 `json:"userId"`
	At     int64 `json:"at"`
}

func userChannel(userID int64) string {
	return channelPrefix + strconv.FormatInt(userID, 10)
}

// RedisPubSub carries wake-ups between instances over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis bridge for notification wake-ups.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishWake publishes a wake-up on the user's channel.
func (r *RedisPubSub) PublishWake(ctx context.Context, userID int64) error {
	body, err := json.Marshal(wakePayload{UserID: userID, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, userChannel(userID), body).Err()
}

// SubscribeUser subscribes to the user's channel and calls handler for each
// well-formed wake-up. The returned function stops the subscription.
func (r *RedisPubSub) SubscribeUser(userID int64, handler func()) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, userChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !validWake(msg.Payload, userID) {
					r.logger.Debug("ignoring malformed wake-up", zap.String("channel", msg.Channel))
					continue
				}
				handler()
			}
		}
	}()
	return cancelCtx, nil
}

func validWake(payload string, userID int64) bool {
	var p wakePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return false
	}
	return p.UserID == userID
}
