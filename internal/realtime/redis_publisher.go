// Package realtime publishes delivered notifications to Redis, where the
// WebSocket gateway picks them up and forwards them to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// DefaultChannelPrefix is used when no prefix is configured.
const DefaultChannelPrefix = "user-notifications"

// Event is the payload broadcast to a user's live sessions.
type Event struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Route     string         `json:"route,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// publishClient is the subset of the Redis client the publisher uses.
type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes events on a per-user Redis channel.
type RedisPublisher struct {
	client publishClient
	prefix string
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(ctx context.Context, redisURL, channelPrefix string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Maintenance notifications are not supported before Redis 8.
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newPublisher(client, channelPrefix), nil
}

func newPublisher(client publishClient, channelPrefix string) *RedisPublisher {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: channelPrefix}
}

// Channel returns the Redis channel carrying a user's events.
func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + ":" + userID
}

// Publish broadcasts event to the user's channel. It reports how many
// subscribers received it; zero means the user has no live session.
func (p *RedisPublisher) Publish(ctx context.Context, userID string, event Event) (int64, error) {
	event.UserID = userID
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.Channel(userID), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return receivers, nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
