package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "taskstatus"
	defaultChannel   = "taskstatus:updates"
)

// RedisClient is the subset of redis commands the Redis target needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisOptions configures a [RedisTarget].
type RedisOptions struct {
	// KeyPrefix is prepended to the element id to build the key.
	// Defaults to "taskstatus".
	KeyPrefix string

	// Channel receives a JSON [RedisEvent] after every render.
	// Defaults to "taskstatus:updates". Set NoPublish to skip publishing.
	Channel string

	// NoPublish disables the publish step.
	NoPublish bool

	// TTL is the key expiration. Zero keeps the key forever.
	TTL time.Duration
}

// RedisEvent is the message published after a render.
type RedisEvent struct {
	Key        string    `json:"key"`
	ElementID  string    `json:"element_id"`
	Content    string    `json:"content"`
	RenderedAt time.Time `json:"rendered_at"`
}

// RedisTarget stores rendered markup under a key per element and announces
// every render on a pub/sub channel.
type RedisTarget struct {
	client RedisClient
	opts   RedisOptions
}

// Redis returns a target backed by client.
func Redis(client RedisClient, opts RedisOptions) *RedisTarget {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}
	return &RedisTarget{client: client, opts: opts}
}

// NewRedisClient creates a go-redis client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Key returns the key markup for elementID is stored under.
func (t *RedisTarget) Key(elementID string) string {
	return t.opts.KeyPrefix + ":" + elementID
}

// SetInnerHTML stores markup and publishes a [RedisEvent].
func (t *RedisTarget) SetInnerHTML(ctx context.Context, elementID string, markup []byte) error {
	key := t.Key(elementID)
	if err := t.client.Set(ctx, key, markup, t.opts.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	if t.opts.NoPublish {
		return nil
	}

	msg, err := json.Marshal(RedisEvent{
		Key:        key,
		ElementID:  elementID,
		Content:    string(markup),
		RenderedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := t.client.Publish(ctx, t.opts.Channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.opts.Channel, err)
	}
	return nil
}
