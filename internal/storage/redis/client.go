package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/conversa/internal/model"
	"github.com/redis/go-redis/v9"
)

// Статус живёт сутки: переживает рестарт API, но не накапливается вечно.
const presenceTTL = 24 * time.Hour

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func statusKey(userID string) string   { return "presence:" + userID }
func lastSeenKey(userID string) string { return "last_seen:" + userID }

// SetStatus stores the presence state and last-seen timestamp.
func (c *Client) SetStatus(ctx context.Context, userID string, status model.PresenceStatus, lastSeen time.Time) error {
	pipe := c.cli.Pipeline()
	pipe.Set(ctx, statusKey(userID), string(status), presenceTTL)
	pipe.Set(ctx, lastSeenKey(userID), lastSeen.UTC().Format(time.RFC3339Nano), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetStatus returns the cached state. A missing key reads as OFFLINE.
func (c *Client) GetStatus(ctx context.Context, userID string) (model.PresenceStatus, time.Time, error) {
	val, err := c.cli.Get(ctx, statusKey(userID)).Result()
	if err == redis.Nil {
		return model.PresenceOffline, time.Time{}, nil
	}
	if err != nil {
		return model.PresenceOffline, time.Time{}, err
	}
	var lastSeen time.Time
	if raw, err := c.cli.Get(ctx, lastSeenKey(userID)).Result(); err == nil {
		lastSeen, _ = time.Parse(time.RFC3339Nano, raw)
	}
	status := model.PresenceStatus(val)
	if !status.Valid() {
		status = model.PresenceOffline
	}
	return status, lastSeen, nil
}

// Touch refreshes last-seen without changing the presence state.
func (c *Client) Touch(ctx context.Context, userID string, at time.Time) error {
	return c.cli.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339Nano), presenceTTL).Err()
}
