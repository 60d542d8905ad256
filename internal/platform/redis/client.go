// Package redis wraps the go-redis client used by the session and lockout
// stores.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cradle/internal/platform/config"
)

// Client embeds the go-redis client so stores receive the underlying
// *redis.Client while the process owns connect, health, and close.
type Client struct {
	*redis.Client
}

// New connects using the configured URL and verifies the connection with a
// ping. An unconfigured Redis yields (nil, nil) so callers can treat the nil
// client as "run on the in-memory stores".
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health pings the server; the readiness probe calls this.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
