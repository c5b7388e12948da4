package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"profile-enrichment/internal/config"
)

// Client is the process-wide redis handle. It is constructed once at startup
// and passed by reference to everything that needs the broker; shutdown goes
// through Close.
type Client struct {
	cli *redis.Client
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{cli: c}, nil
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

// Redis exposes the underlying client for broker-level commands.
func (c *Client) Redis() *redis.Client { return c.cli }

func (c *Client) Close() error { return c.cli.Close() }
