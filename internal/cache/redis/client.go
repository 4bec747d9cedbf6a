// Package redis implements the engine's shared-state plumbing on go-redis/v9:
// the event bus, distributed locks, rate limiting, and the risk-state cache.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultClientName  = "tradepilot"
	defaultDialTimeout = 5 * time.Second
)

// ClientConfig holds connection parameters for the Redis client. Zero
// DialTimeout and empty ClientName fall back to defaults.
type ClientConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	MaxRetries  int
	TLSEnabled  bool
	DialTimeout time.Duration
	ClientName  string
}

// Client is the one connection pool shared by the bus, locks, limiter and
// risk-state cache.
type Client struct {
	rdb  *redis.Client
	addr string
}

// New connects and pings. The engine cannot publish events or take execution
// locks without redis, so an unreachable server is a startup error.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, addr: cfg.Addr}, nil
}

func options(cfg ClientConfig) *redis.Options {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		ClientName:  cfg.ClientName,
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = defaultClientName
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Wrap adopts an existing go-redis client, e.g. one pointed at miniredis.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, addr: rdb.Options().Addr}
}

// Ping is the health check. A failing ping reports pool timeouts so a
// saturated pool is distinguishable from a dead server.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		st := c.rdb.PoolStats()
		return fmt.Errorf("redis: ping %s (pool total=%d idle=%d timeouts=%d): %w",
			c.addr, st.TotalConns, st.IdleConns, st.Timeouts, err)
	}
	return nil
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for the bus, lock, limiter and
// cache in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
