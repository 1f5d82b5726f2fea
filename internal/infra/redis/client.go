// Package redis provides a Redis-backed key-value store for session identifiers.
// Keys carry an idle TTL so abandoned sessions disappear the way tab storage does.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the idle lifetime of a stored key.
const DefaultTTL = 24 * time.Hour

// Client wraps Redis operations for the session store.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewClient creates a new Redis client and checks the connection.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg Config) *Client {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{rdb: rdb, prefix: cfg.Prefix, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return fmt.Sprintf("%s:%s", c.prefix, k)
}

// Get returns the value stored at key and refreshes its TTL.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.GetEx(ctx, c.key(key), c.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get failed: %w", err)
	}
	return val, true, nil
}

// Set stores value at key with the configured TTL.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// SetIfAbsent stores value at key only when key does not exist.
func (c *Client) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.key(key), value, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Remove deletes key.
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
