package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wangshuile/jb-quant/pkg/config"
)

// DefaultPrefix namespaces every key written by the engine
const DefaultPrefix = "jbquant"

const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
	poolSize    = 10
)

// Client owns the optional Redis connection. A disabled client turns every
// Cache helper into a no-op so the engine runs without Redis.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb    *redis.Client // 비활성 시 nil
	prefix string
}

// New connects when REDIS_ENABLED is set, otherwise returns a disabled client
func New(cfg *config.Config) (*Client, error) {
	c := &Client{prefix: cfg.Redis.Prefix}
	if c.prefix == "" {
		c.prefix = DefaultPrefix
	}
	if !cfg.Redis.Enabled {
		return c, nil
	}

	rdb := redis.NewClient(options(cfg.Redis))

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c.rdb = rdb
	return c, nil
}

// options maps env config onto go-redis options
func options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Enabled reports whether a connection is held
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Ping checks the connection; a disabled client is always healthy
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Prefix returns the key namespace
func (c *Client) Prefix() string {
	return c.prefix
}

// Redis returns the underlying client, nil when disabled
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
