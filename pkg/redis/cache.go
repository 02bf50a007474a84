package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed JSON caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
}

// NewCache creates a new cache helper
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Enabled reports whether values are actually stored
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil && c.client.Enabled()
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", c.client.Prefix(), key)
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

// Push prepends value to a JSON list capped at maxLen entries
func (c *Cache) Push(ctx context.Context, key string, value interface{}, maxLen int64, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	full := c.fullKey(key)
	pipe := c.client.Redis().TxPipeline()
	pipe.LPush(ctx, full, data)
	pipe.LTrim(ctx, full, 0, maxLen-1)
	pipe.Expire(ctx, full, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache push %s: %w", key, err)
	}
	return nil
}

// ListRange decodes the n newest entries of a list written by Push
func ListRange[T any](ctx context.Context, c *Cache, key string, n int64) ([]T, error) {
	if !c.Enabled() || n <= 0 {
		return nil, nil
	}

	raw, err := c.client.Redis().LRange(ctx, c.fullKey(key), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache range %s: %w", key, err)
	}

	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			return nil, fmt.Errorf("cache unmarshal failed: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetOrSet retrieves from cache or calls fn to populate it.
// With Redis disabled fn is always called.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var cached T
	found, err := c.Get(ctx, key, &cached)
	if err == nil && found {
		return cached, nil
	}

	value, err := fn()
	if err != nil {
		return value, err
	}

	// 캐시 저장 실패는 무시 (값은 이미 확보)
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}

// Predefined TTLs
const (
	TTLShort = 1 * time.Minute  // 실시간 상태
	TTLDaily = 24 * time.Hour   // 일별 데이터
	TTLWeek  = 7 * 24 * time.Hour
)

// Common cache key generators
func UniverseKey(index string, date string) string {
	return fmt.Sprintf("universe:%s:%s", index, date)
}

func SelectionKey(strategyID string) string {
	return fmt.Sprintf("selection:%s", strategyID)
}

func SnapshotKey(strategyID string) string {
	return fmt.Sprintf("snapshot:%s", strategyID)
}

func SnapshotHistoryKey(strategyID string) string {
	return fmt.Sprintf("snapshot:%s:history", strategyID)
}
