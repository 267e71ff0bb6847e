package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"grosirpos/backend/internal/analytics"
	"grosirpos/backend/internal/domain"
)

const (
	cartKeyPrefix   = "cart:"
	reportKeyPrefix = "report:"
	reportGenKey    = "report-generation"
)

// RedisCache serves both terminal carts and cached dashboards from one
// client. Values are stored as JSON.
type RedisCache struct {
	client  *redis.Client
	cartTTL time.Duration
}

func NewRedisCache(addr string, password string, db int, cartTTL time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client, cartTTL: cartTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Load(ctx context.Context, terminalID string) (*domain.CartState, bool, error) {
	var state domain.CartState
	found, err := c.getJSON(ctx, cartKeyPrefix+terminalID, &state)
	if err != nil || !found {
		return nil, false, err
	}
	return &state, true, nil
}

// Save refreshes the idle expiry on every write.
func (c *RedisCache) Save(ctx context.Context, state domain.CartState) error {
	return c.setJSON(ctx, cartKeyPrefix+state.TerminalID, state, c.cartTTL)
}

func (c *RedisCache) Delete(ctx context.Context, terminalID string) error {
	return c.client.Del(ctx, cartKeyPrefix+terminalID).Err()
}

func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, reportGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Get(ctx context.Context, key string) (*analytics.Dashboard, bool, error) {
	var dashboard analytics.Dashboard
	found, err := c.getJSON(ctx, reportKeyPrefix+key, &dashboard)
	if err != nil || !found {
		return nil, false, err
	}
	return &dashboard, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value *analytics.Dashboard, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.setJSON(ctx, reportKeyPrefix+key, value, ttl)
}

// Purge advances the generation before deleting, so an entry written
// concurrently under the old generation is unreachable even if it survives
// the scan.
func (c *RedisCache) Purge(ctx context.Context) error {
	if err := c.client.Incr(ctx, reportGenKey).Err(); err != nil {
		return err
	}
	iter := c.client.Scan(ctx, 0, reportKeyPrefix+"*", 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
