package embedding

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// Cache stores normalized vectors by key
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CacheKey derives a cache key from the model, role and text
func CacheKey(model string, role Role, text string) string {
	sum := blake2b.Sum256([]byte(model + "\x00" + string(role) + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// RedisCache is a Cache backed by Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed vector cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached vector, reporting a miss as ok=false
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, fmt.Errorf("decode cached vector: %w", err)
	}
	return vec, true, nil
}

// Set stores vec under key with the cache TTL
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
