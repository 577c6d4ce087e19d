package vehicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL is how long a cached vehicle is trusted
const DefaultCacheTTL = 5 * time.Minute

type (
	// redisClient is the part of *redis.Client the cache needs
	redisClient interface {
		Get(ctx context.Context, key string) *redis.StringCmd
		Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
		Del(ctx context.Context, keys ...string) *redis.IntCmd
	}

	// RedisCache caches vehicles in redis. Cache failures are logged and
	// treated as misses, the record store stays authoritative.
	RedisCache struct {
		rdb redisClient
		ttl time.Duration
	}
)

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(rdb redisClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(id string) string {
	return fmt.Sprintf("vehicle:%s:record", id)
}

func (c *RedisCache) Get(ctx context.Context, id string) (Vehicle, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("vehicle", id).Msg("redis get")
		}
		return Vehicle{}, false
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warn().Err(err).Str("vehicle", id).Msg("redis payload")
		return Vehicle{}, false
	}
	return FromRecord(id, &rec), true
}

func (c *RedisCache) Set(ctx context.Context, v Vehicle) {
	rec := v.Record()
	b, err := json.Marshal(&rec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(v.ID), b, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("vehicle", v.ID).Msg("redis set")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, cacheKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("vehicle", id).Msg("redis del")
	}
}
