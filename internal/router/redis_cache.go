package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
)

const redisKeyPrefix = "route:"

// RedisCache shares routes between executor instances. Errors degrade to
// cache misses.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisCache wraps client. ttl <= 0 uses DefaultCacheTTL.
func NewRedisCache(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "route_cache").Logger(),
	}
}

func (c *RedisCache) Get(ctx context.Context, token string) (domain.VenueRoute, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("token", token).Msg("redis get failed")
		}
		return domain.VenueRoute{}, false
	}

	var route domain.VenueRoute
	if err := json.Unmarshal(raw, &route); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("dropping undecodable route")
		c.Delete(ctx, token)
		return domain.VenueRoute{}, false
	}
	return route, true
}

func (c *RedisCache) Set(ctx context.Context, key string, route domain.VenueRoute) {
	raw, err := json.Marshal(route)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("token", key).Msg("redis set failed")
	}
}

func (c *RedisCache) Delete(ctx context.Context, token string) {
	if err := c.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("redis delete failed")
	}
}
