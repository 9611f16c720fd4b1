package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const opTimeout = 2 * time.Second

// Redis is a Store backed by a Redis client. Keys are used as-is; callers
// namespace them (see config.CacheKey). Failed reads degrade to "absent"
// and failed writes are logged and dropped, never propagated.
type Redis struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedis(rdb *redis.Client, log zerolog.Logger) *Redis {
	return &Redis{
		rdb: rdb,
		log: log.With().Str("component", "kv_store").Logger(),
	}
}

func (r *Redis) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	val, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("key", key).Msg("Get failed, treating as absent")
		}
		return "", false
	}
	return val, true
}

func (r *Redis) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Set failed, value dropped")
	}
}

func (r *Redis) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Del failed")
	}
}
