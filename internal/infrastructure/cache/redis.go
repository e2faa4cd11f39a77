package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitos/cheeseball/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// redisEnvelope is the msgpack value stored under each key.
type redisEnvelope struct {
	StoredAt int64  `msgpack:"t"` // unix nano
	Payload  []byte `msgpack:"p"`
}

// RedisCache shares cached responses between processes. Redis expires keys
// after ttl, so memory is bounded by the server's own policy.
type RedisCache struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	logger  *zap.Logger
	timeNow func() time.Time
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{
		rdb:     rdb,
		prefix:  prefix,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "redis_cache")),
		timeNow: time.Now,
	}, nil
}

func (c *RedisCache) Lookup(ctx context.Context, key domain.CacheKey) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Cache lookup failed", zap.String("operation", key.Operation), zap.Error(err))
		return nil, false
	}

	var env redisEnvelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("Corrupt cache entry", zap.String("operation", key.Operation), zap.Error(err))
		return nil, false
	}
	if c.timeNow().Sub(time.Unix(0, env.StoredAt)) >= c.ttl {
		return nil, false
	}
	return env.Payload, true
}

func (c *RedisCache) Store(ctx context.Context, key domain.CacheKey, payload []byte) {
	raw, err := msgpack.Marshal(&redisEnvelope{
		StoredAt: c.timeNow().UnixNano(),
		Payload:  payload,
	})
	if err != nil {
		c.logger.Warn("Cache encode failed", zap.String("operation", key.Operation), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key.String(), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache store failed", zap.String("operation", key.Operation), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
