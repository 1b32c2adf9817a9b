package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// Default cache configuration constants.
const (
	defaultCacheTTL    = 10 * time.Minute
	defaultCachePrefix = "podium"
	redisPingTimeout   = 5 * time.Second
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// CachedStore is a read-through Redis cache in front of a Store. Values are
// JSON encoded. A failing Redis never fails a call: the inner store answers
// and the failure is logged and counted.
type CachedStore struct {
	inner  Store
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

// NewCachedStore wraps inner with a Redis cache.
func NewCachedStore(inner Store, client redis.UniversalClient, log logger.Logger, opts ...CacheOption) *CachedStore {
	c := &CachedStore{
		inner:  inner,
		client: client,
		ttl:    defaultCacheTTL,
		prefix: defaultCachePrefix,
		log:    log,
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedStore) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func seasonPart(season model.Season) string {
	if season == model.SeasonAll {
		return "all"
	}
	return string(season)
}

// cached serves key from Redis or loads and stores it.
func cached[T any](ctx context.Context, c *CachedStore, op, key string, load func() (T, error)) (T, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr == nil {
			metrics.RecordCacheLookup(op, "hit")
			return v, nil
		}
		c.log.Warn(ctx, "cache entry undecodable", logger.String("key", key))
		metrics.RecordCacheLookup(op, "error")
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheLookup(op, "miss")
	default:
		c.log.Warn(ctx, "cache read failed", logger.String("key", key), logger.Error(err))
		metrics.RecordCacheLookup(op, "error")
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache write failed", logger.String("key", key), logger.Error(err))
	}
	return v, nil
}

// LoadSeries implements Reader. NotFound answers are not cached.
func (c *CachedStore) LoadSeries(ctx context.Context, kind model.EntityKind, entity string, season model.Season) (model.TimeSeries, error) {
	key := c.key("series", string(kind), seasonPart(season), entityKey(entity))
	return cached(ctx, c, "series", key, func() (model.TimeSeries, error) {
		return c.inner.LoadSeries(ctx, kind, entity, season)
	})
}

// ListEntities implements Reader.
func (c *CachedStore) ListEntities(ctx context.Context, kind model.EntityKind, season model.Season) ([]string, error) {
	key := c.key("entities", string(kind), seasonPart(season))
	return cached(ctx, c, "entities", key, func() ([]string, error) {
		return c.inner.ListEntities(ctx, kind, season)
	})
}

// Editions implements Reader.
func (c *CachedStore) Editions(ctx context.Context, season model.Season) ([]int, error) {
	key := c.key("editions", seasonPart(season))
	return cached(ctx, c, "editions", key, func() ([]int, error) {
		return c.inner.Editions(ctx, season)
	})
}

// Totals implements Reader.
func (c *CachedStore) Totals(ctx context.Context, kind model.EntityKind, season model.Season, limit int) ([]EntityTotal, error) {
	key := c.key("totals", string(kind), seasonPart(season), strconv.Itoa(limit))
	return cached(ctx, c, "totals", key, func() ([]EntityTotal, error) {
		return c.inner.Totals(ctx, kind, season, limit)
	})
}

// UpsertRecords implements Store. The whole cache namespace is dropped after
// a successful write.
func (c *CachedStore) UpsertRecords(ctx context.Context, kind model.EntityKind, records []model.MedalRecord) error {
	if err := c.inner.UpsertRecords(ctx, kind, records); err != nil {
		return err
	}
	if err := c.Invalidate(ctx); err != nil {
		c.log.Warn(ctx, "cache invalidation failed", logger.Error(err))
	}
	return nil
}

// Invalidate deletes every key under the cache prefix.
func (c *CachedStore) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 256).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 256 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Ping implements Store. Only the inner store decides health; Redis is optional.
func (c *CachedStore) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Close implements Store. The Redis client is owned by the caller.
func (c *CachedStore) Close() error {
	return c.inner.Close()
}
