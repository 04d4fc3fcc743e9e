package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/logging"
)

// Loader fetches the authoritative value on a miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Cache is a named, typed read-through cache. Values are stored as JSON under
// prefix+key.
type Cache[T any] struct {
	name   string
	prefix string
	ttl    time.Duration
	kv     KV
	log    *logging.Logger
}

// New creates a cache. name labels metrics and logs; prefix namespaces keys.
func New[T any](kv KV, name, prefix string, ttl time.Duration, log *logging.Logger) *Cache[T] {
	if log == nil {
		log = logging.NewDefault("cache")
	}
	return &Cache[T]{name: name, prefix: prefix, ttl: ttl, kv: kv, log: log}
}

func (c *Cache[T]) Name() string { return c.name }

// Key returns the full KV key for key.
func (c *Cache[T]) Key(key string) string {
	return c.prefix + key
}

// Get returns the cached value for key, calling load on a miss and writing the
// result back. KV failures fall through to load. Loader errors are returned
// as-is and nothing is stored.
func (c *Cache[T]) Get(ctx context.Context, key string, load Loader[T]) (T, error) {
	full := c.Key(key)

	data, err := c.kv.Get(ctx, full)
	switch {
	case err == nil:
		var value T
		decodeErr := json.Unmarshal(data, &value)
		if decodeErr == nil {
			metrics.RecordCache(c.name, "hit")
			return value, nil
		}
		metrics.RecordCache(c.name, "error")
		c.log.WithField("cache", c.name).WithField("key", full).WithError(decodeErr).Warn("dropping corrupt cache entry")
		if delErr := c.kv.Delete(ctx, full); delErr != nil {
			c.log.WithField("cache", c.name).WithError(delErr).Warn("delete corrupt entry failed")
		}
	case errors.Is(err, ErrMiss):
		metrics.RecordCache(c.name, "miss")
	default:
		metrics.RecordCache(c.name, "error")
		c.log.WithField("cache", c.name).WithField("key", full).WithError(err).Warn("cache read failed")
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.store(ctx, full, value)
	return value, nil
}

// Set writes value directly, used when a write path already holds the fresh
// value.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	c.store(ctx, c.Key(key), value)
}

func (c *Cache[T]) store(ctx context.Context, full string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.WithField("cache", c.name).WithError(err).Warn("encode cache entry failed")
		return
	}
	if err := c.kv.Set(ctx, full, data, c.ttl); err != nil {
		c.log.WithField("cache", c.name).WithField("key", full).WithError(err).Warn("cache write failed")
	}
}

// Invalidate removes entries, retrying once. It returns the error when the
// entries may still be served, so callers that guard access can fail the
// write instead.
func (c *Cache[T]) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	err := c.kv.Delete(ctx, full...)
	if err != nil {
		err = c.kv.Delete(ctx, full...)
	}
	if err != nil {
		metrics.RecordCache(c.name, "error")
		c.log.WithField("cache", c.name).WithField("keys", full).WithError(err).Error("cache invalidate failed")
		return err
	}
	return nil
}

// Evict removes entries whose staleness the TTL already bounds, such as
// listings. Failures are logged only.
func (c *Cache[T]) Evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	if err := c.kv.Delete(ctx, full...); err != nil {
		metrics.RecordCache(c.name, "error")
		c.log.WithField("cache", c.name).WithField("ttl", c.ttl.String()).WithError(err).Warn("cache evict failed; entries expire by ttl")
	}
}
