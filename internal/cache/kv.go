// Package cache provides the read-through cache used in front of the
// relational store, with Redis and in-process backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jellydator/ttlcache/v3"
)

// ErrMiss is returned by KV.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// KV is the fast key-value store behind every Cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// =============================================================================
// Redis
// =============================================================================

// RedisKV stores entries in Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects using a redis:// URL and verifies the connection.
func NewRedisKV(ctx context.Context, url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKV{client: client}, nil
}

// NewRedisKVFromClient wraps an existing client.
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity for health probes.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// =============================================================================
// In-process
// =============================================================================

// LocalKV keeps entries in process memory with per-entry expiry.
type LocalKV struct {
	items *ttlcache.Cache[string, []byte]
}

// NewLocalKV creates an in-process store holding at most capacity entries
// (0 means unbounded). Call Start to run the expiry loop.
func NewLocalKV(capacity uint64) *LocalKV {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	return &LocalKV{items: ttlcache.New(opts...)}
}

// Start runs the expired-item cleanup loop in the background.
func (l *LocalKV) Start() {
	go l.items.Start()
}

func (l *LocalKV) Stop() {
	l.items.Stop()
}

func (l *LocalKV) Get(_ context.Context, key string) ([]byte, error) {
	item := l.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrMiss
	}
	return append([]byte(nil), item.Value()...), nil
}

func (l *LocalKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	l.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (l *LocalKV) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		l.items.Delete(key)
	}
	return nil
}

// Len returns the number of stored entries.
func (l *LocalKV) Len() int {
	return l.items.Len()
}
