package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/metrics"
	"github.com/seo-export/backend/pkg/circuitbreaker"
	"github.com/seo-export/backend/pkg/logger"
)

// Backend stores opaque values with a per-entry TTL. Get reports a miss with
// found == false and a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes all keys in one operation.
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache is a read-through cache over a Backend. Backend failures on the read
// and fill paths are logged and treated as misses; invalidation failures are
// returned to the caller.
type Cache struct {
	backend Backend
	prefix  string
	breaker *circuitbreaker.CircuitBreaker
}

type Option func(*Cache)

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Cache) { c.breaker = cb }
}

func New(backend Backend, prefix string, opts ...Option) *Cache {
	c := &Cache{backend: backend, prefix: prefix}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New("cache", circuitbreaker.Config{Logger: logger.Log})
	}
	return c
}

// Key joins parts with "_" under the cache prefix.
func (c *Cache) Key(parts ...string) string {
	return c.prefix + strings.Join(parts, "_")
}

// GroupPrefix is the prefix shared by every key built as Key(group, ...).
func (c *Cache) GroupPrefix(group string) string {
	return c.prefix + group + "_"
}

func (c *Cache) Prefix() string {
	return c.prefix
}

// GetOrCompute returns the cached value for key, or calls compute, stores its
// result for ttl and returns it. A compute error is returned as is and
// nothing is stored.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	kind := c.kindOf(key)

	if data, ok := c.read(ctx, key); ok {
		var cached T
		err := json.Unmarshal(data, &cached)
		if err == nil {
			metrics.CacheHits.WithLabelValues(kind).Inc()
			return cached, nil
		}
		logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheMisses.WithLabelValues(kind).Inc()

	value, err := compute()
	if err != nil {
		return value, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Failed to encode cache value", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	c.write(ctx, key, data, ttl)

	return value, nil
}

func (c *Cache) read(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		c.backendFailed("get", key, err)
		return nil, false
	}
	return data, found
}

func (c *Cache) write(ctx context.Context, key string, data []byte, ttl time.Duration) {
	err := c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, ttl)
	})
	if err != nil {
		c.backendFailed("set", key, err)
	}
}

func (c *Cache) backendFailed(op, key string, err error) {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		logger.Debug("Cache bypassed, breaker open", zap.String("op", op), zap.String("key", key))
		return
	}
	metrics.CacheErrors.WithLabelValues(op).Inc()
	logger.Warn("Cache backend failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

// Invalidate deletes the given full keys as one group.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		return err
	}
	metrics.CacheInvalidations.WithLabelValues("key").Add(float64(len(keys)))
	return nil
}

// InvalidateGroup deletes every key starting with prefix.
func (c *Cache) InvalidateGroup(ctx context.Context, prefix string) error {
	if err := c.backend.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	metrics.CacheInvalidations.WithLabelValues("group").Inc()
	return nil
}

// Purge drops everything under the cache prefix.
func (c *Cache) Purge(ctx context.Context) error {
	return c.InvalidateGroup(ctx, c.prefix)
}

// kindOf derives a low-cardinality metrics label from a key by dropping the
// prefix and the last "_"-separated segment, e.g. "pcer_internal_links_12"
// becomes "internal_links".
func (c *Cache) kindOf(key string) string {
	rest := strings.TrimPrefix(key, c.prefix)
	if i := strings.LastIndexByte(rest, '_'); i > 0 {
		return rest[:i]
	}
	return "other"
}
