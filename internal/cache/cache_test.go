package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/cache/memory"
	"github.com/seo-export/backend/pkg/circuitbreaker"
)

// flakyBackend wraps a memory backend and fails every call while down is set.
type flakyBackend struct {
	inner *memory.Backend

	mu    sync.Mutex
	down  bool
	calls int
}

var errBackendDown = errors.New("backend down")

func (f *flakyBackend) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errBackendDown
	}
	return nil
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.fail(); err != nil {
		return nil, false, err
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.Set(ctx, key, value, ttl)
}

func (f *flakyBackend) Delete(ctx context.Context, keys ...string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.Delete(ctx, keys...)
}

func (f *flakyBackend) DeletePrefix(ctx context.Context, prefix string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.inner.DeletePrefix(ctx, prefix)
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	b, err := memory.New(100)
	require.NoError(t, err)
	return cache.New(b, "pcer_")
}

func TestKeys(t *testing.T) {
	c := newCache(t)
	assert.Equal(t, "pcer_score_42", c.Key("score", "42"))
	assert.Equal(t, "pcer_internal_links_42", c.Key("internal_links", "42"))
	assert.Equal(t, "pcer_posts_", c.GroupPrefix("posts"))
	assert.Equal(t, "pcer_", c.Prefix())
}

func TestGetOrCompute_HitSkipsCompute(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	calls := 0
	compute := func() (string, error) {
		calls++
		return "87", nil
	}

	v, err := cache.GetOrCompute(ctx, c, c.Key("score", "1"), time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "87", v)

	v, err = cache.GetOrCompute(ctx, c, c.Key("score", "1"), time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "87", v)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_ComputeErrorNotCached(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	key := c.Key("posts", "abc")

	storageErr := errors.New("disk I/O error")
	_, err := cache.GetOrCompute(ctx, c, key, time.Minute, func() ([]int, error) {
		return nil, storageErr
	})
	require.ErrorIs(t, err, storageErr)

	calls := 0
	v, err := cache.GetOrCompute(ctx, c, key, time.Minute, func() ([]int, error) {
		calls++
		return []int{1, 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_StructRoundTrip(t *testing.T) {
	type row struct {
		ID    int64
		Title string
	}
	c := newCache(t)
	ctx := context.Background()

	want := []row{{ID: 2, Title: "B"}, {ID: 1, Title: "A"}}
	_, err := cache.GetOrCompute(ctx, c, "pcer_posts_x", time.Minute, func() ([]row, error) { return want, nil })
	require.NoError(t, err)

	got, err := cache.GetOrCompute(ctx, c, "pcer_posts_x", time.Minute, func() ([]row, error) {
		t.Fatal("compute called on hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInvalidate(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	for _, k := range []string{"score", "keyword"} {
		_, err := cache.GetOrCompute(ctx, c, c.Key(k, "7"), time.Minute, func() (string, error) { return "v", nil })
		require.NoError(t, err)
	}

	require.NoError(t, c.Invalidate(ctx, c.Key("score", "7"), c.Key("keyword", "7")))
	require.NoError(t, c.Invalidate(ctx))

	calls := 0
	_, err := cache.GetOrCompute(ctx, c, c.Key("score", "7"), time.Minute, func() (string, error) {
		calls++
		return "v2", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestInvalidateGroup(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	fill := func(key string) int {
		calls := 0
		_, err := cache.GetOrCompute(ctx, c, key, time.Minute, func() (string, error) {
			calls++
			return "v", nil
		})
		require.NoError(t, err)
		return calls
	}

	fill(c.Key("posts", "a"))
	fill(c.Key("posts", "b"))
	fill(c.Key("score", "1"))

	require.NoError(t, c.InvalidateGroup(ctx, c.GroupPrefix("posts")))

	assert.Equal(t, 1, fill(c.Key("posts", "a")))
	assert.Equal(t, 1, fill(c.Key("posts", "b")))
	assert.Equal(t, 0, fill(c.Key("score", "1")))
}

func TestBackendFailureIsAMiss(t *testing.T) {
	inner, err := memory.New(10)
	require.NoError(t, err)
	backend := &flakyBackend{inner: inner, down: true}
	c := cache.New(backend, "pcer_")
	ctx := context.Background()

	v, err := cache.GetOrCompute(ctx, c, "pcer_score_1", time.Minute, func() (string, error) { return "55", nil })
	require.NoError(t, err)
	assert.Equal(t, "55", v)

	err = c.Invalidate(ctx, "pcer_score_1")
	assert.ErrorIs(t, err, errBackendDown)
}

func TestOpenBreakerBypassesBackend(t *testing.T) {
	inner, err := memory.New(10)
	require.NoError(t, err)
	backend := &flakyBackend{inner: inner, down: true}
	cb := circuitbreaker.New("test", circuitbreaker.Config{FailureThreshold: 1, OpenTimeout: time.Hour})
	c := cache.New(backend, "pcer_", cache.WithBreaker(cb))
	ctx := context.Background()

	_, err = cache.GetOrCompute(ctx, c, "pcer_score_1", time.Minute, func() (string, error) { return "1", nil })
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	backend.mu.Lock()
	before := backend.calls
	backend.mu.Unlock()

	v, err := cache.GetOrCompute(ctx, c, "pcer_score_2", time.Minute, func() (string, error) { return "2", nil })
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, before, backend.calls)
}

func TestPurge(t *testing.T) {
	b, err := memory.New(10)
	require.NoError(t, err)
	c := cache.New(b, "pcer_")
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "pcer_score_1", []byte(`"1"`), 0))
	require.NoError(t, b.Set(ctx, "pcer_posts_abc", []byte(`[]`), 0))
	require.NoError(t, b.Set(ctx, "other_key", []byte(`"x"`), 0))

	require.NoError(t, c.Purge(ctx))

	assert.Equal(t, 1, b.Len())
	_, found, err := b.Get(ctx, "other_key")
	require.NoError(t, err)
	assert.True(t, found)
}
