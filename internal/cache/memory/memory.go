package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value    []byte
	expireAt time.Time
}

// Backend is an in-process cache.Backend: a size-bounded LRU whose entries
// carry their own expiry. The mutex makes multi-key and prefix deletes
// atomic with respect to reads.
type Backend struct {
	mu  sync.RWMutex
	lru *lru.Cache[string, entry]
	now func() time.Time
}

func New(size int) (*Backend, error) {
	return NewWithClock(size, time.Now)
}

func NewWithClock(size int, now func() time.Time) (*Backend, error) {
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	return &Backend{lru: c, now: now}, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	e, ok := b.lru.Get(key)
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !e.expireAt.IsZero() && !b.now().Before(e.expireAt) {
		b.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := b.lru.Peek(key); ok && !cur.expireAt.IsZero() && !b.now().Before(cur.expireAt) {
			b.lru.Remove(key)
		}
		b.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a copy of value. A non-positive ttl never expires.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = b.now().Add(ttl)
	}

	b.mu.Lock()
	b.lru.Add(key, e)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.lru.Remove(k)
	}
	return nil
}

func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range b.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			b.lru.Remove(k)
		}
	}
	return nil
}

func (b *Backend) Len() int {
	return b.lru.Len()
}
