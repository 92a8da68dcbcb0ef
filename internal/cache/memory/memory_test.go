package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestBackend_TTL(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	b, err := NewWithClock(10, clk.now)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "pcer_posts_abc", []byte("[]"), 300*time.Second))

	v, ok, err := b.Get(ctx, "pcer_posts_abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))

	clk.t = clk.t.Add(300 * time.Second)
	_, ok, err = b.Get(ctx, "pcer_posts_abc")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires at its ttl")
	assert.Equal(t, 0, b.Len())
}

func TestBackend_StoresCopy(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)
	ctx := context.Background()

	buf := []byte("87")
	require.NoError(t, b.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'x'

	v, _, _ := b.Get(ctx, "k")
	assert.Equal(t, "87", string(v))
}

func TestBackend_DeleteAndPrefix(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)
	ctx := context.Background()

	for _, k := range []string{"pcer_posts_1", "pcer_posts_2", "pcer_score_1", "pcer_keyword_1"} {
		require.NoError(t, b.Set(ctx, k, []byte("1"), 0))
	}

	require.NoError(t, b.DeletePrefix(ctx, "pcer_posts_"))
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.Delete(ctx, "pcer_score_1", "pcer_keyword_1"))
	assert.Equal(t, 0, b.Len())
}

func TestBackend_EvictsLeastRecentlyUsed(t *testing.T) {
	b, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = b.Get(ctx, "a")
	require.NoError(t, b.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := b.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = b.Get(ctx, "a")
	assert.True(t, ok)
}
