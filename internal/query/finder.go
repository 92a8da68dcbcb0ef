package query

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/logger"
	"github.com/seo-export/backend/pkg/utils"
)

// Group is the cache group holding query results.
const Group = "posts"

type Store interface {
	TableName(base string) string
	QueryPosts(ctx context.Context, statement string, args []any) ([]models.Post, error)
}

// Finder runs filters against the store, caching each distinct result set.
type Finder struct {
	store Store
	cache *cache.Cache
	ttl   time.Duration
}

func NewFinder(store Store, c *cache.Cache, ttl time.Duration) *Finder {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Finder{store: store, cache: c, ttl: ttl}
}

// Find returns the records matching f. Storage errors are returned and never
// cached.
func (f *Finder) Find(ctx context.Context, filter Filter) ([]models.Post, error) {
	statement, args := Build(filter, Tables{
		Posts: f.store.TableName("posts"),
		Users: f.store.TableName("users"),
	})

	key := f.cache.Key(Group, utils.HashQuery(statement, args))
	posts, err := cache.GetOrCompute(ctx, f.cache, key, f.ttl, func() ([]models.Post, error) {
		logger.Debug("Querying posts", zap.String("statement", statement), zap.Int("args", len(args)))
		return f.store.QueryPosts(ctx, statement, args)
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}
