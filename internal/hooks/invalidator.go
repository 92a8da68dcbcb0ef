package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/query"
	"github.com/seo-export/backend/internal/seo"
	"github.com/seo-export/backend/pkg/logger"
)

// Invalidator drops cached data when a record is written or deleted. It
// satisfies sqlite.ChangeListener and sqlite.OptionsListener.
type Invalidator struct {
	cache *cache.Cache
}

func NewInvalidator(c *cache.Cache) *Invalidator {
	return &Invalidator{cache: c}
}

// RecordChanged deletes every metric and debug entry of the record in one
// operation, then every cached query result.
func (i *Invalidator) RecordChanged(ctx context.Context, postID int64) error {
	if err := i.cache.Invalidate(ctx, seo.RecordKeys(i.cache, postID)...); err != nil {
		return fmt.Errorf("failed to invalidate record %d: %w", postID, err)
	}
	if err := i.cache.InvalidateGroup(ctx, i.cache.GroupPrefix(query.Group)); err != nil {
		return fmt.Errorf("failed to invalidate query results: %w", err)
	}

	logger.Debug("Record cache invalidated", zap.Int64("post_id", postID))
	return nil
}

// OptionsChanged drops the cached site SEO settings.
func (i *Invalidator) OptionsChanged(ctx context.Context) error {
	if err := i.cache.Invalidate(ctx, seo.OptionsKey(i.cache)); err != nil {
		return fmt.Errorf("failed to invalidate SEO options: %w", err)
	}
	return nil
}
