package seo

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/logger"
)

var primaryDebugKeys = []string{
	"rank_math_seo_score",
	"rank_math_focus_keyword",
	"rank_math_rich_snippet_type",
	"rank_math_internal_links",
	"rank_math_external_links",
	"rank_math_incoming_links",
}

var secondaryDebugKeys = []string{
	"rank_math_score",
	"rank_math_analytics_score",
	"rank_math_keyword",
	"rank_math_primary_keyword",
	"rank_math_target_keyword",
	"rank_math_schema_type",
	"rank_math_structured_data_type",
	"rank_math_rich_snippet",
	"rank_math_schema",
	"rank_math_schema_metadata",
	"rank_math_inlinks",
	"rank_math_outlinks",
	"rank_math_internal_link_count",
	"rank_math_external_link_count",
	"rank_math_incoming_link_count",
	"rank_math_backlinks",
	"rank_math_internal_backlinks",
	"rank_math_internal_links_count",
	"rank_math_external_links_count",
	"rank_math_incoming_links_count",
}

// DebugReport shows every SEO source available for one record. Absent table
// rows and empty site defaults are left nil.
type DebugReport struct {
	LinkTable      *models.InternalMeta    `json:"internal_meta_table,omitempty"`
	AnalyticsTable *models.AnalyticsObject `json:"analytics_table,omitempty"`
	Primary        []models.MetaEntry      `json:"primary_meta"`
	Secondary      []models.MetaEntry      `json:"secondary_meta"`
	Resolved       MetricSet               `json:"resolved"`
	SiteDefaults   *models.SEOOptions      `json:"site_defaults,omitempty"`
}

func (r *Resolver) Debug(ctx context.Context, post models.Post) DebugReport {
	report := DebugReport{
		Primary:   r.metaEntries(ctx, post.ID, primaryDebugKeys),
		Secondary: r.metaEntries(ctx, post.ID, secondaryDebugKeys),
		Resolved:  r.Resolve(ctx, post),
	}

	report.LinkTable = debugRow(ctx, r, post.ID, models.InternalMetaTable, "links", r.store.InternalMetaRow)
	report.AnalyticsTable = debugRow(ctx, r, post.ID, models.AnalyticsTable, "analytics", r.store.AnalyticsRow)

	opts, err := r.store.SEOOptions(ctx)
	if err != nil {
		logger.Warn("Failed to load SEO options", zap.Error(err))
	} else if !opts.Empty() {
		report.SiteDefaults = opts
	}

	return report
}

func debugRow[T any](ctx context.Context, r *Resolver, postID int64, base, kind string,
	read func(ctx context.Context, table string, objectID int64) (*T, error)) *T {
	table, ok, err := r.table(ctx, base)
	if err != nil {
		logger.Warn("Debug table check failed", zap.String("table", base), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	key := r.cache.Key("debug", kind, strconv.FormatInt(postID, 10))
	row, err := cache.GetOrCompute(ctx, r.cache, key, r.cfg.MetricTTL, func() (*T, error) {
		return read(ctx, table, postID)
	})
	if err != nil {
		logger.Warn("Debug row lookup failed", zap.String("table", table), zap.Int64("post_id", postID), zap.Error(err))
		return nil
	}
	return row
}

func (r *Resolver) metaEntries(ctx context.Context, postID int64, keys []string) []models.MetaEntry {
	entries := []models.MetaEntry{}
	for _, key := range keys {
		value, err := r.store.PostMeta(ctx, postID, key)
		if err != nil {
			logger.Warn("Debug meta lookup failed", zap.String("key", key), zap.Int64("post_id", postID), zap.Error(err))
			continue
		}
		if !isBlank(value) {
			entries = append(entries, models.MetaEntry{Key: key, Value: value})
		}
	}
	return entries
}
