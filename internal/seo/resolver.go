package seo

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/utils"
)

// Store is the read side of the content store the resolver depends on.
type Store interface {
	TableName(base string) string
	TablePrefix() string
	TableExists(ctx context.Context, name string) (bool, error)
	ColumnValue(ctx context.Context, table, column string, objectID int64) (string, error)
	PostMeta(ctx context.Context, postID int64, key string) (string, error)
	SEOOptions(ctx context.Context) (*models.SEOOptions, error)
	AnalyticsRow(ctx context.Context, table string, objectID int64) (*models.AnalyticsObject, error)
	InternalMetaRow(ctx context.Context, table string, objectID int64) (*models.InternalMeta, error)
}

const (
	KindScore              = "score"
	KindKeyword            = "keyword"
	KindAdditionalKeywords = "additional_keywords"
	KindSchema             = "schema"
	KindInternalLinks      = "internal_links"
	KindExternalLinks      = "external_links"
	KindIncomingLinks      = "incoming_links"
)

// MetricKinds lists every per-record metric cache kind.
var MetricKinds = []string{
	KindScore,
	KindKeyword,
	KindAdditionalKeywords,
	KindSchema,
	KindInternalLinks,
	KindExternalLinks,
	KindIncomingLinks,
}

// DebugKinds are the cache kinds of the raw table rows shown by Debug, keyed
// as debug_<kind>_<id>.
var DebugKinds = []string{"links", "analytics"}

var keywordKeys = []string{
	"rank_math_focus_keyword",
	"rank_math_keyword",
	"rank_math_primary_keyword",
	"rank_math_target_keyword",
}

const secondaryKeywordKey = "rank_math_focus_keyword_secondary"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type MetricSet struct {
	Score              string `json:"score"`
	MainKeyword        string `json:"main_keyword"`
	AdditionalKeywords string `json:"additional_keywords"`
	SchemaType         string `json:"schema_type"`
	InternalLinks      int    `json:"internal_links"`
	ExternalLinks      int    `json:"external_links"`
	IncomingLinks      int    `json:"incoming_links"`
}

type Config struct {
	MetricTTL      time.Duration
	TableExistsTTL time.Duration
}

type Resolver struct {
	store  Store
	cache  *cache.Cache
	cfg    Config
	chains map[string]Chain
}

func NewResolver(store Store, c *cache.Cache, cfg Config) *Resolver {
	if cfg.MetricTTL <= 0 {
		cfg.MetricTTL = 1800 * time.Second
	}
	if cfg.TableExistsTTL <= 0 {
		cfg.TableExistsTTL = 3600 * time.Second
	}

	r := &Resolver{store: store, cache: c, cfg: cfg}
	r.chains = map[string]Chain{
		KindScore: {
			Kind: KindScore,
			Steps: append(
				[]Step{r.tableStep(KindScore, models.AnalyticsTable, "seo_score", acceptPresent)},
				r.metaSteps(acceptNonBlank,
					"rank_math_seo_score",
					"rank_math_score",
					"rank_math_analytics_score",
					"rank_math_advanced_seo_score",
				)...,
			),
		},
		KindKeyword: {
			Kind: KindKeyword,
			Steps: append(
				[]Step{r.tableStep(KindKeyword, models.AnalyticsTable, "primary_key", acceptMainKeyword)},
				r.metaSteps(acceptMainKeyword, keywordKeys...)...,
			),
		},
		// The secondary field is only reached when no earlier source holds
		// more than one keyword.
		KindAdditionalKeywords: {
			Kind: KindAdditionalKeywords,
			Steps: concat(
				[]Step{r.tableStep(KindAdditionalKeywords, models.AnalyticsTable, "primary_key", acceptAdditionalKeywords)},
				r.metaSteps(acceptAdditionalKeywords, keywordKeys...),
				r.metaSteps(acceptNonBlank, secondaryKeywordKey),
			),
		},
		KindSchema: {
			Kind: KindSchema,
			Steps: concat(
				[]Step{r.tableStep(KindSchema, models.AnalyticsTable, "schemas_in_use", acceptSchema)},
				r.metaSteps(acceptSchema,
					"rank_math_rich_snippet_type",
					"rank_math_schema_type",
					"rank_math_structured_data_type",
				),
				[]Step{r.typeDefaultStep(), r.siteDefaultStep("pt_default_rich_snippet")},
			),
		},
		KindInternalLinks: {
			Kind:    KindInternalLinks,
			Default: "0",
			Steps: append(
				[]Step{r.tableStep(KindInternalLinks, models.InternalMetaTable, "internal_link_count", acceptPresent)},
				r.metaSteps(acceptPresent,
					"rank_math_internal_links",
					"rank_math_internal_link_count",
					"rank_math_internal_links_count",
					"rank_math_inlinks",
					"rank_math_internal_backlinks",
				)...,
			),
		},
		KindExternalLinks: {
			Kind:    KindExternalLinks,
			Default: "0",
			Steps: append(
				[]Step{r.tableStep(KindExternalLinks, models.InternalMetaTable, "external_link_count", acceptPresent)},
				r.metaSteps(acceptPresent,
					"rank_math_external_links",
					"rank_math_external_link_count",
					"rank_math_external_links_count",
					"rank_math_outlinks",
					"rank_math_backlinks",
				)...,
			),
		},
		KindIncomingLinks: {
			Kind:    KindIncomingLinks,
			Default: "0",
			Steps: append(
				[]Step{r.tableStep(KindIncomingLinks, models.InternalMetaTable, "incoming_link_count", acceptPresent)},
				r.metaSteps(acceptPresent,
					"rank_math_incoming_links",
					"rank_math_incoming_link_count",
					"rank_math_incoming_links_count",
					"rank_math_backlinks",
					"rank_math_internal_backlinks",
				)...,
			),
		},
	}
	return r
}

func concat(groups ...[]Step) []Step {
	var out []Step
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Resolve resolves every metric of a record.
func (r *Resolver) Resolve(ctx context.Context, post models.Post) MetricSet {
	t := Target{ID: post.ID, Type: post.Type}
	return MetricSet{
		Score:              r.Metric(ctx, KindScore, t),
		MainKeyword:        r.Metric(ctx, KindKeyword, t),
		AdditionalKeywords: r.Metric(ctx, KindAdditionalKeywords, t),
		SchemaType:         r.Metric(ctx, KindSchema, t),
		InternalLinks:      parseCount(r.Metric(ctx, KindInternalLinks, t)),
		ExternalLinks:      parseCount(r.Metric(ctx, KindExternalLinks, t)),
		IncomingLinks:      parseCount(r.Metric(ctx, KindIncomingLinks, t)),
	}
}

// Metric runs the chain of one metric kind. Unknown kinds resolve to "".
func (r *Resolver) Metric(ctx context.Context, kind string, t Target) string {
	chain, ok := r.chains[kind]
	if !ok {
		return ""
	}
	return chain.Resolve(ctx, t)
}

// RecordKeys returns every cache key holding data of one record.
func RecordKeys(c *cache.Cache, postID int64) []string {
	id := strconv.FormatInt(postID, 10)
	keys := make([]string, 0, len(MetricKinds)+len(DebugKinds))
	for _, kind := range MetricKinds {
		keys = append(keys, c.Key(kind, id))
	}
	for _, kind := range DebugKinds {
		keys = append(keys, c.Key("debug", kind, id))
	}
	return keys
}

// OptionsKey is the cache key of the site SEO settings document.
func OptionsKey(c *cache.Cache) string {
	return c.Key("options")
}

// tableStep reads column of the record's row in a dedicated table, through
// the cache. A missing table yields "".
func (r *Resolver) tableStep(kind, base, column string, accept func(string) (string, bool)) Step {
	return Step{
		Source: "table",
		Key:    base + "." + column,
		Accept: accept,
		Lookup: func(ctx context.Context, t Target) (string, error) {
			table, ok, err := r.table(ctx, base)
			if err != nil || !ok {
				return "", err
			}
			key := r.cache.Key(kind, strconv.FormatInt(t.ID, 10))
			return cache.GetOrCompute(ctx, r.cache, key, r.cfg.MetricTTL, func() (string, error) {
				return r.store.ColumnValue(ctx, table, column, t.ID)
			})
		},
	}
}

func (r *Resolver) metaSteps(accept func(string) (string, bool), keys ...string) []Step {
	steps := make([]Step, 0, len(keys))
	for _, key := range keys {
		key := key
		steps = append(steps, Step{
			Source: "meta",
			Key:    key,
			Accept: accept,
			Lookup: func(ctx context.Context, t Target) (string, error) {
				return r.store.PostMeta(ctx, t.ID, key)
			},
		})
	}
	return steps
}

// typeDefaultStep reads the default snippet type configured for the
// record's own type.
func (r *Resolver) typeDefaultStep() Step {
	step := r.siteDefaultStep("")
	step.Key = "pt_<type>_default_rich_snippet"
	step.Lookup = func(ctx context.Context, t Target) (string, error) {
		if t.Type == "" {
			return "", nil
		}
		opts, err := r.options(ctx)
		if err != nil {
			return "", err
		}
		return opts.Title("pt_" + t.Type + "_default_rich_snippet"), nil
	}
	return step
}

func (r *Resolver) siteDefaultStep(setting string) Step {
	return Step{
		Source: "site_default",
		Key:    setting,
		Accept: acceptSiteDefault,
		Lookup: func(ctx context.Context, t Target) (string, error) {
			opts, err := r.options(ctx)
			if err != nil {
				return "", err
			}
			return opts.Title(setting), nil
		},
	}
}

// options returns the site SEO settings, cached under OptionsKey for the
// metric TTL.
func (r *Resolver) options(ctx context.Context) (*models.SEOOptions, error) {
	return cache.GetOrCompute(ctx, r.cache, OptionsKey(r.cache), r.cfg.MetricTTL, func() (*models.SEOOptions, error) {
		return r.store.SEOOptions(ctx)
	})
}

// table returns the prefixed name of base and whether it exists. Existence
// is cached per table name.
func (r *Resolver) table(ctx context.Context, base string) (string, bool, error) {
	name := r.store.TableName(base)
	if !tableNamePattern.MatchString(strings.TrimPrefix(name, r.store.TablePrefix())) {
		return name, false, nil
	}

	key := r.cache.Key("table", "exists", utils.HashString(name))
	exists, err := cache.GetOrCompute(ctx, r.cache, key, r.cfg.TableExistsTTL, func() (bool, error) {
		return r.store.TableExists(ctx, name)
	})
	if err != nil {
		return name, false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return name, exists, nil
}

// parseCount converts a link count to an int. Non-numeric values count as 0.
func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
