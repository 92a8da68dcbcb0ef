package export

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/csvexport"
	"github.com/seo-export/backend/internal/metrics"
	"github.com/seo-export/backend/internal/query"
	"github.com/seo-export/backend/internal/seo"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/internal/storage/sqlite"
	"github.com/seo-export/backend/pkg/logger"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var (
	allowedTypes    = []string{models.PostTypePost, models.PostTypePage, query.All}
	allowedStatuses = []string{models.StatusPublish, models.StatusDraft, models.StatusPending, query.All}
)

type Finder interface {
	Find(ctx context.Context, filter query.Filter) ([]models.Post, error)
}

type Resolver interface {
	Resolve(ctx context.Context, post models.Post) seo.MetricSet
	Debug(ctx context.Context, post models.Post) seo.DebugReport
}

type Store interface {
	PostCategories(ctx context.Context, postID int64) ([]string, error)
	LatestPost(ctx context.Context, postType, status string) (*models.Post, error)
}

type Result struct {
	CSV      string `json:"csv_data"`
	Filename string `json:"filename"`
}

type DebugResult struct {
	PostTitle string          `json:"post_title"`
	PostID    int64           `json:"post_id"`
	DebugData seo.DebugReport `json:"debug_data"`
}

type Service struct {
	finder   Finder
	resolver Resolver
	store    Store
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces the clock used for export filenames.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(finder Finder, resolver Resolver, store Store, opts ...Option) *Service {
	s := &Service{
		finder:   finder,
		resolver: resolver,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func Validate(f query.Filter) error {
	if !contains(allowedTypes, f.RecordType) {
		return ErrInvalidType
	}
	if !contains(allowedStatuses, f.RecordStatus) {
		return ErrInvalidStatus
	}
	if f.DateFrom != "" && !datePattern.MatchString(f.DateFrom) {
		return ErrInvalidDateFrom
	}
	if f.DateTo != "" && !datePattern.MatchString(f.DateTo) {
		return ErrInvalidDateTo
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, allowed := range values {
		if allowed == v {
			return true
		}
	}
	return false
}

// Export validates f, loads the matching records, resolves their metrics
// and renders the CSV.
func (s *Service) Export(ctx context.Context, f query.Filter) (*Result, error) {
	start := time.Now()
	result, err := s.export(ctx, f)
	metrics.ExportDuration.Observe(time.Since(start).Seconds())
	metrics.ExportTotal.WithLabelValues("export", outcome(err)).Inc()
	return result, err
}

func (s *Service) export(ctx context.Context, f query.Filter) (*Result, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}

	posts, err := s.finder.Find(ctx, f)
	if err != nil {
		logger.Error("Failed to query posts for export", zap.Any("filter", f), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(posts) == 0 {
		return nil, ErrNoRecords
	}

	rows := make([]csvexport.Row, 0, len(posts))
	for _, post := range posts {
		categories, err := s.store.PostCategories(ctx, post.ID)
		if err != nil {
			logger.Warn("Failed to load categories", zap.Int64("post_id", post.ID), zap.Error(err))
		}
		post.Categories = categories

		rows = append(rows, csvexport.Row{
			Post:    post,
			Metrics: s.resolver.Resolve(ctx, post),
		})
	}

	data := csvexport.Assemble(rows)
	if data == "" {
		return nil, ErrGeneration
	}
	metrics.ExportRows.Observe(float64(len(rows)))

	logger.Info("Export generated",
		zap.String("post_type", f.RecordType),
		zap.String("post_status", f.RecordStatus),
		zap.Int("rows", len(rows)),
	)

	return &Result{
		CSV:      data,
		Filename: Filename(s.now()),
	}, nil
}

// Filename names an export generated at t.
func Filename(t time.Time) string {
	return "rank-math-export-" + t.UTC().Format("2006-01-02-15-04-05") + ".csv"
}

// DebugSample reports every SEO source found for the most recently modified
// published post.
func (s *Service) DebugSample(ctx context.Context) (*DebugResult, error) {
	result, err := s.debugSample(ctx)
	metrics.ExportTotal.WithLabelValues("debug", outcome(err)).Inc()
	return result, err
}

func (s *Service) debugSample(ctx context.Context) (*DebugResult, error) {
	post, err := s.store.LatestPost(ctx, models.PostTypePost, models.StatusPublish)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrNoDebugRecord
		}
		return nil, fmt.Errorf("failed to load debug post: %w", err)
	}

	return &DebugResult{
		PostTitle: post.Title,
		PostID:    post.ID,
		DebugData: s.resolver.Debug(ctx, *post),
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoRecords), errors.Is(err, ErrNoDebugRecord):
		return "empty"
	case errors.Is(err, ErrGeneration):
		return "error"
	default:
		if _, ok := Message(err); ok {
			return "invalid"
		}
		return "error"
	}
}
