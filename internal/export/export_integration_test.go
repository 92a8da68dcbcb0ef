package export

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/cache/memory"
	"github.com/seo-export/backend/internal/hooks"
	"github.com/seo-export/backend/internal/query"
	"github.com/seo-export/backend/internal/seo"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/internal/storage/sqlite"
)

type stack struct {
	db      *sqlite.Client
	service *Service
}

func newStack(t *testing.T) stack {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "content.db"), "wp_", "https://example.com")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	require.NoError(t, db.InitSEOTables())

	backend, err := memory.New(1000)
	require.NoError(t, err)
	c := cache.New(backend, "pcer_")
	db.OnChange(hooks.NewInvalidator(c))

	resolver := seo.NewResolver(db, c, seo.Config{MetricTTL: 30 * time.Minute, TableExistsTTL: time.Hour})
	finder := query.NewFinder(db, c, 5*time.Minute)
	return stack{db: db, service: NewService(finder, resolver, db, WithClock(fixedNow))}
}

func TestExport_EndToEnd(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	author, err := s.db.SaveUser(ctx, &models.User{Login: "ana", DisplayName: "Ana"})
	require.NoError(t, err)

	older, err := s.db.SavePost(ctx, &models.Post{Title: "Older", Slug: "older", AuthorID: author, Modified: "2024-04-01 09:00:00"})
	require.NoError(t, err)
	newer, err := s.db.SavePost(ctx, &models.Post{Title: "Newer", Slug: "newer", AuthorID: author, Modified: "2024-04-02 09:00:00"})
	require.NoError(t, err)
	_, err = s.db.SavePost(ctx, &models.Post{Title: "Draft", Status: models.StatusDraft, Modified: "2024-04-03 09:00:00"})
	require.NoError(t, err)
	_, err = s.db.SavePost(ctx, &models.Post{Title: "About", Type: models.PostTypePage, Modified: "2024-04-04 09:00:00"})
	require.NoError(t, err)

	require.NoError(t, s.db.UpsertAnalytics(ctx, &models.AnalyticsObject{ObjectID: older, SEOScore: "87"}))
	require.NoError(t, s.db.SetPostMeta(ctx, newer, "rank_math_score", "72"))

	res, err := s.service.Export(ctx, query.Filter{RecordType: "post", RecordStatus: "publish"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(res.CSV, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "Newer,https://example.com/newer/,Ana,publish,2024-04-02 09:00:00,,72,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "Older,https://example.com/older/,Ana,publish,2024-04-01 09:00:00,,87,"), lines[2])
}

func TestExport_WriteInvalidatesCachedResults(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	filter := query.Filter{RecordType: "all", RecordStatus: "all"}

	id, err := s.db.SavePost(ctx, &models.Post{Title: "Post", Modified: "2024-04-01 09:00:00"})
	require.NoError(t, err)
	require.NoError(t, s.db.SetPostMeta(ctx, id, "rank_math_focus_keyword", "alpha"))

	res, err := s.service.Export(ctx, filter)
	require.NoError(t, err)
	assert.Contains(t, res.CSV, ",alpha,")

	require.NoError(t, s.db.UpsertAnalytics(ctx, &models.AnalyticsObject{ObjectID: id, PrimaryKey: "beta, gamma"}))
	_, err = s.db.SavePost(ctx, &models.Post{Title: "Second", Modified: "2024-04-02 09:00:00"})
	require.NoError(t, err)

	res, err = s.service.Export(ctx, filter)
	require.NoError(t, err)
	assert.Contains(t, res.CSV, ",beta,")
	assert.Contains(t, res.CSV, "Second,")
}

func TestExport_DateRange(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	for _, modified := range []string{"2024-01-31 23:59:59", "2024-02-01 00:00:00", "2024-02-29 23:59:59", "2024-03-01 00:00:00"} {
		_, err := s.db.SavePost(ctx, &models.Post{Title: modified[:10], Modified: modified})
		require.NoError(t, err)
	}

	res, err := s.service.Export(ctx, query.Filter{RecordType: "all", RecordStatus: "all", DateFrom: "2024-02-01", DateTo: "2024-02-29"})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(res.CSV, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2024-02-29,"))
	assert.True(t, strings.HasPrefix(lines[2], "2024-02-01,"))

	_, err = s.service.Export(ctx, query.Filter{RecordType: "page", RecordStatus: "all"})
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestExport_SettingsChangeRefreshesSchemaDefault(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	filter := query.Filter{RecordType: "post", RecordStatus: "publish"}

	_, err := s.db.SavePost(ctx, &models.Post{Title: "Post", Modified: "2024-04-01 09:00:00"})
	require.NoError(t, err)
	require.NoError(t, s.db.SetSEOOptions(ctx, map[string]any{
		"titles": map[string]any{"pt_default_rich_snippet": "article"},
	}))

	res, err := s.service.Export(ctx, filter)
	require.NoError(t, err)
	assert.Contains(t, res.CSV, ",Article,0,0,0\n")

	require.NoError(t, s.db.SetSEOOptions(ctx, map[string]any{
		"titles": map[string]any{"pt_post_default_rich_snippet": "recipe"},
	}))

	res, err = s.service.Export(ctx, filter)
	require.NoError(t, err)
	assert.Contains(t, res.CSV, ",Recipe,0,0,0\n")
}
