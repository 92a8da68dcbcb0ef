package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-export/backend/internal/auth"
	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/cache/memory"
	"github.com/seo-export/backend/internal/export"
	"github.com/seo-export/backend/internal/hooks"
	"github.com/seo-export/backend/internal/middleware/admin"
	"github.com/seo-export/backend/internal/query"
	"github.com/seo-export/backend/internal/seo"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/internal/storage/sqlite"
	"github.com/seo-export/backend/pkg/config"
)

const (
	cookieName = "seo_export_session"
	hookSecret = "hook-secret"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	app *fiber.App
	db  *sqlite.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "content.db"), "wp_", "https://example.com")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	require.NoError(t, db.InitSEOTables())

	backend, err := memory.New(1000)
	require.NoError(t, err)
	c := cache.New(backend, "pcer_")
	invalidator := hooks.NewInvalidator(c)
	db.OnChange(invalidator)

	resolver := seo.NewResolver(db, c, seo.Config{})
	finder := query.NewFinder(db, c, time.Minute)

	cfg := &config.Config{
		Server: config.ServerConfig{BodyLimit: 1 << 20},
		Auth: config.AuthConfig{
			SessionCookie: cookieName,
			HookSecret:    hookSecret,
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
	}

	app, stop := NewApp(Deps{
		Config:      cfg,
		Exporter:    export.NewService(finder, resolver, db),
		Sessions:    auth.NewSessions(db, time.Hour),
		Nonces:      auth.NewNonces("nonce-secret", 24*time.Hour),
		Invalidator: invalidator,
		DB:          db,
	})
	t.Cleanup(stop)

	ctx := context.Background()
	for login, caps := range map[string][]string{"admin": {auth.ManageOptions}, "editor": {"edit_posts"}} {
		hash, err := auth.HashPassword("pw-" + login)
		require.NoError(t, err)
		_, err = db.SaveUser(ctx, &models.User{Login: login, DisplayName: strings.ToUpper(login), PasswordHash: hash, Capabilities: caps})
		require.NoError(t, err)
	}

	return &testServer{app: app, db: db}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

// login returns the session cookie and the nonce issued with it.
func (s *testServer) login(t *testing.T, user string) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session",
		strings.NewReader(`{"user_login":"`+user+`","password":"pw-`+user+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, body := s.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	var data struct {
		Nonce string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c, data.Nonce
		}
	}
	t.Fatal("no session cookie")
	return nil, ""
}

func exportRequest(form url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/export", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestExport_RequiresNonce(t *testing.T) {
	s := newTestServer(t)
	cookie, _ := s.login(t, "admin")

	resp, body := s.do(t, exportRequest(url.Values{"post_type": {"all"}, "post_status": {"all"}}, cookie))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Security check failed.", string(body))

	resp, body = s.do(t, exportRequest(url.Values{"post_type": {"all"}, "post_status": {"all"}, "nonce": {"bogus"}}, cookie))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Security check failed.", string(body))
}

func TestExport_RequiresCapability(t *testing.T) {
	s := newTestServer(t)
	cookie, nonce := s.login(t, "editor")

	resp, body := s.do(t, exportRequest(url.Values{"post_type": {"all"}, "post_status": {"all"}, "nonce": {nonce}}, cookie))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You do not have permission to perform this action.", string(body))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonce", nil)
	req.AddCookie(cookie)
	resp, _ = s.do(t, req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestExport_Flow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	cookie, nonce := s.login(t, "admin")

	id, err := s.db.SavePost(ctx, &models.Post{Title: "Hello, world", Slug: "hello-world", Modified: "2024-04-01 09:00:00"})
	require.NoError(t, err)
	require.NoError(t, s.db.UpsertAnalytics(ctx, &models.AnalyticsObject{ObjectID: id, SEOScore: "87", PrimaryKey: "seo, growth"}))
	require.NoError(t, s.db.UpsertInternalMeta(ctx, &models.InternalMeta{ObjectID: id, InternalLinkCount: 3, ExternalLinkCount: 1}))
	require.NoError(t, s.db.SetPostCategories(ctx, id, []string{"News"}))

	resp, body := s.do(t, exportRequest(url.Values{"post_type": {"post"}, "post_status": {"publish"}, "nonce": {nonce}}, cookie))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.True(t, env.Success, string(body))

	var result export.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, strings.HasPrefix(result.Filename, "rank-math-export-"))
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))
	assert.Equal(t,
		`"Hello, world",https://example.com/hello-world/,,publish,2024-04-01 09:00:00,News,87,seo,,3,1,0`+"\n",
		strings.SplitN(result.CSV, "\n", 2)[1])
}

func TestExport_StructuredErrors(t *testing.T) {
	s := newTestServer(t)
	cookie, nonce := s.login(t, "admin")

	cases := []struct {
		form url.Values
		want string
	}{
		{url.Values{"post_type": {"product"}, "post_status": {"all"}}, "Invalid post type specified."},
		{url.Values{"post_type": {"post"}, "post_status": {"trash"}}, "Invalid post status specified."},
		{url.Values{"post_type": {"post"}, "post_status": {"all"}, "date_from": {"01/02/2024"}}, `Invalid date format for "Date From".`},
		{url.Values{"post_type": {"post"}, "post_status": {"all"}, "date_to": {"2024-1-1"}}, `Invalid date format for "Date To".`},
		{url.Values{"post_type": {"page"}, "post_status": {"all"}}, "No posts found matching the selected filters."},
	}

	for _, tc := range cases {
		tc.form.Set("nonce", nonce)
		resp, body := s.do(t, exportRequest(tc.form, cookie))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var env envelope
		require.NoError(t, json.Unmarshal(body, &env))
		assert.False(t, env.Success)

		var msg string
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, tc.want, msg)
	}
}

func TestDebug(t *testing.T) {
	s := newTestServer(t)
	cookie, nonce := s.login(t, "admin")

	newDebugRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/debug", nil)
		req.Header.Set(admin.NonceHeader, nonce)
		req.AddCookie(cookie)
		return req
	}

	_, body := s.do(t, newDebugRequest())
	assert.JSONEq(t, `{"success":false,"data":"No posts found to debug."}`, string(body))

	ctx := context.Background()
	id, err := s.db.SavePost(ctx, &models.Post{Title: "Sample", Modified: "2024-04-01 09:00:00"})
	require.NoError(t, err)
	require.NoError(t, s.db.SetPostMeta(ctx, id, "rank_math_focus_keyword", "alpha, beta"))

	resp, body := s.do(t, newDebugRequest())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Success bool               `json:"success"`
		Data    export.DebugResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.True(t, env.Success)
	assert.Equal(t, "Sample", env.Data.PostTitle)
	assert.Equal(t, id, env.Data.PostID)
	assert.Equal(t, "alpha", env.Data.DebugData.Resolved.MainKeyword)
	assert.Equal(t, "beta", env.Data.DebugData.Resolved.AdditionalKeywords)
	assert.Equal(t, []models.MetaEntry{{Key: "rank_math_focus_keyword", Value: "alpha, beta"}}, env.Data.DebugData.Primary)
}

func TestHook(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hooks/records/12", strings.NewReader(`{"event":"save"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/hooks/records/12", strings.NewReader(`{"event":"save"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hook-Secret", hookSecret)
	resp, body := s.do(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"data":{"post_id":12}}`, string(body))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/hooks/records/abc", nil)
	req.Header.Set("X-Hook-Secret", hookSecret)
	resp, _ = s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidation_RejectsUnknownContentType(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/xml")
	resp, _ := s.do(t, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}
