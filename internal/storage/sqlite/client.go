package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/logger"
)

var ErrNotFound = errors.New("not found")

var identPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ChangeListener is notified after a record or its metadata is written.
type ChangeListener interface {
	RecordChanged(ctx context.Context, postID int64) error
}

// OptionsListener is notified after the site SEO settings are written. A
// ChangeListener that also implements it receives both notifications.
type OptionsListener interface {
	OptionsChanged(ctx context.Context) error
}

type Client struct {
	db        *sql.DB
	prefix    string
	siteURL   string
	mu        sync.RWMutex
	listeners []ChangeListener
}

func NewClient(dbPath, tablePrefix, siteURL string) (*Client, error) {
	if tablePrefix != "" && !identPattern.MatchString(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", tablePrefix)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized",
		zap.String("path", dbPath),
		zap.String("table_prefix", tablePrefix),
	)

	return &Client{
		db:      db,
		prefix:  tablePrefix,
		siteURL: strings.TrimRight(siteURL, "/"),
	}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// TableName returns the prefixed name of a base table.
func (c *Client) TableName(base string) string {
	return c.prefix + base
}

// TablePrefix is the prefix shared by every table of the content store.
func (c *Client) TablePrefix() string {
	return c.prefix
}

func (c *Client) OnChange(l ChangeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Client) notify(ctx context.Context, postID int64) {
	c.mu.RLock()
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, l := range listeners {
		if err := l.RecordChanged(ctx, postID); err != nil {
			logger.Warn("Change listener failed", zap.Int64("post_id", postID), zap.Error(err))
		}
	}
}

func (c *Client) notifyOptions(ctx context.Context) {
	c.mu.RLock()
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, l := range listeners {
		ol, ok := l.(OptionsListener)
		if !ok {
			continue
		}
		if err := ol.OptionsChanged(ctx); err != nil {
			logger.Warn("Options listener failed", zap.Error(err))
		}
	}
}

func (c *Client) InitSchema() error {
	p := c.prefix
	schema := `
	CREATE TABLE IF NOT EXISTS ` + p + `users (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		user_login TEXT UNIQUE NOT NULL,
		user_pass TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		capabilities TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS ` + p + `posts (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		post_author INTEGER NOT NULL DEFAULT 0,
		post_title TEXT NOT NULL DEFAULT '',
		post_name TEXT NOT NULL DEFAULT '',
		post_type TEXT NOT NULL DEFAULT 'post',
		post_status TEXT NOT NULL DEFAULT 'publish',
		post_modified TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_` + p + `posts_type_status ON ` + p + `posts(post_type, post_status);
	CREATE INDEX IF NOT EXISTS idx_` + p + `posts_modified ON ` + p + `posts(post_modified);

	CREATE TABLE IF NOT EXISTS ` + p + `postmeta (
		meta_id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL,
		meta_key TEXT NOT NULL,
		meta_value TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_` + p + `postmeta_post_key ON ` + p + `postmeta(post_id, meta_key);

	CREATE TABLE IF NOT EXISTS ` + p + `categories (
		term_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ` + p + `post_categories (
		post_id INTEGER NOT NULL,
		term_id INTEGER NOT NULL,
		PRIMARY KEY (post_id, term_id)
	);

	CREATE TABLE IF NOT EXISTS ` + p + `options (
		option_name TEXT PRIMARY KEY,
		option_value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ` + p + `sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_` + p + `sessions_expires ON ` + p + `sessions(expires_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InitSEOTables creates the SEO plugin's analytics and link tables. Hosts
// running the plugin already have them.
func (c *Client) InitSEOTables() error {
	analytics := c.TableName(models.AnalyticsTable)
	internal := c.TableName(models.InternalMetaTable)
	schema := `
	CREATE TABLE IF NOT EXISTS ` + analytics + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		page TEXT NOT NULL DEFAULT '',
		object_type TEXT NOT NULL DEFAULT '',
		object_subtype TEXT NOT NULL DEFAULT '',
		object_id INTEGER NOT NULL UNIQUE,
		primary_key TEXT,
		seo_score INTEGER,
		schemas_in_use TEXT
	);

	CREATE TABLE IF NOT EXISTS ` + internal + ` (
		object_id INTEGER PRIMARY KEY,
		internal_link_count INTEGER,
		external_link_count INTEGER,
		incoming_link_count INTEGER
	);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize SEO tables: %w", err)
	}

	logger.Info("SEO tables initialized", zap.String("analytics", analytics), zap.String("internal_meta", internal))
	return nil
}
