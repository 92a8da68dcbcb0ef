package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/seo-export/backend/internal/storage/models"
)

const seoOptionsName = "rank_math_options"

func (c *Client) TableExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return true, nil
}

// ColumnValue reads one column of the row keyed by object_id. A missing row
// or NULL column yields "".
func (c *Client) ColumnValue(ctx context.Context, table, column string, objectID int64) (string, error) {
	if !identPattern.MatchString(table) || !identPattern.MatchString(column) {
		return "", fmt.Errorf("invalid identifier %s.%s", table, column)
	}

	var value sql.NullString
	err := c.db.QueryRowContext(ctx, `SELECT `+column+` FROM `+table+` WHERE object_id = ?`, objectID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s.%s: %w", table, column, err)
	}
	return value.String, nil
}

// AnalyticsRow returns nil when the record has no analytics row.
func (c *Client) AnalyticsRow(ctx context.Context, table string, objectID int64) (*models.AnalyticsObject, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	query := `SELECT id, created, title, page, object_type, object_subtype, object_id, primary_key, seo_score, schemas_in_use
		FROM ` + table + ` WHERE object_id = ?`

	var row models.AnalyticsObject
	var primaryKey, score, schemas sql.NullString
	err := c.db.QueryRowContext(ctx, query, objectID).Scan(
		&row.ID,
		&row.Created,
		&row.Title,
		&row.Page,
		&row.ObjectType,
		&row.ObjectSubtype,
		&row.ObjectID,
		&primaryKey,
		&score,
		&schemas,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analytics row: %w", err)
	}

	row.PrimaryKey = primaryKey.String
	row.SEOScore = score.String
	row.SchemasInUse = schemas.String
	return &row, nil
}

// InternalMetaRow returns nil when the record has no link row.
func (c *Client) InternalMetaRow(ctx context.Context, table string, objectID int64) (*models.InternalMeta, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	query := `SELECT object_id, IFNULL(internal_link_count, 0), IFNULL(external_link_count, 0), IFNULL(incoming_link_count, 0)
		FROM ` + table + ` WHERE object_id = ?`

	var row models.InternalMeta
	err := c.db.QueryRowContext(ctx, query, objectID).Scan(
		&row.ObjectID,
		&row.InternalLinkCount,
		&row.ExternalLinkCount,
		&row.IncomingLinkCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link row: %w", err)
	}
	return &row, nil
}

// UpsertAnalytics writes an analytics row. Empty PrimaryKey, SEOScore and
// SchemasInUse are stored as NULL.
func (c *Client) UpsertAnalytics(ctx context.Context, row *models.AnalyticsObject) error {
	query := `
		INSERT INTO ` + c.TableName(models.AnalyticsTable) + ` (created, title, page, object_type, object_subtype, object_id, primary_key, seo_score, schemas_in_use)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			title = excluded.title,
			page = excluded.page,
			primary_key = excluded.primary_key,
			seo_score = excluded.seo_score,
			schemas_in_use = excluded.schemas_in_use
	`

	_, err := c.db.ExecContext(ctx, query,
		row.Created,
		row.Title,
		row.Page,
		row.ObjectType,
		row.ObjectSubtype,
		row.ObjectID,
		nullable(row.PrimaryKey),
		nullable(row.SEOScore),
		nullable(row.SchemasInUse),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analytics row: %w", err)
	}

	c.notify(ctx, row.ObjectID)
	return nil
}

func (c *Client) UpsertInternalMeta(ctx context.Context, row *models.InternalMeta) error {
	query := `
		INSERT INTO ` + c.TableName(models.InternalMetaTable) + ` (object_id, internal_link_count, external_link_count, incoming_link_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			internal_link_count = excluded.internal_link_count,
			external_link_count = excluded.external_link_count,
			incoming_link_count = excluded.incoming_link_count
	`

	_, err := c.db.ExecContext(ctx, query, row.ObjectID, row.InternalLinkCount, row.ExternalLinkCount, row.IncomingLinkCount)
	if err != nil {
		return fmt.Errorf("failed to upsert link row: %w", err)
	}

	c.notify(ctx, row.ObjectID)
	return nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// SEOOptions loads the site-level SEO settings. A missing option yields an
// empty document.
func (c *Client) SEOOptions(ctx context.Context) (*models.SEOOptions, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT option_value FROM `+c.TableName("options")+` WHERE option_name = ?`, seoOptionsName,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.SEOOptions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get SEO options: %w", err)
	}

	opts := &models.SEOOptions{}
	if err := json.Unmarshal([]byte(raw), &opts.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode SEO options: %w", err)
	}
	return opts, nil
}

func (c *Client) SetSEOOptions(ctx context.Context, opts map[string]any) error {
	return c.SetOption(ctx, seoOptionsName, opts)
}

func (c *Client) SetOption(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode option %s: %w", name, err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO `+c.TableName("options")+` (option_name, option_value) VALUES (?, ?)
		ON CONFLICT(option_name) DO UPDATE SET option_value = excluded.option_value`,
		name, string(data))
	if err != nil {
		return fmt.Errorf("failed to set option %s: %w", name, err)
	}

	if name == seoOptionsName {
		c.notifyOptions(ctx)
	}
	return nil
}
