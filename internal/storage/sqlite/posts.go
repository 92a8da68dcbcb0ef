package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/logger"
)

// PostColumns is the column list every statement passed to QueryPosts must
// select, in this order. "p" aliases the posts table and "u" the users table.
const PostColumns = `p.ID, p.post_title, p.post_status, p.post_modified, p.post_author, p.post_type, p.post_name, u.display_name AS author_name`

// QueryPosts runs a statement built against PostColumns and returns the
// matching records with permalinks filled in.
func (c *Client) QueryPosts(ctx context.Context, statement string, args []any) ([]models.Post, error) {
	rows, err := c.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		p.Permalink = c.Permalink(p)
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var p models.Post
	var authorName sql.NullString

	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Status,
		&p.Modified,
		&p.AuthorID,
		&p.Type,
		&p.Slug,
		&authorName,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan post: %w", err)
	}

	p.AuthorName = authorName.String
	return p, nil
}

// LatestPost returns the most recently modified record of the given type and status.
func (c *Client) LatestPost(ctx context.Context, postType, status string) (*models.Post, error) {
	query := `SELECT ` + PostColumns + `
		FROM ` + c.TableName("posts") + ` p
		LEFT JOIN ` + c.TableName("users") + ` u ON p.post_author = u.ID
		WHERE p.post_type = ? AND p.post_status = ?
		ORDER BY p.post_modified DESC, p.ID DESC
		LIMIT 1`

	p, err := scanPost(c.db.QueryRowContext(ctx, query, postType, status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Permalink = c.Permalink(p)
	return &p, nil
}

// Permalink builds the public URL of a record. Published records with a slug
// get a pretty URL, everything else the query-string form.
func (c *Client) Permalink(p models.Post) string {
	if p.Status == models.StatusPublish && p.Slug != "" {
		return c.siteURL + "/" + p.Slug + "/"
	}
	if p.Type == models.PostTypePage {
		return c.siteURL + "/?page_id=" + strconv.FormatInt(p.ID, 10)
	}
	return c.siteURL + "/?p=" + strconv.FormatInt(p.ID, 10)
}

// PostMeta returns the first value stored under key, or "" when none exists.
func (c *Client) PostMeta(ctx context.Context, postID int64, key string) (string, error) {
	query := `SELECT meta_value FROM ` + c.TableName("postmeta") + `
		WHERE post_id = ? AND meta_key = ?
		ORDER BY meta_id
		LIMIT 1`

	var value sql.NullString
	err := c.db.QueryRowContext(ctx, query, postID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get post meta %s: %w", key, err)
	}
	return value.String, nil
}

func (c *Client) PostCategories(ctx context.Context, postID int64) ([]string, error) {
	query := `SELECT t.name
		FROM ` + c.TableName("post_categories") + ` pc
		JOIN ` + c.TableName("categories") + ` t ON t.term_id = pc.term_id
		WHERE pc.post_id = ?
		ORDER BY t.name`

	rows, err := c.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// SavePost inserts or updates a record. A zero ID allocates a new one and an
// empty Modified is set to the current UTC time.
func (c *Client) SavePost(ctx context.Context, p *models.Post) (int64, error) {
	if p.Modified == "" {
		p.Modified = time.Now().UTC().Format(models.ModifiedLayout)
	}
	if p.Type == "" {
		p.Type = models.PostTypePost
	}
	if p.Status == "" {
		p.Status = models.StatusPublish
	}

	var id any
	if p.ID != 0 {
		id = p.ID
	}

	query := `
		INSERT INTO ` + c.TableName("posts") + ` (ID, post_author, post_title, post_name, post_type, post_status, post_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ID) DO UPDATE SET
			post_author = excluded.post_author,
			post_title = excluded.post_title,
			post_name = excluded.post_name,
			post_type = excluded.post_type,
			post_status = excluded.post_status,
			post_modified = excluded.post_modified
	`

	res, err := c.db.ExecContext(ctx, query, id, p.AuthorID, p.Title, p.Slug, p.Type, p.Status, p.Modified)
	if err != nil {
		return 0, fmt.Errorf("failed to save post: %w", err)
	}

	if p.ID == 0 {
		p.ID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read post id: %w", err)
		}
	}

	logger.Debug("Post saved", zap.Int64("post_id", p.ID), zap.String("type", p.Type))
	c.notify(ctx, p.ID)
	return p.ID, nil
}

func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM ` + c.TableName("postmeta") + ` WHERE post_id = ?`,
		`DELETE FROM ` + c.TableName("post_categories") + ` WHERE post_id = ?`,
		`DELETE FROM ` + c.TableName("posts") + ` WHERE ID = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, postID); err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	logger.Debug("Post deleted", zap.Int64("post_id", postID))
	c.notify(ctx, postID)
	return nil
}

// SetPostMeta replaces every value stored under key with value.
func (c *Client) SetPostMeta(ctx context.Context, postID int64, key, value string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	table := c.TableName("postmeta")
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE post_id = ? AND meta_key = ?`, postID, key); err != nil {
		return fmt.Errorf("failed to clear post meta: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (post_id, meta_key, meta_value) VALUES (?, ?, ?)`, postID, key, value); err != nil {
		return fmt.Errorf("failed to insert post meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit post meta: %w", err)
	}

	c.notify(ctx, postID)
	return nil
}

func (c *Client) SetPostCategories(ctx context.Context, postID int64, names []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	links := c.TableName("post_categories")
	terms := c.TableName("categories")

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+links+` WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO `+terms+` (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+links+` (post_id, term_id) SELECT ?, term_id FROM `+terms+` WHERE name = ?`,
			postID, name)
		if err != nil {
			return fmt.Errorf("failed to link category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit categories: %w", err)
	}

	c.notify(ctx, postID)
	return nil
}
