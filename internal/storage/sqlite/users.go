package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/logger"
)

func (c *Client) SaveUser(ctx context.Context, u *models.User) (int64, error) {
	query := `
		INSERT INTO ` + c.TableName("users") + ` (user_login, user_pass, display_name, capabilities)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_login) DO UPDATE SET
			user_pass = excluded.user_pass,
			display_name = excluded.display_name,
			capabilities = excluded.capabilities
	`

	_, err := c.db.ExecContext(ctx, query, u.Login, u.PasswordHash, u.DisplayName, strings.Join(u.Capabilities, ","))
	if err != nil {
		return 0, fmt.Errorf("failed to save user: %w", err)
	}

	// LastInsertId is unreliable for the update branch of an upsert.
	saved, err := c.UserByLogin(ctx, u.Login)
	if err != nil {
		return 0, err
	}
	u.ID = saved.ID
	return u.ID, nil
}

func (c *Client) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	return c.queryUser(ctx, `user_login = ?`, login)
}

func (c *Client) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return c.queryUser(ctx, `ID = ?`, id)
}

func (c *Client) queryUser(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ID, user_login, user_pass, display_name, capabilities FROM ` + c.TableName("users") + ` WHERE ` + where

	var u models.User
	var caps string
	err := c.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.DisplayName, &caps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	for _, capability := range strings.Split(caps, ",") {
		if capability = strings.TrimSpace(capability); capability != "" {
			u.Capabilities = append(u.Capabilities, capability)
		}
	}
	return &u, nil
}

func (c *Client) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO `+c.TableName("sessions")+` (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, s.CreatedAt.Unix(), s.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	var createdAt, expiresAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM `+c.TableName("sessions")+` WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	s.ExpiresAt = time.Unix(expiresAt, 0)
	return &s, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM `+c.TableName("sessions")+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (c *Client) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM `+c.TableName("sessions")+` WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info("Expired sessions purged", zap.Int64("count", n))
	}
	return n, nil
}
