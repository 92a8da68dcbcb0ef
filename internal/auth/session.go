package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/internal/storage/sqlite"
	"github.com/seo-export/backend/pkg/logger"
)

// ManageOptions is the capability required to export.
const ManageOptions = "manage_options"

var (
	ErrNoSession          = errors.New("no valid session")
	ErrForbidden          = errors.New("missing capability")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Store interface {
	UserByLogin(ctx context.Context, login string) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

type Sessions struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewSessions(store Store, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Sessions{store: store, ttl: ttl, now: time.Now}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Login checks the credentials and opens a new session.
func (s *Sessions) Login(ctx context.Context, login, password string) (*models.Session, error) {
	user, err := s.store.UserByLogin(ctx, login)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	logger.Info("Session created", zap.Int64("user_id", user.ID))
	return session, nil
}

// Authenticate returns the user owning a live session.
func (s *Sessions) Authenticate(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	if session.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, sessionID); err != nil {
			logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, ErrNoSession
	}

	user, err := s.store.UserByID(ctx, session.UserID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authorize is Authenticate plus a capability check.
func (s *Sessions) Authorize(ctx context.Context, sessionID, capability string) (*models.User, error) {
	user, err := s.Authenticate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !user.Can(capability) {
		return nil, ErrForbidden
	}
	return user, nil
}

func (s *Sessions) Logout(ctx context.Context, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID)
}
