package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/auth"
	"github.com/seo-export/backend/pkg/logger"
)

type SessionHandler struct {
	sessions *auth.Sessions
	nonces   *auth.Nonces
	cookie   string
	secure   bool
}

func NewSessionHandler(sessions *auth.Sessions, nonces *auth.Nonces, cookie string, secure bool) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		nonces:   nonces,
		cookie:   cookie,
		secure:   secure,
	}
}

func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Login    string `json:"user_login" form:"user_login"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Login == "" || req.Password == "" {
		return failure(c, fiber.StatusBadRequest, "user_login and password are required")
	}

	session, err := h.sessions.Login(c.UserContext(), req.Login, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return failure(c, fiber.StatusUnauthorized, "Invalid username or password.")
	}
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return failure(c, fiber.StatusInternalServerError, "Failed to create session")
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return success(c, fiber.Map{
		"nonce":      h.nonces.Create(auth.ExportAction, session.ID),
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	if id := c.Cookies(h.cookie); id != "" {
		if err := h.sessions.Logout(c.UserContext(), id); err != nil {
			logger.Warn("Failed to delete session", zap.Error(err))
		}
	}
	c.ClearCookie(h.cookie)
	return success(c, nil)
}

// Nonce issues a fresh export token for the caller's session.
func (h *SessionHandler) Nonce(c *fiber.Ctx) error {
	id := c.Cookies(h.cookie)
	if _, err := h.sessions.Authorize(c.UserContext(), id, auth.ManageOptions); err != nil {
		if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrForbidden) {
			logger.Error("Session lookup failed", zap.Error(err))
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(fiber.StatusForbidden).SendString("You do not have permission to perform this action.")
	}

	return success(c, fiber.Map{"nonce": h.nonces.Create(auth.ExportAction, id)})
}
