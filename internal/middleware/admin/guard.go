package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/auth"
	"github.com/seo-export/backend/internal/metrics"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/pkg/logger"
)

const (
	NonceHeader = "X-Export-Nonce"

	msgSecurityCheck = "Security check failed."
	msgPermission    = "You do not have permission to perform this action."

	userKey = "admin_user"
)

type Config struct {
	Sessions   *auth.Sessions
	Nonces     *auth.Nonces
	Cookie     string
	Action     string
	Capability string
}

// Guard rejects requests without a valid anti-forgery token, then requests
// whose session lacks the capability. Rejections end the request with a
// plain-text 403.
func Guard(cfg Config) fiber.Handler {
	if cfg.Action == "" {
		cfg.Action = auth.ExportAction
	}
	if cfg.Capability == "" {
		cfg.Capability = auth.ManageOptions
	}

	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(cfg.Cookie)

		if err := cfg.Nonces.Verify(nonceFrom(c), cfg.Action, sessionID); err != nil {
			return deny(c, "nonce", msgSecurityCheck, err)
		}

		user, err := cfg.Sessions.Authorize(c.UserContext(), sessionID, cfg.Capability)
		if err != nil {
			reason := "session"
			if errors.Is(err, auth.ErrForbidden) {
				reason = "capability"
			} else if !errors.Is(err, auth.ErrNoSession) {
				logger.Error("Session lookup failed", zap.Error(err))
			}
			return deny(c, reason, msgPermission, err)
		}

		c.Locals(userKey, user)
		return c.Next()
	}
}

// User returns the user admitted by Guard.
func User(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(userKey).(*models.User)
	return u
}

func nonceFrom(c *fiber.Ctx) string {
	if v := c.Get(NonceHeader); v != "" {
		return v
	}
	var body struct {
		Nonce string `json:"nonce" form:"nonce"`
	}
	if err := c.BodyParser(&body); err == nil {
		return body.Nonce
	}
	return ""
}

func deny(c *fiber.Ctx, reason, msg string, err error) error {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	logger.Warn("Admin request rejected",
		zap.String("reason", reason),
		zap.String("path", c.Path()),
		zap.String("ip", c.IP()),
		zap.Error(err),
	)
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusForbidden).SendString(msg)
}
