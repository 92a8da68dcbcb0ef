package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seo-export/backend/pkg/logger"
)

const HookSecretHeader = "X-Hook-Secret"

type RecordListener interface {
	RecordChanged(ctx context.Context, postID int64) error
}

// HookHandler lets a host that writes records out of process report the
// change so cached data for the record is dropped.
type HookHandler struct {
	listener RecordListener
	secret   string
}

func NewHookHandler(listener RecordListener, secret string) *HookHandler {
	return &HookHandler{
		listener: listener,
		secret:   secret,
	}
}

func (h *HookHandler) RecordChanged(c *fiber.Ctx) error {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(c.Get(HookSecretHeader)), []byte(h.secret)) != 1 {
		return failure(c, fiber.StatusUnauthorized, "Invalid hook secret")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return failure(c, fiber.StatusBadRequest, "Invalid record id")
	}

	var req struct {
		Event string `json:"event"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return failure(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}
	switch req.Event {
	case "", "save", "delete":
	default:
		return failure(c, fiber.StatusBadRequest, "Unknown event")
	}

	if err := h.listener.RecordChanged(c.UserContext(), int64(id)); err != nil {
		logger.Error("Failed to invalidate record cache", zap.Int("post_id", id), zap.Error(err))
		return failure(c, fiber.StatusInternalServerError, "Failed to invalidate cache")
	}

	logger.Info("Record change received", zap.Int("post_id", id), zap.String("event", req.Event))
	return success(c, fiber.Map{"post_id": id})
}
