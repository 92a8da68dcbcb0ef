package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/export"
	"github.com/seo-export/backend/internal/middleware/admin"
	"github.com/seo-export/backend/internal/query"
	"github.com/seo-export/backend/pkg/logger"
)

type Exporter interface {
	Export(ctx context.Context, f query.Filter) (*export.Result, error)
	DebugSample(ctx context.Context) (*export.DebugResult, error)
}

type ExportHandler struct {
	exporter Exporter
}

func NewExportHandler(exporter Exporter) *ExportHandler {
	return &ExportHandler{
		exporter: exporter,
	}
}

func (h *ExportHandler) Export(c *fiber.Ctx) error {
	var filter query.Filter
	if err := c.BodyParser(&filter); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		logger.Warn("Failed to parse export request", zap.Error(err))
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.exporter.Export(c.UserContext(), filter)
	if err != nil {
		if msg, ok := export.Message(err); ok {
			return failure(c, fiber.StatusOK, msg)
		}
		logger.Error("Export failed", zap.Error(err))
		return failure(c, fiber.StatusInternalServerError, "Failed to generate CSV data.")
	}

	logger.Info("CSV export generated",
		zap.String("user", requester(c)),
		zap.String("filename", result.Filename),
		zap.String("post_type", filter.RecordType),
		zap.String("post_status", filter.RecordStatus),
	)
	return success(c, result)
}

func (h *ExportHandler) Debug(c *fiber.Ctx) error {
	result, err := h.exporter.DebugSample(c.UserContext())
	if err != nil {
		if msg, ok := export.Message(err); ok {
			return failure(c, fiber.StatusOK, msg)
		}
		logger.Error("Debug sample failed", zap.Error(err))
		return failure(c, fiber.StatusInternalServerError, "Debug request failed.")
	}

	return success(c, result)
}

// requester is the login of the admin the guard let through.
func requester(c *fiber.Ctx) string {
	if u := admin.User(c); u != nil {
		return u.Login
	}
	return ""
}
