package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	// MaxFieldLength bounds every form or JSON string field.
	MaxFieldLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects POST bodies of an unexpected content type or with
// oversized or NUL-bearing fields.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 256
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{
			fiber.MIMEApplicationJSON,
			fiber.MIMEApplicationForm,
			fiber.MIMEMultipartForm,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowed(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"success": false,
				"data":    "Unsupported content type",
			})
		}

		if len(c.Body()) == 0 {
			return c.Next()
		}

		for name, value := range fieldsOf(c, contentType) {
			if len(value) > cfg.MaxFieldLength || strings.ContainsRune(value, 0) {
				cfg.Logger.Warn("Rejected request field",
					zap.String("field", name),
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"data":    "Invalid request field: " + name,
				})
			}
		}

		return c.Next()
	}
}

// fieldsOf returns the string fields of the body. Malformed bodies yield
// nothing; handlers report those themselves.
func fieldsOf(c *fiber.Ctx, contentType string) map[string]string {
	fields := map[string]string{}

	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			fields[string(k)] = string(v)
		})
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return fields
		}
		for k, values := range form.Value {
			for _, v := range values {
				if len(v) > len(fields[k]) {
					fields[k] = v
				}
			}
		}
	default:
		var body map[string]any
		if err := c.BodyParser(&body); err != nil {
			return fields
		}
		for k, v := range body {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
	}
	return fields
}

func allowed(contentType string, types []string) bool {
	for _, t := range types {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}
