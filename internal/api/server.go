package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/seo-export/backend/internal/api/handlers"
	"github.com/seo-export/backend/internal/auth"
	"github.com/seo-export/backend/internal/metrics"
	"github.com/seo-export/backend/internal/middleware/admin"
	"github.com/seo-export/backend/internal/middleware/ratelimit"
	"github.com/seo-export/backend/internal/middleware/security"
	"github.com/seo-export/backend/internal/middleware/validation"
	"github.com/seo-export/backend/pkg/config"
	"github.com/seo-export/backend/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Config      *config.Config
	Exporter    handlers.Exporter
	Sessions    *auth.Sessions
	Nonces      *auth.Nonces
	Invalidator handlers.RecordListener
	DB          Pinger
}

// NewApp builds the HTTP server. The returned func releases background
// resources and must be called after shutdown.
func NewApp(d Deps) (*fiber.App, func()) {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if cfg.Server.Development {
		app.Use(fiberlogger.New())
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.Server.AllowedOrigins, ","),
			AllowHeaders:     "Origin, Content-Type, Accept, " + admin.NonceHeader,
			AllowMethods:     "GET, POST, DELETE, OPTIONS",
			AllowCredentials: true,
		}))
	}
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(validation.Middleware(validation.Config{Logger: logger.Log}))

	app.Get("/metrics", metrics.MetricsHandler())

	exportHandler := handlers.NewExportHandler(d.Exporter)
	sessionHandler := handlers.NewSessionHandler(d.Sessions, d.Nonces, cfg.Auth.SessionCookie, !cfg.Server.Development)
	hookHandler := handlers.NewHookHandler(d.Invalidator, cfg.Auth.HookSecret)

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := d.DB.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "database unreachable",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		SessionCookie:        cfg.Auth.SessionCookie,
		Logger:               logger.Log,
	})
	limited := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.RateLimit.Enabled {
		limited = limiter.Middleware()
	}

	api.Post("/session", limited, sessionHandler.Login)
	api.Delete("/session", sessionHandler.Logout)
	api.Get("/nonce", limited, sessionHandler.Nonce)

	guard := admin.Guard(admin.Config{
		Sessions: d.Sessions,
		Nonces:   d.Nonces,
		Cookie:   cfg.Auth.SessionCookie,
	})
	api.Post("/export", limited, guard, exportHandler.Export)
	api.Post("/debug", limited, guard, exportHandler.Debug)

	api.Post("/hooks/records/:id", hookHandler.RecordChanged)

	return app, limiter.Stop
}
