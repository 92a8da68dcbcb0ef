package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/api"
	"github.com/seo-export/backend/internal/auth"
	"github.com/seo-export/backend/internal/cache"
	"github.com/seo-export/backend/internal/cache/memory"
	rediscache "github.com/seo-export/backend/internal/cache/redis"
	"github.com/seo-export/backend/internal/export"
	"github.com/seo-export/backend/internal/hooks"
	"github.com/seo-export/backend/internal/metrics"
	"github.com/seo-export/backend/internal/query"
	"github.com/seo-export/backend/internal/seo"
	"github.com/seo-export/backend/internal/storage/models"
	"github.com/seo-export/backend/internal/storage/sqlite"
	"github.com/seo-export/backend/pkg/circuitbreaker"
	"github.com/seo-export/backend/pkg/config"
	appLogger "github.com/seo-export/backend/pkg/logger"
	"github.com/seo-export/backend/pkg/retry"
)

func main() {
	fs := pflag.NewFlagSet("seo-export", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(appLogger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting SEO export API server")

	ctx := context.Background()
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = appLogger.Log

	backend, closeBackend := openCacheBackend(ctx, cfg, retryCfg)
	defer closeBackend()

	breaker := circuitbreaker.New("cache", circuitbreaker.Config{
		FailureThreshold: cfg.Cache.FailureThreshold,
		OpenTimeout:      time.Duration(cfg.Cache.OpenTimeoutSec) * time.Second,
		Logger:           appLogger.Log,
	})
	c := cache.New(backend, cfg.Cache.Prefix, cache.WithBreaker(breaker))

	if purge, _ := fs.GetBool("purge-cache"); purge {
		if err := c.Purge(ctx); err != nil {
			appLogger.Fatal("Failed to purge cache", zap.Error(err))
		}
		appLogger.Info("Cache purged", zap.String("prefix", c.Prefix()))
		return
	}

	sqliteClient, err := retry.DoWithResult(ctx, retryCfg, "sqlite_open", func(ctx context.Context) (*sqlite.Client, error) {
		return sqlite.NewClient(cfg.SQLite.Path, cfg.SQLite.TablePrefix, cfg.SQLite.SiteURL)
	})
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	if _, err := sqliteClient.PurgeExpiredSessions(ctx, time.Now()); err != nil {
		appLogger.Warn("Failed to purge expired sessions", zap.Error(err))
	}

	sessions := auth.NewSessions(sqliteClient, time.Duration(cfg.Auth.SessionTTLSec)*time.Second)
	if err := bootstrapAdmin(ctx, cfg.Auth, sqliteClient); err != nil {
		appLogger.Fatal("Failed to bootstrap admin user", zap.Error(err))
	}

	invalidator := hooks.NewInvalidator(c)
	sqliteClient.OnChange(invalidator)

	resolver := seo.NewResolver(sqliteClient, c, seo.Config{
		MetricTTL:      cfg.Cache.MetricTTLDuration(),
		TableExistsTTL: cfg.Cache.TableExistsTTLDuration(),
	})
	finder := query.NewFinder(sqliteClient, c, cfg.Cache.QueryTTLDuration())
	service := export.NewService(finder, resolver, sqliteClient)

	metrics.Init()

	app, stop := api.NewApp(api.Deps{
		Config:      cfg,
		Exporter:    service,
		Sessions:    sessions,
		Nonces:      auth.NewNonces(cfg.Auth.NonceSecret, time.Duration(cfg.Auth.NonceLifetimeSec)*time.Second),
		Invalidator: invalidator,
		DB:          sqliteClient,
	})
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func openCacheBackend(ctx context.Context, cfg *config.Config, retryCfg retry.Config) (cache.Backend, func()) {
	if cfg.Cache.Backend == "redis" {
		client, err := retry.DoWithResult(ctx, retryCfg, "redis_connect", func(ctx context.Context) (*rediscache.Client, error) {
			return rediscache.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		return client, func() { client.Close() }
	}

	backend, err := memory.New(cfg.Cache.MemorySize)
	if err != nil {
		appLogger.Fatal("Failed to create memory cache", zap.Error(err))
	}
	appLogger.Info("Using in-process cache", zap.Int("size", cfg.Cache.MemorySize))
	return backend, func() {}
}

func bootstrapAdmin(ctx context.Context, cfg config.AuthConfig, db *sqlite.Client) error {
	if cfg.BootstrapUser == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	hash, err := auth.HashPassword(cfg.BootstrapPassword)
	if err != nil {
		return err
	}

	_, err = db.SaveUser(ctx, &models.User{
		Login:        cfg.BootstrapUser,
		DisplayName:  cfg.BootstrapUser,
		PasswordHash: hash,
		Capabilities: []string{auth.ManageOptions},
	})
	if err != nil {
		return err
	}

	appLogger.Info("Admin user ready", zap.String("login", cfg.BootstrapUser))
	return nil
}
