package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/wind-timeseries/internal/api/http"
	"github.com/i474232898/wind-timeseries/internal/config"
	"github.com/i474232898/wind-timeseries/internal/geocode"
	"github.com/i474232898/wind-timeseries/internal/logging"
	"github.com/i474232898/wind-timeseries/internal/scheduler"
	"github.com/i474232898/wind-timeseries/internal/store"
	"github.com/i474232898/wind-timeseries/internal/wind"
	"github.com/i474232898/wind-timeseries/internal/wind/sources"
)

const appName = "wind-timeseries"

var version = "dev"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	lg := logging.New(cfg, version, appName)
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := openSource(ctx, cfg)
	if err != nil {
		lg.Error("failed to open data source", "source", cfg.DataSource, "error", err)
		os.Exit(1)
	}

	mode, err := wind.ParseExtractMode(cfg.ExtractMode)
	if err != nil {
		lg.Error("invalid extract mode", "error", err)
		os.Exit(1)
	}

	// Finalized results, dropped whenever the dataset context is reloaded.
	results := store.NewMemoryStore(cfg.ResultCacheSize, cfg.ResultCacheTTL)

	loadCtx, cancel := context.WithTimeout(logging.WithContext(ctx, lg), 2*time.Minute)
	service, err := wind.NewService(loadCtx, source, wind.Options{
		ExtractMode: mode,
		WorkerLimit: cfg.WorkerLimit,
		Store:       results,
	})
	cancel()
	if err != nil {
		lg.Error("failed to load dataset context", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(service, results, cfg.RefreshInterval, 2*time.Minute, lg)
	if err := sched.Start(); err != nil {
		lg.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	var resolver geocode.Resolver
	if cfg.GeocoderAPIKey != "" {
		resolver = geocode.NewGoogle(cfg.GeocoderAPIKey)
	}

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(httpapi.RequestContext(lg))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		d := service.Dataset()
		return c.JSON(fiber.Map{
			"status":     "ok",
			"service":    appName,
			"source":     cfg.DataSource,
			"timestamps": len(d.Timestamps),
			"loaded_at":  d.LoadedAt,
		})
	})

	httpapi.RegisterRoutes(app, service, resolver)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.Error("fiber server stopped", "error", err)
		}
	}()
	lg.Info("listening", "port", cfg.Port, "source", cfg.DataSource)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("error during shutdown", "error", err)
	}
}

func openSource(ctx context.Context, cfg *config.AppConfig) (wind.GriddedDataSource, error) {
	if cfg.DataSource == "snapshot" {
		snap, err := sources.LoadSnapshot(ctx, cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		return sources.NewSnapshotSource(snap), nil
	}

	// Shared HTTP client for outbound HSDS calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	return sources.NewHSDS(sources.HSDSConfig{
		Endpoint:  cfg.HSDSEndpoint,
		Domain:    cfg.HSDSDomain,
		Bucket:    cfg.HSDSBucket,
		APIKey:    cfg.HSDSAPIKey,
		CacheSize: cfg.SourceCacheSize,
		CacheTTL:  cfg.SourceCacheTTL,
	}, httpClient), nil
}
