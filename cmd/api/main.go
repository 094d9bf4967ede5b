// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Novira HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire stores, services, the crawl engine factory, and the push hub.
//  7. Reclaim crawl tasks orphaned by an unclean shutdown.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/novira/internal/api"
	"github.com/taibuivan/novira/internal/core/chapter"
	"github.com/taibuivan/novira/internal/core/document"
	"github.com/taibuivan/novira/internal/crawler/engine"
	"github.com/taibuivan/novira/internal/crawler/ledger"
	"github.com/taibuivan/novira/internal/crawler/probe"
	"github.com/taibuivan/novira/internal/crawler/push"
	"github.com/taibuivan/novira/internal/crawler/siteconfig"
	"github.com/taibuivan/novira/internal/crawler/task"
	"github.com/taibuivan/novira/internal/platform/config"
	"github.com/taibuivan/novira/internal/platform/constants"
	"github.com/taibuivan/novira/internal/platform/migration"
	pgstore "github.com/taibuivan/novira/internal/platform/postgres"
	redisstore "github.com/taibuivan/novira/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "novira"))
	slog.SetDefault(log)

	log.Info("[Novira] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "novira"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("site_config_dir", cfg.SiteConfigDir),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Application context for background work (rate-limit bookkeeping).
	// Cancelled once shutdown begins.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	configRepository := siteconfig.NewFileRepository(cfg.SiteConfigDir, log)
	configService := siteconfig.NewService(configRepository, log)
	configHandler := siteconfig.NewHandler(configService)

	documentRepository := document.NewDocumentRepository(pool)
	chapterRepository := chapter.NewChapterRepository(pool)
	documentService := document.NewService(documentRepository, chapterRepository, log)
	documentHandler := document.NewHandler(documentService)
	chapterService := chapter.NewService(chapterRepository, log)
	chapterHandler := chapter.NewHandler(chapterService)

	crawlLedger := ledger.NewRedisLedger(rdb, log)

	probeService := probe.NewService(configService, nil, log)
	probeHandler := probe.NewHandler(probeService)

	hub := push.NewHub(log)

	// The factory assembles one single-use crawler per task run. Stores,
	// ledger, and logger are shared; config and reporter are per-run.
	crawlerFactory := func(ctx context.Context, params task.Task, reporter engine.Reporter) (task.CrawlRunner, error) {
		crawlConfig, err := configService.LoadConfig(ctx, params.ConfigFilename)
		if err != nil {
			return nil, err
		}
		return engine.New(engine.Options{
			Config:      crawlConfig,
			BookID:      params.BookID,
			StartURL:    params.StartURL,
			MaxWorkers:  params.MaxWorkers,
			UseProxy:    params.UseProxy,
			RetryFailed: params.RetryFailed,
			Documents:   documentRepository,
			Chapters:    chapterRepository,
			Ledger:      crawlLedger,
			Reporter:    reporter,
			Logger:      log,
		}), nil
	}

	taskRepository := task.NewTaskRepository(pool)
	taskManager := task.NewManager(taskRepository, configService, documentRepository,
		crawlerFactory, hub, log)
	taskHandler := task.NewHandler(taskManager)

	// ── 8. Zombie Reclaim ─────────────────────────────────────────────────
	// Tasks left `running` by a crash have no worker goroutine anymore.
	reclaimed, err := taskManager.ReclaimZombies(startupCtx)
	must(log, err, "reclaim zombie tasks")
	if reclaimed > 0 {
		log.Warn("zombie_tasks_reclaimed", slog.Int64("count", reclaimed))
	}

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Configs:   configHandler,
		Probe:     probeHandler,
		Tasks:     taskHandler,
		Documents: documentHandler,
		Chapters:  chapterHandler,
		Push:      hub,
	}

	server := api.NewServer(appCtx, cfg, log, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
