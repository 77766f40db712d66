package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/voxnote-app/voxnote/internal/api"
	"github.com/voxnote-app/voxnote/internal/config"
	"github.com/voxnote-app/voxnote/internal/database"
	"github.com/voxnote-app/voxnote/internal/extract"
	"github.com/voxnote-app/voxnote/internal/memo"
	"github.com/voxnote-app/voxnote/internal/middleware"
	inats "github.com/voxnote-app/voxnote/internal/nats"
	iredis "github.com/voxnote-app/voxnote/internal/redis"
	"github.com/voxnote-app/voxnote/internal/server"
	"github.com/voxnote-app/voxnote/internal/storage"
	"github.com/voxnote-app/voxnote/internal/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("validating config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis (analyze-endpoint rate limiting)
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (realtime memo events)
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	publisher := inats.NewPublisher(natsClient.JetStream())

	// Canonical timezone for relative-date resolution
	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		slog.Error("loading canonical timezone", "error", err, "timezone", cfg.Pipeline.Timezone)
		os.Exit(1)
	}

	// Analysis pipeline
	fetcher := storage.NewClient(cfg.Storage)
	transcriber := transcribe.NewWhisperClient(cfg.STT)
	extractor := extract.NewGeminiClient(cfg.Extract, loc)
	memoRepo := memo.NewPostgresRepository(pool)
	memoSvc := memo.NewService(memoRepo, fetcher, transcriber, extractor, publisher, memo.Options{
		Language:          cfg.STT.Language,
		Location:          loc,
		FetchTimeout:      cfg.Storage.Timeout,
		TranscribeTimeout: cfg.STT.Timeout,
		ExtractTimeout:    cfg.Extract.Timeout,
	})
	memoHandler := memo.NewHandler(memoSvc)

	// Router
	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.MaxReqs, cfg.RateLimit.WindowSec)
		routerCfg.AnalyzeRateLimiter = limiter.Middleware
	}
	router := api.NewRouter(pool, natsClient, routerCfg, api.HandlerSet{
		AnalyzeMemo: memoHandler.Analyze,
		ListMemos:   memoHandler.List,
		GetMemo:     memoHandler.Get,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
