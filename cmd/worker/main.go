package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/broadcast"
	"github.com/fhuszti/videos-ms-go/internal/cache"
	"github.com/fhuszti/videos-ms-go/internal/config"
	"github.com/fhuszti/videos-ms-go/internal/db"
	"github.com/fhuszti/videos-ms-go/internal/ffmpeg"
	workerHandler "github.com/fhuszti/videos-ms-go/internal/handler/worker"
	"github.com/fhuszti/videos-ms-go/internal/ladder"
	"github.com/fhuszti/videos-ms-go/internal/lifecycle"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/fhuszti/videos-ms-go/internal/poster"
	"github.com/fhuszti/videos-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/videos-ms-go/internal/storage"
	"github.com/fhuszti/videos-ms-go/internal/task"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
	"github.com/hibiken/asynq"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		logger.Error(ctx, "⚠️  REDIS_ADDR must be set to run the worker")
		os.Exit(1)
	}

	logger.Init()

	if err := os.MkdirAll(cfg.StreamsDir, 0o755); err != nil {
		logger.Errorf(ctx, "❌  Failed to create %q: %v", cfg.StreamsDir, err)
		os.Exit(1)
	}

	database := initDb(cfg)
	repo := mariadb.NewVideoRepository(database.DB)
	ca := cache.NewCache(cfg.RedisAddr, cfg.RedisPassword)
	sink := broadcast.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword)
	gateway := broadcast.NewGateway(sink, 0)

	// the worker never admits uploads, it only holds transcode jobs and process slots
	coord := lifecycle.NewCoordinator(lifecycle.Options{
		UploadsDir:   cfg.UploadsDir,
		StreamsDir:   cfg.StreamsDir,
		MaxProcesses: cfg.MaxConcurrentProcesses,
	})

	presets, err := ladder.ParsePresets(cfg.QualityPresets)
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid quality presets: %v", err)
		os.Exit(1)
	}
	var enc video.PosterEncoder
	if cfg.PosterEnabled {
		enc = poster.NewEncoder(nil)
	}
	orch := video.NewOrchestrator(video.OrchestratorConfig{
		StreamsDir:       cfg.StreamsDir,
		Presets:          presets,
		Parallelism:      cfg.LadderParallelism,
		TransientRetries: cfg.TransientRetries,
	},
		ffmpeg.NewProber(cfg.FFprobePath, cfg.ProbeTimeout, coord),
		ffmpeg.NewTranscoder(cfg.FFmpegPath, cfg.StallTimeout, coord),
		repo, ca, gateway, enc, initMirror(cfg),
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(task.TypeTranscodeVideo, func(ctx context.Context, t *asynq.Task) error {
		p, err := task.ParseTranscodeVideoPayload(t)
		if err != nil {
			return err
		}
		return workerHandler.TranscodeVideoHandler(ctx, p, coord, orch)
	})

	runWorker(ctx, mux, cfg, coord)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := gateway.Close(closeCtx); err != nil {
		logger.Warnf(ctx, "progress gateway close: %v", err)
	}
	if err := sink.Close(); err != nil {
		logger.Warnf(ctx, "progress channel close error: %v", err)
	}
	if err := ca.Close(); err != nil {
		logger.Warnf(ctx, "cache close error: %v", err)
	}
	if err := database.Close(); err != nil {
		logger.Warnf(ctx, "DB close error: %v", err)
	}
	logger.Info(ctx, "✅  Worker gracefully stopped")
}

func initDb(cfg *config.Settings) *db.Database {
	ctx := context.Background()
	logger.Info(ctx, "initialising database...")

	database, err := db.New(ctx, db.MariaDbConfig{
		DSN:             cfg.MariaDBDSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to connect to db: %v", err)
		os.Exit(1)
	}
	return database
}

func initMirror(cfg *config.Settings) port.Storage {
	ctx := context.Background()
	if cfg.MinioEndpoint == "" {
		return nil
	}
	client, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize MinIO client: %v", err)
		os.Exit(1)
	}
	strg, err := client.WithBucket(ctx, cfg.MinioBucket)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize bucket %q: %v", cfg.MinioBucket, err)
		os.Exit(1)
	}
	return strg
}

func runWorker(ctx context.Context, mux *asynq.ServeMux, cfg *config.Settings, coord *lifecycle.Coordinator) {
	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, asynq.Config{
		Concurrency:     cfg.MaxConcurrentProcesses,
		ShutdownTimeout: cfg.ShutdownTimeout + 5*time.Second,
	})

	// Run would trap the signals itself and shut down before the drain
	if err := srv.Start(mux); err != nil {
		logger.Errorf(ctx, "❌  Worker failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "🚀 Worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info(ctx, "🛑 Shutdown signal received, draining…")

	// stop pulling new tasks, then give running transcodes the drain window
	srv.Stop()
	res := coord.Drain(cfg.ShutdownTimeout)
	if !res.Drained {
		logger.Warnf(ctx, "⚠️  Force-cancelled %d transcode(s): %v", len(res.Forced), res.Forced)
	}
	srv.Shutdown()
}
