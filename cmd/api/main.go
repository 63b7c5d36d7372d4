package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/broadcast"
	"github.com/fhuszti/videos-ms-go/internal/cache"
	"github.com/fhuszti/videos-ms-go/internal/config"
	"github.com/fhuszti/videos-ms-go/internal/db"
	"github.com/fhuszti/videos-ms-go/internal/ffmpeg"
	"github.com/fhuszti/videos-ms-go/internal/handler/api"
	"github.com/fhuszti/videos-ms-go/internal/ladder"
	"github.com/fhuszti/videos-ms-go/internal/lifecycle"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	cMiddleware "github.com/fhuszti/videos-ms-go/internal/middleware"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/fhuszti/videos-ms-go/internal/poster"
	"github.com/fhuszti/videos-ms-go/internal/renderer"
	"github.com/fhuszti/videos-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/videos-ms-go/internal/storage"
	"github.com/fhuszti/videos-ms-go/internal/task"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type closer interface {
	Close() error
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}

	logger.Init()

	initDirs(ctx, cfg)
	database := initDb(ctx, cfg)
	repo := mariadb.NewVideoRepository(database.DB)

	var ca port.Cache
	var sink broadcast.Sink
	if cfg.RedisAddr != "" {
		ca = cache.NewCache(cfg.RedisAddr, cfg.RedisPassword)
		sink = broadcast.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword)
		logger.Info(ctx, "✅  Redis cache and progress channel enabled")
	} else {
		ca = cache.NewNoop()
		sink = broadcast.LogSink{}
		logger.Warn(ctx, "⚠️  Redis not configured, caching is disabled and progress events are only logged")
	}
	gateway := broadcast.NewGateway(sink, 0)
	mirror := initMirror(ctx, cfg)

	coord := lifecycle.NewCoordinator(lifecycle.Options{
		UploadsDir:    cfg.UploadsDir,
		StreamsDir:    cfg.StreamsDir,
		MaxProcesses:  cfg.MaxConcurrentProcesses,
		StorageBudget: cfg.StorageBudgetBytes,
		OrphanGrace:   cfg.OrphanGracePeriod,
		// the asynq worker may still be waiting to transcode an older upload
		SweepSources:  cfg.DispatchMode != config.DispatchAsynq,
		EvictVariants: cfg.EvictCompletedVariants,
		OnEvict:       video.NewEvictionHook(repo, ca, mirror),
	})

	closers := []closer{database}
	if c, ok := ca.(closer); ok {
		closers = append(closers, c)
	}
	if c, ok := sink.(closer); ok {
		closers = append(closers, c)
	}

	var local *task.LocalDispatcher
	var dispatcher video.Dispatcher
	switch cfg.DispatchMode {
	case config.DispatchAsynq:
		d := task.NewDispatcher(cfg.RedisAddr, cfg.RedisPassword)
		closers = append(closers, d)
		dispatcher = d
		logger.Info(ctx, "✅  Transcodes are dispatched to the asynq worker")
	default:
		local = task.NewLocalDispatcher(initOrchestrator(ctx, cfg, coord, repo, ca, gateway, mirror))
		dispatcher = local
		logger.Info(ctx, "✅  Transcodes run in-process")
	}

	uploads := video.NewUploadManager(video.UploadConfig{
		UploadsDir:       cfg.UploadsDir,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		AllowedFormats:   cfg.AllowedFormats,
		ProgressInterval: cfg.ProgressInterval,
	}, coord, coord, gateway, dispatcher)

	r := initRouter(ctx, cfg, coord, uploads)
	r.Group(func(r chi.Router) {
		r.Use(initAuth(ctx, cfg))

		r.Post("/uploads", api.BeginUploadHandler(uploads))
		r.Route("/uploads/{id}", func(r chi.Router) {
			r.Use(cMiddleware.WithID())
			r.Get("/", api.GetUploadHandler(uploads))
			r.Delete("/", api.AbortUploadHandler(uploads))
			r.Put("/chunks", api.WriteChunkHandler(uploads))
			r.Post("/complete", api.CompleteUploadHandler(uploads))
		})

		getVideoSvc := video.NewVideoGetter(repo, cfg.StreamsDir)
		rendererSvc := renderer.NewHTTPRenderer(ca)
		r.With(cMiddleware.WithID()).
			Get("/videos/{id}", api.GetVideoHandler(rendererSvc, getVideoSvc))
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go coord.RunJanitor(janitorCtx, cfg.CleanupInterval)

	listenRouter(ctx, r, cfg, coord)

	stopJanitor()
	if local != nil {
		local.Wait()
	}
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := gateway.Close(closeCtx); err != nil {
		logger.Warnf(ctx, "progress gateway close: %v", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warnf(ctx, "close error: %v", err)
		}
	}
	logger.Info(ctx, "✅  API gracefully stopped")
}

func initDirs(ctx context.Context, cfg *config.Settings) {
	for _, dir := range []string{cfg.UploadsDir, cfg.StreamsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Errorf(ctx, "❌  Failed to create %q: %v", dir, err)
			os.Exit(1)
		}
	}
}

func initDb(ctx context.Context, cfg *config.Settings) *db.Database {
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

func initOrchestrator(ctx context.Context, cfg *config.Settings, limiter port.ProcessLimiter, repo port.VideoRepository, ca port.Cache, publisher port.ProgressPublisher, mirror port.Storage) *video.Orchestrator {
	presets, err := ladder.ParsePresets(cfg.QualityPresets)
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid quality presets: %v", err)
		os.Exit(1)
	}

	var enc video.PosterEncoder
	if cfg.PosterEnabled {
		enc = poster.NewEncoder(nil)
	}

	return video.NewOrchestrator(video.OrchestratorConfig{
		StreamsDir:       cfg.StreamsDir,
		Presets:          presets,
		Parallelism:      cfg.LadderParallelism,
		TransientRetries: cfg.TransientRetries,
	},
		ffmpeg.NewProber(cfg.FFprobePath, cfg.ProbeTimeout, limiter),
		ffmpeg.NewTranscoder(cfg.FFmpegPath, cfg.StallTimeout, limiter),
		repo, ca, publisher, enc, mirror,
	)
}

// initMirror connects to MinIO when it is configured; variants are only kept locally otherwise.
func initMirror(ctx context.Context, cfg *config.Settings) port.Storage {
	if cfg.MinioEndpoint == "" {
		logger.Info(ctx, "MinIO not configured, variants are not mirrored")
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

func initAuth(ctx context.Context, cfg *config.Settings) func(http.Handler) http.Handler {
	auth, err := cMiddleware.WithDSTAuth(cMiddleware.AuthConfig{PublicKeyPEM: cfg.JWTPublicKey})
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid JWT configuration: %v", err)
		os.Exit(1)
	}
	if cfg.JWTPublicKey == "" {
		logger.Warn(ctx, "⚠️  JWT_PUBLIC_KEY not set, admission routes are not authenticated")
	}
	return auth
}

func initRouter(ctx context.Context, cfg *config.Settings, registry port.JobRegistry, uploads api.UploadCounter) *chi.Mux {
	logger.Info(ctx, "initialising router...")

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.NotFound(api.NotFoundHandler())
	r.MethodNotAllowed(api.MethodNotAllowedHandler())

	r.Get("/healthz", api.HealthHandler())
	r.Get("/readyz", api.ReadyHandler(registry, uploads))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// listenRouter serves until SIGINT/SIGTERM, then drains the coordinator before the
// HTTP server stops, so in-flight uploads can finish.
func listenRouter(ctx context.Context, r *chi.Mux, cfg *config.Settings, coord *lifecycle.Coordinator) {
	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.ServerPort), Handler: r}

	go func() {
		logger.Infof(ctx, "🚀 API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(ctx, "❌  Listen error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "🛑 Shutdown signal received, draining…")

	res := coord.Drain(cfg.ShutdownTimeout)
	if res.Drained {
		logger.Info(ctx, "✅  All jobs finished before the drain timeout")
	} else {
		logger.Warnf(ctx, "⚠️  Force-cancelled %d job(s): %v", len(res.Forced), res.Forced)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "❌  Server shutdown failed: %v", err)
	}
	logger.Info(ctx, "✅  Server stopped")
}
