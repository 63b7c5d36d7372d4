package main

import (
	"context"
	"os"

	"github.com/fhuszti/videos-ms-go/internal/cache"
	"github.com/fhuszti/videos-ms-go/internal/config"
	"github.com/fhuszti/videos-ms-go/internal/db"
	"github.com/fhuszti/videos-ms-go/internal/lifecycle"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/fhuszti/videos-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/videos-ms-go/internal/storage"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
)

// storage-sweep runs one cleanup pass over the uploads and streams directories. It is
// meant to be started by an external scheduler (cron, Kubernetes CronJob).
func main() {
	os.Exit(run(context.Background()))
}

// run returns the exit code once every connection it opened is closed.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		return 1
	}

	logger.Init()

	database, err := db.New(ctx, db.MariaDbConfig{
		DSN:             cfg.MariaDBDSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to connect to db: %v", err)
		return 1
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Warnf(ctx, "DB close error: %v", err)
		}
	}()

	repo := mariadb.NewVideoRepository(database.DB)
	var ca port.Cache = cache.NewNoop()
	if cfg.RedisAddr != "" {
		c := cache.NewCache(cfg.RedisAddr, cfg.RedisPassword)
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warnf(ctx, "cache close error: %v", err)
			}
		}()
		ca = c
	}
	mirror, err := initMirror(ctx, cfg)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize MinIO: %v", err)
		return 1
	}

	// no job runs under this coordinator, so finished uploads are left to the API
	coord := lifecycle.NewCoordinator(lifecycle.Options{
		UploadsDir:    cfg.UploadsDir,
		StreamsDir:    cfg.StreamsDir,
		MaxProcesses:  cfg.MaxConcurrentProcesses,
		StorageBudget: cfg.StorageBudgetBytes,
		OrphanGrace:   cfg.OrphanGracePeriod,
		EvictVariants: cfg.EvictCompletedVariants,
		OnEvict:       video.NewEvictionHook(repo, ca, mirror),
	})

	removed, freed := coord.SweepOrphans(ctx)
	logger.Infof(ctx, "🧹 removed %d orphaned partial file(s), %d bytes", removed, freed)

	rep, err := coord.EnforceStorageBudget(ctx, 0)
	if err != nil {
		logger.Errorf(ctx, "❌  Storage budget still exceeded: %v", err)
		return 1
	}
	logger.Info(ctx, "✅  Storage sweep completed",
		"budget", rep.Budget,
		"usage_before", rep.UsageBefore,
		"usage_after", rep.UsageAfter,
		"freed_bytes", rep.FreedBytes,
		"evicted", rep.Evicted,
	)
	return 0
}

func initMirror(ctx context.Context, cfg *config.Settings) (port.Storage, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}
	client, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		return nil, err
	}
	strg, err := client.WithBucket(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, err
	}
	return strg, nil
}
