package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/config"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/repository/postgresql"
	"mesh-pipeline-service/internal/service"
	"mesh-pipeline-service/internal/storage"
	httptransport "mesh-pipeline-service/internal/transport/http"
)

// @title Mesh Pipeline Service API
// @version 1.0
// @description Image to printable 3D mesh pipeline: upload, poll, scale, download.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	pool, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("pg connect", zap.Error(err))
	}
	defer pool.Close()

	if err := postgresql.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	repo := postgresql.NewJobRepository(pool)
	queue := service.NewRedisQueue(rdb, cfg.QueueKeyPrefix)

	// The API side never runs stages; it only enqueues the first one.
	orch := pipeline.NewOrchestrator(repo, queue, nil, logger)

	jobSvc := service.NewJobService(repo, store, orch, cfg.MaxUploadBytes, logger)
	exportSvc := service.NewExportService(repo, store, service.PrintabilityBounds{
		MinWallThicknessMM: cfg.MinWallThicknessMM,
		MaxBuildVolumeMM:   cfg.MaxBuildVolumeMM,
		MinScale:           cfg.MinScale,
		MaxScale:           cfg.MaxScale,
	}, logger)
	resultSvc := service.NewResultService(repo, store)

	handler := httptransport.NewHandler(jobSvc, exportSvc, resultSvc,
		redisPinger{rdb}, cfg.GPUAvailable(), logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.Routes(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("api started", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http serve", zap.Error(err))
	}
	logger.Info("api stopped")
}

// redisPinger adapts the redis client to the health endpoint's Pinger.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	}
	return storage.NewLocalStore(cfg.StorageDir)
}
