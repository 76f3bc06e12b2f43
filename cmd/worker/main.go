package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/config"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/repository/postgresql"
	"mesh-pipeline-service/internal/service"
	"mesh-pipeline-service/internal/stage"
	"mesh-pipeline-service/internal/storage"
	"mesh-pipeline-service/internal/worker"
)

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
	runners := stage.Registry(store, logger)
	orch := pipeline.NewOrchestrator(repo, queue, runners, logger)

	// Reaper: returns payloads abandoned by crashed workers to their
	// queues. The orchestrator's stage guard filters redeliveries of work
	// that already completed.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := queue.RequeueStale(ctx, 100)
				if err != nil {
					logger.Warn("requeue stale", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("requeued stale tasks", zap.Int64("count", n))
				}
			}
		}
	}()

	// The gpu lane must stay at its configured width (1 by default); that
	// is the only thing bounding concurrent GPU-stage execution.
	gpuPool := worker.NewPool(queue, orch, service.LaneGPU, cfg.GPUWorkers, logger)
	cpuPool := worker.NewPool(queue, orch, service.LaneCPU, cfg.CPUWorkers, logger)

	logger.Info("worker started",
		zap.Int("gpu_workers", cfg.GPUWorkers),
		zap.Int("cpu_workers", cfg.CPUWorkers),
		zap.String("queue_prefix", cfg.QueueKeyPrefix),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); gpuPool.Run(ctx) }()
	go func() { defer wg.Done(); cpuPool.Run(ctx) }()
	wg.Wait()

	logger.Info("worker stopped")
}

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
