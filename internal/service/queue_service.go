package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mesh-pipeline-service/internal/entity"
)

// Lane names double as queue routing keys. GPU-bound stages go to the gpu
// lane (consumed by the capacity-1 pool); everything else goes to cpu.
const (
	LaneGPU = "gpu"
	LaneCPU = "cpu"
)

// Task is one stage execution order for one job. Carrying the stage (not
// just the job id) lets the orchestrator reject out-of-order redeliveries
// from the at-least-once broker.
type Task struct {
	JobID string       `json:"job_id"`
	Stage entity.Stage `json:"stage"`
}

func EncodeTask(t Task) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeTask(payload string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}

type Queue interface {
	Enqueue(ctx context.Context, lane string, task Task) error
	// ClaimBlocking atomically moves one payload from the lane's queue to
	// its processing list. Returns redis.Nil on timeout.
	ClaimBlocking(ctx context.Context, lane string, timeout time.Duration) (string, error)
	// Ack removes a claimed payload from the lane's processing list.
	Ack(ctx context.Context, lane string, payload string) error
	// RequeueStale moves abandoned payloads from processing back to the
	// queue, across all lanes. At-least-once recovery for crashed workers.
	RequeueStale(ctx context.Context, maxPerLane int64) (int64, error)
}

// redisQueue implements a reliable queue per lane using Redis lists.
// Claim: BRPOPLPUSH lane.queue -> lane.processing
// Ack:   LREM from lane.processing
type redisQueue struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisQueue(rdb *redis.Client, keyPrefix string) Queue {
	return &redisQueue{rdb: rdb, prefix: keyPrefix}
}

func (q *redisQueue) queueKey(lane string) string {
	return q.prefix + ":queue:" + lane
}

func (q *redisQueue) processingKey(lane string) string {
	return q.prefix + ":processing:" + lane
}

func (q *redisQueue) Enqueue(ctx context.Context, lane string, task Task) error {
	payload, err := EncodeTask(task)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueKey(lane), payload).Err()
}

func (q *redisQueue) ClaimBlocking(ctx context.Context, lane string, timeout time.Duration) (string, error) {
	return q.rdb.BRPopLPush(ctx, q.queueKey(lane), q.processingKey(lane), timeout).Result()
}

func (q *redisQueue) Ack(ctx context.Context, lane string, payload string) error {
	return q.rdb.LRem(ctx, q.processingKey(lane), 1, payload).Err()
}

func (q *redisQueue) RequeueStale(ctx context.Context, maxPerLane int64) (int64, error) {
	var moved int64
	for _, lane := range []string{LaneGPU, LaneCPU} {
		for i := int64(0); i < maxPerLane; i++ {
			payload, err := q.rdb.RPopLPush(ctx, q.processingKey(lane), q.queueKey(lane)).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					break
				}
				return moved, err
			}
			if payload != "" {
				moved++
			}
		}
	}
	return moved, nil
}
