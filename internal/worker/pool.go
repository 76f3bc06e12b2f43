package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mesh-pipeline-service/internal/service"
)

// Processor handles one claimed task payload.
type Processor interface {
	Handle(ctx context.Context, payload string) error
}

// Pool consumes one queue lane with a fixed number of workers. The GPU
// lane runs with workers=1: that single knob is what serializes GPU-stage
// execution globally and bounds peak VRAM to one job's working set.
type Pool struct {
	queue      service.Queue
	processor  Processor
	lane       string
	workers    int
	claimDelay time.Duration
	log        *zap.Logger
}

func NewPool(queue service.Queue, processor Processor, lane string, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		lane:       lane,
		workers:    workers,
		claimDelay: 5 * time.Second,
		log:        log.With(zap.String("lane", lane)),
	}
}

// Run claims tasks and fans them out until ctx is canceled. It returns
// after in-flight tasks finish.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started", zap.Int("workers", p.workers))

	taskCh := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for payload := range taskCh {
				if err := p.processor.Handle(ctx, payload); err != nil {
					p.log.Error("task handling error", zap.Int("worker", n), zap.Error(err))
				}

				// Ack regardless: the job record already reflects the
				// outcome. If the process dies before this point the
				// reaper requeues the payload and the orchestrator's
				// stage guard decides whether it still applies.
				if err := p.queue.Ack(ctx, p.lane, payload); err != nil {
					p.log.Error("ack error", zap.Int("worker", n), zap.Error(err))
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			p.log.Info("worker pool stopped")
			return
		default:
			payload, err := p.queue.ClaimBlocking(ctx, p.lane, p.claimDelay)
			if err != nil {
				// timeout/redis.Nil/ctx cancel; not fatal
				continue
			}
			select {
			case taskCh <- payload:
			case <-ctx.Done():
				close(taskCh)
				wg.Wait()
				return
			}
		}
	}
}
