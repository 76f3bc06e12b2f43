package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/repository/postgresql"
	"mesh-pipeline-service/internal/service"
)

// ProgressFunc reports a stage's own completion fraction (0-100).
type ProgressFunc func(frac int)

// StageResult is what a stage hands back on success.
type StageResult struct {
	// Artifacts maps asset names to blob refs produced by the stage.
	Artifacts map[string]string
	// Dimensions is non-nil only for the reconstruction stage; the store
	// treats it as set-once.
	Dimensions *entity.Dimensions
}

// Runner is one opaque stage implementation. Run may block for seconds on
// external compute; it must honor ctx cancellation between sub-steps.
type Runner interface {
	Run(ctx context.Context, job *entity.Job, report ProgressFunc) (*StageResult, error)
}

// JobStore is the slice of the repository the orchestrator needs.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	BeginStage(ctx context.Context, id uuid.UUID, stage entity.Stage, progress int) error
	SetProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteStage(ctx context.Context, id uuid.UUID, from, next entity.Stage,
		artifacts map[string]string, dims *entity.Dimensions, progress int, done bool) error
	SetError(ctx context.Context, id uuid.UUID, msg string) error
}

// Orchestrator executes stage tasks: it is the completion handler that
// chains each stage into the next. It is the only writer of a job's
// pipeline fields, and per-job ordering holds because stage N+1 is only
// ever enqueued here, from the completion of stage N.
type Orchestrator struct {
	store   JobStore
	queue   service.Queue
	runners map[entity.Stage]Runner
	log     *zap.Logger
}

func NewOrchestrator(store JobStore, queue service.Queue, runners map[entity.Stage]Runner, log *zap.Logger) *Orchestrator {
	return &Orchestrator{store: store, queue: queue, runners: runners, log: log}
}

// EnqueueFirst puts a freshly created job's first stage task on its lane.
// Called by the API layer at upload time; everything after that is chained.
func (o *Orchestrator) EnqueueFirst(ctx context.Context, jobID uuid.UUID) error {
	first := First()
	return o.queue.Enqueue(ctx, first.Lane, service.Task{
		JobID: jobID.String(),
		Stage: first.Stage,
	})
}

// Handle processes one claimed stage task. Stale or malformed tasks are
// dropped without mutating the job; stage failures are terminal.
func (o *Orchestrator) Handle(ctx context.Context, payload string) error {
	start := time.Now()

	task, err := service.DecodeTask(payload)
	if err != nil {
		o.log.Warn("dropping malformed task", zap.Error(err))
		return err
	}
	id, err := uuid.Parse(task.JobID)
	if err != nil {
		o.log.Warn("dropping task with bad job id", zap.String("job_id", task.JobID), zap.Error(err))
		return err
	}
	log := o.log.With(zap.String("job_id", task.JobID), zap.String("stage", string(task.Stage)))

	job, err := o.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			log.Warn("dropping task for unknown job")
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status.Terminal() {
		log.Info("dropping task for terminal job", zap.String("status", string(job.Status)))
		return nil
	}

	// The only acceptable task is the job's pending stage. Anything else
	// is an at-least-once redelivery of work that already completed.
	expected := First().Stage
	if job.Stage != "" {
		expected = job.Stage
	}
	if task.Stage != expected {
		log.Info("dropping stale stage task", zap.String("pending_stage", string(expected)))
		return nil
	}

	def, ok := Lookup(task.Stage)
	if !ok {
		log.Warn("dropping task for unknown stage")
		return nil
	}
	runner, ok := o.runners[task.Stage]
	if !ok {
		o.fail(ctx, log, id, fmt.Sprintf("no runner registered for stage %s", task.Stage))
		return nil
	}

	if err := o.store.BeginStage(ctx, id, def.Stage, Base(def.Stage)); err != nil {
		if errors.Is(err, postgresql.ErrConflict) {
			log.Info("job moved on before stage could start")
			return nil
		}
		return fmt.Errorf("begin stage: %w", err)
	}
	log.Info("stage started")

	report := func(frac int) {
		if err := o.store.SetProgress(ctx, id, Overall(def.Stage, frac)); err != nil {
			log.Warn("progress update failed", zap.Error(err))
		}
	}

	result, runErr := runner.Run(ctx, job, report)
	if runErr != nil {
		// Terminal by policy: stage failures are not retried.
		o.fail(ctx, log, id, runErr.Error())
		log.Error("stage failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(runErr),
		)
		return nil
	}
	if result == nil {
		result = &StageResult{}
	}

	next, hasNext := Next(def.Stage)
	nextStage := def.Stage
	progress := 100
	if hasNext {
		nextStage = next.Stage
		progress = Base(next.Stage)
	}

	err = o.store.CompleteStage(ctx, id, def.Stage, nextStage,
		result.Artifacts, result.Dimensions, progress, !hasNext)
	if err != nil {
		if errors.Is(err, postgresql.ErrConflict) {
			log.Info("stage result discarded, job state moved on")
			return nil
		}
		return fmt.Errorf("complete stage: %w", err)
	}

	if hasNext {
		if err := o.queue.Enqueue(ctx, next.Lane, service.Task{
			JobID: task.JobID,
			Stage: next.Stage,
		}); err != nil {
			// Without the chained task the job would hang forever; give
			// the client a terminal state instead.
			o.fail(ctx, log, id, fmt.Sprintf("broker unavailable enqueueing %s: %v", next.Stage, err))
			return fmt.Errorf("enqueue next stage: %w", err)
		}
	}

	log.Info("stage completed",
		zap.Duration("duration", time.Since(start)),
		zap.Bool("done", !hasNext),
	)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, id uuid.UUID, msg string) {
	if err := o.store.SetError(ctx, id, msg); err != nil && !errors.Is(err, postgresql.ErrConflict) {
		log.Error("failed to record job error", zap.Error(err))
	}
}
