package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mesh-pipeline-service/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a guarded transition did not apply: the job is
	// terminal or its stage moved on. Stale broker redeliveries land here.
	ErrConflict = errors.New("conflicting job state")
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts the initial uploaded record. The id is assigned by the
// caller because the input blob is stored under it before the row exists.
func (r *JobRepository) Create(ctx context.Context, id uuid.UUID, inputRef string, opts entity.UploadOptions) error {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO jobs (id, status, progress, input_ref, options)
VALUES ($1, 'uploaded', 0, $2, $3);
`
	_, err = r.pool.Exec(ctx, q, id, inputRef, optsJSON)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, status, stage, progress, input_ref, options, artifacts,
       dimensions, user_scale, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	var (
		job        entity.Job
		statusText string
		stageText  *string
		optsBytes  []byte
		artBytes   []byte
		dimBytes   []byte
		scaleBytes []byte
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&statusText,
		&stageText,
		&job.Progress,
		&job.InputRef,
		&optsBytes,
		&artBytes,
		&dimBytes, // NULL => nil
		&scaleBytes,
		&job.ErrorMessage, // NULL => nil
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.Status = entity.JobStatus(statusText)
	if stageText != nil {
		job.Stage = entity.Stage(*stageText)
	}
	if err := json.Unmarshal(optsBytes, &job.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(artBytes, &job.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if dimBytes != nil {
		job.Dimensions = &entity.Dimensions{}
		if err := json.Unmarshal(dimBytes, job.Dimensions); err != nil {
			return nil, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	if err := json.Unmarshal(scaleBytes, &job.UserScale); err != nil {
		return nil, fmt.Errorf("decode user_scale: %w", err)
	}
	return &job, nil
}

// BeginStage marks a stage as running: status mirrors the stage name and
// progress jumps to the stage's baseline. Guarded so terminal jobs are
// never resurrected; progress never moves backwards.
func (r *JobRepository) BeginStage(ctx context.Context, id uuid.UUID, stage entity.Stage, progress int) error {
	const q = `
UPDATE jobs
SET status = $2, stage = $2, progress = GREATEST(progress, $3), updated_at = now()
WHERE id = $1 AND status NOT IN ('done', 'error');
`
	tag, err := r.pool.Exec(ctx, q, id, string(stage), progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetProgress updates overall progress during a stage. Monotonic by
// construction (GREATEST) and a no-op on terminal jobs.
func (r *JobRepository) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	const q = `
UPDATE jobs
SET progress = GREATEST(progress, LEAST($2, 100)), updated_at = now()
WHERE id = $1 AND status NOT IN ('done', 'error');
`
	tag, err := r.pool.Exec(ctx, q, id, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteStage applies a stage's results as one statement: artifacts
// merge in, dimensions are set if not already (set-once), and the stage
// cursor advances to `next` (or the job finishes when done). The guard on
// the current stage makes redelivered tasks for an already-completed stage
// no-ops, and because it is a single UPDATE a reader can never observe the
// artifacts without the progression or vice versa.
func (r *JobRepository) CompleteStage(
	ctx context.Context,
	id uuid.UUID,
	from entity.Stage,
	next entity.Stage,
	artifacts map[string]string,
	dims *entity.Dimensions,
	progress int,
	done bool,
) error {
	if artifacts == nil {
		artifacts = map[string]string{}
	}
	artJSON, err := json.Marshal(artifacts)
	if err != nil {
		return err
	}
	var dimJSON []byte // NULL keeps existing value via COALESCE
	if dims != nil {
		dimJSON, err = json.Marshal(dims)
		if err != nil {
			return err
		}
	}

	// The job's state between stages is "next stage pending": stage and
	// status both point at the next stage. On the last stage the cursor
	// stays put and status goes terminal.
	stage := string(next)
	status := string(next)
	if done {
		stage = string(from)
		status = string(entity.StatusDone)
		progress = 100
	}

	const q = `
UPDATE jobs
SET artifacts  = artifacts || $3::jsonb,
    dimensions = COALESCE(dimensions, $4::jsonb),
    stage      = $5,
    status     = $6,
    progress   = GREATEST(progress, $7),
    updated_at = now()
WHERE id = $1 AND stage = $2 AND status NOT IN ('done', 'error');
`
	tag, err := r.pool.Exec(ctx, q, id, string(from), artJSON, dimJSON, stage, status, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetError is the terminal failure transition. Idempotent against
// already-terminal jobs.
func (r *JobRepository) SetError(ctx context.Context, id uuid.UUID, msg string) error {
	const q = `
UPDATE jobs
SET status = 'error', error_message = $2, updated_at = now()
WHERE id = $1 AND status NOT IN ('done', 'error');
`
	tag, err := r.pool.Exec(ctx, q, id, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetUserScale records the last applied scale and the scaled export
// artifacts. Only valid on finished jobs; never touches dimensions,
// status or stage.
func (r *JobRepository) SetUserScale(ctx context.Context, id uuid.UUID, scale entity.ScaleFactors, artifacts map[string]string) error {
	scaleJSON, err := json.Marshal(scale)
	if err != nil {
		return err
	}
	if artifacts == nil {
		artifacts = map[string]string{}
	}
	artJSON, err := json.Marshal(artifacts)
	if err != nil {
		return err
	}

	const q = `
UPDATE jobs
SET user_scale = $2::jsonb,
    artifacts  = artifacts || $3::jsonb,
    updated_at = now()
WHERE id = $1 AND status = 'done';
`
	tag, err := r.pool.Exec(ctx, q, id, scaleJSON, artJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
