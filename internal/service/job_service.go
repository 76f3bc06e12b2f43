package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/storage"
)

var (
	// ErrInvalidUpload rejects an upload before any job record exists.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrNotReady means the operation needs a finished job.
	ErrNotReady = errors.New("job not ready")
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// JobRepository is the repository port used by the API-side services.
type JobRepository interface {
	Create(ctx context.Context, id uuid.UUID, inputRef string, opts entity.UploadOptions) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

// FirstStageEnqueuer starts the pipeline for a new job. Implemented by the
// orchestrator; only it may put stage tasks on the queues.
type FirstStageEnqueuer interface {
	EnqueueFirst(ctx context.Context, jobID uuid.UUID) error
}

type JobService struct {
	repo     JobRepository
	store    storage.Store
	pipeline FirstStageEnqueuer
	maxBytes int64
	log      *zap.Logger
}

func NewJobService(repo JobRepository, store storage.Store, pipeline FirstStageEnqueuer, maxBytes int64, log *zap.Logger) *JobService {
	return &JobService{repo: repo, store: store, pipeline: pipeline, maxBytes: maxBytes, log: log}
}

// CreateFromUpload validates the image, stores it, creates the job record
// in status uploaded, and enqueues the first pipeline stage. Validation
// failures happen before any record or blob exists.
func (s *JobService) CreateFromUpload(ctx context.Context, filename string, r io.Reader, opts entity.UploadOptions) (uuid.UUID, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return uuid.Nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidUpload, ext)
	}

	id := uuid.New()

	// Cap the copy one byte past the limit so oversize uploads are
	// detected without buffering the whole body.
	limited := io.LimitReader(r, s.maxBytes+1)
	ref, err := s.store.Put(ctx, id.String(), "input"+ext, limited)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store upload: %w", err)
	}
	size, err := s.store.Size(ctx, ref)
	if err != nil {
		return uuid.Nil, err
	}
	if size == 0 {
		return uuid.Nil, fmt.Errorf("%w: empty file", ErrInvalidUpload)
	}
	if size > s.maxBytes {
		return uuid.Nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidUpload, s.maxBytes)
	}

	if err := s.repo.Create(ctx, id, ref, opts); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.pipeline.EnqueueFirst(ctx, id); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue first stage: %w", err)
	}

	s.log.Info("job created",
		zap.String("job_id", id.String()),
		zap.Int64("upload_bytes", size),
		zap.Bool("remove_bg", opts.RemoveBackground),
	)
	return id, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}
