package service

import (
	"bytes"
	"context"
	"io"

	"github.com/google/uuid"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/repository/postgresql"
	"mesh-pipeline-service/internal/storage"
)

// memStore is an in-memory blob store for service tests.
type memStore struct {
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, jobID, asset string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := storage.Key(jobID, asset)
	s.blobs[key] = data
	return key, nil
}

func (s *memStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	data, ok := s.blobs[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Size(_ context.Context, ref string) (int64, error) {
	data, ok := s.blobs[ref]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(data)), nil
}

// fakeRepo implements both JobRepository and ExportRepository in memory.
type fakeRepo struct {
	jobs      map[uuid.UUID]*entity.Job
	created   []uuid.UUID
	createErr error
}

func newFakeRepo(jobs ...*entity.Job) *fakeRepo {
	r := &fakeRepo{jobs: map[uuid.UUID]*entity.Job{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, id uuid.UUID, inputRef string, opts entity.UploadOptions) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, id)
	r.jobs[id] = &entity.Job{
		ID:        id,
		Status:    entity.StatusUploaded,
		InputRef:  inputRef,
		Options:   opts,
		UserScale: entity.IdentityScale(),
	}
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeRepo) SetUserScale(_ context.Context, id uuid.UUID, scale entity.ScaleFactors, artifacts map[string]string) error {
	j, ok := r.jobs[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	if j.Status != entity.StatusDone {
		return postgresql.ErrConflict
	}
	j.UserScale = scale
	if j.Artifacts == nil {
		j.Artifacts = map[string]string{}
	}
	for k, v := range artifacts {
		j.Artifacts[k] = v
	}
	return nil
}

type fakeEnqueuer struct {
	calls []uuid.UUID
	err   error
}

func (e *fakeEnqueuer) EnqueueFirst(_ context.Context, jobID uuid.UUID) error {
	if e.err != nil {
		return e.err
	}
	e.calls = append(e.calls, jobID)
	return nil
}
