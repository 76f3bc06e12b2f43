package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/storage"
)

// ErrUnknownFormat rejects download formats outside the published set.
var ErrUnknownFormat = errors.New("unknown format")

// downloadFormats maps public format names to artifact keys and transport
// metadata.
var downloadFormats = map[string]struct {
	artifact    string
	contentType string
	ext         string
}{
	"stl":        {entity.ArtifactMeshSTL, "application/sla", "stl"},
	"obj":        {entity.ArtifactMeshOBJ, "text/plain", "obj"},
	"glb":        {entity.ArtifactMeshGLB, "model/gltf-binary", "glb"},
	"stl_scaled": {entity.ArtifactSTLScaled, "application/sla", "stl"},
	"obj_scaled": {entity.ArtifactOBJScaled, "text/plain", "obj"},
}

// Download is an open artifact stream plus the metadata the HTTP layer
// needs to serve it.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}

// ResultService resolves job artifacts into downloadable streams.
type ResultService struct {
	repo  JobRepository
	store storage.Store
}

func NewResultService(repo JobRepository, store storage.Store) *ResultService {
	return &ResultService{repo: repo, store: store}
}

// OpenDownload returns the artifact stream for a public format name.
// The glb preview is available as soon as reconstruction finishes; all
// other formats require a finished job.
func (s *ResultService) OpenDownload(ctx context.Context, id uuid.UUID, format string) (*Download, error) {
	def, ok := downloadFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if format != "glb" && job.Status != entity.StatusDone {
		return nil, fmt.Errorf("%w: job status is %s", ErrNotReady, job.Status)
	}

	ref, ok := job.Artifacts[def.artifact]
	if !ok {
		return nil, fmt.Errorf("%w: %s not produced", storage.ErrNotFound, def.artifact)
	}

	size, err := s.store.Size(ctx, ref)
	if err != nil {
		return nil, err
	}
	body, err := s.store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}

	return &Download{
		Body:        body,
		ContentType: def.contentType,
		Filename:    fmt.Sprintf("model_%s.%s", id.String()[:8], def.ext),
		Size:        size,
	}, nil
}
