// Package stage holds the pipeline stage implementations. The heavy
// compute (neural reconstruction, background matting) lives behind these
// runners as opaque operations; everything around them — blob IO, progress
// reporting, artifact naming — is the real contract with the orchestrator.
package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/storage"
)

// Registry wires one runner per pipeline stage.
func Registry(store storage.Store, log *zap.Logger) map[entity.Stage]pipeline.Runner {
	return map[entity.Stage]pipeline.Runner{
		entity.StagePreprocessing:     &Preprocessor{store: store, log: log},
		entity.StageReconstructing3D:  &Reconstructor{store: store, log: log},
		entity.StageRenderingPreviews: &PreviewRenderer{store: store, log: log},
		entity.StageMeshRepairing:     &Repairer{store: store, log: log},
		entity.StageExportingSTL:      &Exporter{store: store, log: log},
	}
}

func readBlob(ctx context.Context, store storage.Store, ref string) ([]byte, error) {
	rc, err := store.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func putBlob(ctx context.Context, store storage.Store, jobID, asset string, data []byte) (string, error) {
	ref, err := store.Put(ctx, jobID, asset, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store %s: %w", asset, err)
	}
	return ref, nil
}

// artifactRef resolves a previously recorded artifact, failing with a
// stage error (terminal for the job) when a prerequisite is missing.
func artifactRef(job *entity.Job, name string) (string, error) {
	ref, ok := job.Artifacts[name]
	if !ok {
		return "", fmt.Errorf("missing prerequisite artifact %q", name)
	}
	return ref, nil
}
