package stage

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/mesh"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/storage"
)

// Exporter is the final stage: it serializes the repaired mesh to the
// deliverable formats, binary STL and ASCII OBJ.
type Exporter struct {
	store storage.Store
	log   *zap.Logger
}

func (e *Exporter) Run(ctx context.Context, job *entity.Job, report pipeline.ProgressFunc) (*pipeline.StageResult, error) {
	report(0)

	ref, err := artifactRef(job, entity.ArtifactMeshRepaired)
	if err != nil {
		return nil, err
	}
	data, err := readBlob(ctx, e.store, ref)
	if err != nil {
		return nil, fmt.Errorf("read repaired mesh: %w", err)
	}
	m, err := mesh.DecodeSTL(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode repaired mesh: %w", err)
	}
	report(20)

	var stlBuf bytes.Buffer
	if err := mesh.EncodeSTL(&stlBuf, m); err != nil {
		return nil, fmt.Errorf("encode stl: %w", err)
	}
	stlRef, err := putBlob(ctx, e.store, job.ID.String(), entity.ArtifactMeshSTL, stlBuf.Bytes())
	if err != nil {
		return nil, err
	}
	report(60)

	var objBuf bytes.Buffer
	if err := mesh.EncodeOBJ(&objBuf, m); err != nil {
		return nil, fmt.Errorf("encode obj: %w", err)
	}
	objRef, err := putBlob(ctx, e.store, job.ID.String(), entity.ArtifactMeshOBJ, objBuf.Bytes())
	if err != nil {
		return nil, err
	}
	report(100)

	e.log.Info("exports written",
		zap.String("job_id", job.ID.String()),
		zap.Int("stl_bytes", stlBuf.Len()),
		zap.Int("obj_bytes", objBuf.Len()),
	)

	return &pipeline.StageResult{
		Artifacts: map[string]string{
			entity.ArtifactMeshSTL: stlRef,
			entity.ArtifactMeshOBJ: objRef,
		},
	}, nil
}
