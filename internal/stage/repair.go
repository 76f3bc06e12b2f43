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

// Repairer cleans the raw reconstruction output for printing: vertex
// welding, degenerate-face removal, unreferenced-vertex pruning.
type Repairer struct {
	store storage.Store
	log   *zap.Logger
}

func (r *Repairer) Run(ctx context.Context, job *entity.Job, report pipeline.ProgressFunc) (*pipeline.StageResult, error) {
	report(0)

	ref, err := artifactRef(job, entity.ArtifactMeshRaw)
	if err != nil {
		return nil, err
	}
	data, err := readBlob(ctx, r.store, ref)
	if err != nil {
		return nil, fmt.Errorf("read raw mesh: %w", err)
	}
	m, err := mesh.DecodeSTL(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode raw mesh: %w", err)
	}
	report(30)

	repaired := mesh.Repair(m)
	analysis := repaired.Measure()
	if !analysis.Manifold {
		r.log.Warn("mesh still non-manifold after repair",
			zap.String("job_id", job.ID.String()))
	}
	report(70)

	var buf bytes.Buffer
	if err := mesh.EncodeSTL(&buf, repaired); err != nil {
		return nil, fmt.Errorf("encode repaired mesh: %w", err)
	}
	outRef, err := putBlob(ctx, r.store, job.ID.String(), entity.ArtifactMeshRepaired, buf.Bytes())
	if err != nil {
		return nil, err
	}
	report(100)

	r.log.Info("mesh repaired",
		zap.String("job_id", job.ID.String()),
		zap.Int("faces", analysis.Faces),
		zap.Bool("watertight", analysis.Watertight),
	)

	return &pipeline.StageResult{
		Artifacts: map[string]string{entity.ArtifactMeshRepaired: outRef},
	}, nil
}
