package stage

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/mesh"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/storage"
)

// Reconstructor is the GPU stage: single-image 3D reconstruction. The
// neural model is external to this design; this implementation derives a
// deterministic stand-in mesh from the image content so the rest of the
// pipeline (measurement, repair, export, scaling) runs on real geometry.
// Reconstruction is the only stage allowed to produce dimensions.
type Reconstructor struct {
	store storage.Store
	log   *zap.Logger
}

func (r *Reconstructor) Run(ctx context.Context, job *entity.Job, report pipeline.ProgressFunc) (*pipeline.StageResult, error) {
	report(0)

	ref, err := artifactRef(job, entity.ArtifactPreprocessed)
	if err != nil {
		return nil, err
	}
	data, err := readBlob(ctx, r.store, ref)
	if err != nil {
		return nil, fmt.Errorf("read preprocessed image: %w", err)
	}
	report(20)

	m := inferMesh(data, job.Options.EnhancedDetail)
	report(60)

	analysis := m.Measure()
	dims := &entity.Dimensions{
		XMM:        round2(analysis.XMM),
		YMM:        round2(analysis.YMM),
		ZMM:        round2(analysis.ZMM),
		VolumeMM3:  round2(analysis.VolumeMM3),
		Watertight: analysis.Watertight,
		Manifold:   analysis.Manifold,
	}

	var stlBuf bytes.Buffer
	if err := mesh.EncodeSTL(&stlBuf, m); err != nil {
		return nil, fmt.Errorf("encode raw mesh: %w", err)
	}
	rawRef, err := putBlob(ctx, r.store, job.ID.String(), entity.ArtifactMeshRaw, stlBuf.Bytes())
	if err != nil {
		return nil, err
	}
	report(80)

	var glbBuf bytes.Buffer
	if err := mesh.EncodeGLB(&glbBuf, m); err != nil {
		return nil, fmt.Errorf("encode glb: %w", err)
	}
	glbRef, err := putBlob(ctx, r.store, job.ID.String(), entity.ArtifactMeshGLB, glbBuf.Bytes())
	if err != nil {
		return nil, err
	}
	report(100)

	r.log.Info("reconstruction finished",
		zap.String("job_id", job.ID.String()),
		zap.Int("vertices", analysis.Vertices),
		zap.Int("faces", analysis.Faces),
	)

	return &pipeline.StageResult{
		Artifacts: map[string]string{
			entity.ArtifactMeshRaw: rawRef,
			entity.ArtifactMeshGLB: glbRef,
		},
		Dimensions: dims,
	}, nil
}

// inferMesh maps image bytes to a plausible printable shape: an ellipsoid
// whose radii are derived from a content hash, landing in the 10-60mm
// range typical of desktop FDM parts.
func inferMesh(data []byte, enhancedDetail bool) *mesh.Mesh {
	h := fnv.New64a()
	_, _ = h.Write(data)
	sum := h.Sum64()

	radius := func(shift uint) float64 {
		return 5 + float64((sum>>shift)&0xFF)/255*25 // 5..30mm radius
	}

	segments, rings := 24, 16
	if enhancedDetail {
		segments, rings = 48, 32
	}
	return mesh.Ellipsoid(radius(0), radius(16), radius(32), segments, rings)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
