package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/mesh"
	"mesh-pipeline-service/internal/storage"
)

// ErrInvalidScale rejects scale factors outside the configured bounds.
var ErrInvalidScale = errors.New("invalid scale")

// PrintabilityBounds are the configured limits a scaled part must fit.
type PrintabilityBounds struct {
	// MinWallThicknessMM doubles as the minimum per-axis dimension: a part
	// thinner than one wall cannot print.
	MinWallThicknessMM float64
	// MaxBuildVolumeMM is the printer's cubic build envelope edge.
	MaxBuildVolumeMM float64
	MinScale         float64
	MaxScale         float64
}

// ExportRepository is the repository port for the scale/export engine. It
// may only write user_scale and scaled artifacts, never pipeline fields.
type ExportRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	SetUserScale(ctx context.Context, id uuid.UUID, scale entity.ScaleFactors, artifacts map[string]string) error
}

// ExportService is the scale/export engine: dimension validation against
// printability bounds and scaled STL/OBJ generation from the repaired mesh.
type ExportService struct {
	repo   ExportRepository
	store  storage.Store
	bounds PrintabilityBounds
	log    *zap.Logger
}

func NewExportService(repo ExportRepository, store storage.Store, bounds PrintabilityBounds, log *zap.Logger) *ExportService {
	return &ExportService{repo: repo, store: store, bounds: bounds, log: log}
}

// TargetDimensions is a requested absolute size in millimeters.
type TargetDimensions struct {
	XMM float64 `json:"x_mm"`
	YMM float64 `json:"y_mm"`
	ZMM float64 `json:"z_mm"`
}

// ScaleValidation is the outcome of a dimension check. Scale and
// NewDimensions are echoed even when invalid so the client can show what
// the request would have meant.
type ScaleValidation struct {
	Valid         bool                 `json:"valid"`
	Reason        string               `json:"reason,omitempty"`
	Scale         *entity.ScaleFactors `json:"scale,omitempty"`
	BaseDims      *entity.Dimensions   `json:"original_dimensions,omitempty"`
	NewDimensions *TargetDimensions    `json:"new_dimensions,omitempty"`
}

// ValidateScale checks requested absolute dimensions against the job's
// base dimensions and the printability bounds. Pure read; no mutation.
func (s *ExportService) ValidateScale(ctx context.Context, id uuid.UUID, target TargetDimensions) (*ScaleValidation, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Dimensions == nil {
		return nil, fmt.Errorf("%w: dimensions not measured yet", ErrNotReady)
	}
	base := job.Dimensions

	invalid := func(reason string) *ScaleValidation {
		return &ScaleValidation{Valid: false, Reason: reason, BaseDims: base}
	}

	if target.XMM <= 0 || target.YMM <= 0 || target.ZMM <= 0 {
		return invalid("dimensions must be positive"), nil
	}

	scale := entity.ScaleFactors{
		X: round4(target.XMM / base.XMM),
		Y: round4(target.YMM / base.YMM),
		Z: round4(target.ZMM / base.ZMM),
	}
	result := &ScaleValidation{
		Scale:    &scale,
		BaseDims: base,
		NewDimensions: &TargetDimensions{
			XMM: round2(base.XMM * scale.X),
			YMM: round2(base.YMM * scale.Y),
			ZMM: round2(base.ZMM * scale.Z),
		},
	}

	for _, f := range []float64{scale.X, scale.Y, scale.Z} {
		if f < s.bounds.MinScale || f > s.bounds.MaxScale {
			result.Reason = fmt.Sprintf("scale factor %.4g outside allowed range [%g, %g]",
				f, s.bounds.MinScale, s.bounds.MaxScale)
			return result, nil
		}
	}
	if min3(target.XMM, target.YMM, target.ZMM) < s.bounds.MinWallThicknessMM {
		result.Reason = fmt.Sprintf("smallest dimension below minimum wall thickness %.1fmm",
			s.bounds.MinWallThicknessMM)
		return result, nil
	}
	if max3(target.XMM, target.YMM, target.ZMM) > s.bounds.MaxBuildVolumeMM {
		result.Reason = fmt.Sprintf("largest dimension exceeds build volume %.0fmm",
			s.bounds.MaxBuildVolumeMM)
		return result, nil
	}

	result.Valid = true
	return result, nil
}

// ExportResult points the client at the scaled artifact.
type ExportResult struct {
	STLRef           string
	OBJRef           string
	Scale            entity.ScaleFactors
	ScaledDimensions entity.Dimensions
}

// ExportScaled applies a per-axis scale to the repaired mesh and writes
// the scaled STL/OBJ artifacts. Only valid once the job is done; it never
// mutates base dimensions, status or stage — scaled dimensions are
// recomputed from the base measurement, not re-measured.
func (s *ExportService) ExportScaled(ctx context.Context, id uuid.UUID, scale entity.ScaleFactors) (*ExportResult, error) {
	if scale.X <= 0 || scale.Y <= 0 || scale.Z <= 0 {
		return nil, fmt.Errorf("%w: factors must be positive", ErrInvalidScale)
	}
	for _, f := range []float64{scale.X, scale.Y, scale.Z} {
		if f < s.bounds.MinScale || f > s.bounds.MaxScale {
			return nil, fmt.Errorf("%w: factor %.4g outside allowed range [%g, %g]",
				ErrInvalidScale, f, s.bounds.MinScale, s.bounds.MaxScale)
		}
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.StatusDone {
		return nil, fmt.Errorf("%w: job status is %s", ErrNotReady, job.Status)
	}
	if job.Dimensions == nil {
		return nil, fmt.Errorf("%w: dimensions missing", ErrNotReady)
	}
	ref, ok := job.Artifacts[entity.ArtifactMeshRepaired]
	if !ok {
		return nil, fmt.Errorf("repaired mesh artifact missing for job %s", id)
	}

	rc, err := s.store.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("open repaired mesh: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	m, err := mesh.DecodeSTL(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode repaired mesh: %w", err)
	}

	m.ApplyScale(scale.X, scale.Y, scale.Z)

	var stlBuf bytes.Buffer
	if err := mesh.EncodeSTL(&stlBuf, m); err != nil {
		return nil, fmt.Errorf("encode scaled stl: %w", err)
	}
	stlRef, err := s.store.Put(ctx, id.String(), entity.ArtifactSTLScaled, bytes.NewReader(stlBuf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("store scaled stl: %w", err)
	}

	var objBuf bytes.Buffer
	if err := mesh.EncodeOBJ(&objBuf, m); err != nil {
		return nil, fmt.Errorf("encode scaled obj: %w", err)
	}
	objRef, err := s.store.Put(ctx, id.String(), entity.ArtifactOBJScaled, bytes.NewReader(objBuf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("store scaled obj: %w", err)
	}

	artifacts := map[string]string{
		entity.ArtifactSTLScaled: stlRef,
		entity.ArtifactOBJScaled: objRef,
	}
	if err := s.repo.SetUserScale(ctx, id, scale, artifacts); err != nil {
		return nil, fmt.Errorf("record user scale: %w", err)
	}

	base := job.Dimensions
	scaled := entity.Dimensions{
		XMM:        round2(base.XMM * scale.X),
		YMM:        round2(base.YMM * scale.Y),
		ZMM:        round2(base.ZMM * scale.Z),
		VolumeMM3:  round2(base.VolumeMM3 * scale.X * scale.Y * scale.Z),
		Watertight: base.Watertight,
		Manifold:   base.Manifold,
	}

	s.log.Info("scaled export written",
		zap.String("job_id", id.String()),
		zap.Float64("sx", scale.X), zap.Float64("sy", scale.Y), zap.Float64("sz", scale.Z),
	)

	return &ExportResult{
		STLRef:           stlRef,
		OBJRef:           objRef,
		Scale:            scale,
		ScaledDimensions: scaled,
	}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }
