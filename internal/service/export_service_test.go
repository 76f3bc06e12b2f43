package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/mesh"
	"mesh-pipeline-service/internal/repository/postgresql"
)

func testBounds() PrintabilityBounds {
	return PrintabilityBounds{
		MinWallThicknessMM: 1.2,
		MaxBuildVolumeMM:   256,
		MinScale:           0.5,
		MaxScale:           5.0,
	}
}

func doneJob(dims *entity.Dimensions) *entity.Job {
	return &entity.Job{
		ID:         uuid.New(),
		Status:     entity.StatusDone,
		Stage:      entity.StageExportingSTL,
		Progress:   100,
		Dimensions: dims,
		UserScale:  entity.IdentityScale(),
		Artifacts:  map[string]string{},
	}
}

func TestValidateScaleAccepts(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 45.2, YMM: 30, ZMM: 22.6, VolumeMM3: 301.35})
	repo := newFakeRepo(job)
	svc := NewExportService(repo, newMemStore(), testBounds(), zap.NewNop())

	got, err := svc.ValidateScale(context.Background(), job.ID,
		TargetDimensions{XMM: 90.4, YMM: 60, ZMM: 45.2})
	require.NoError(t, err)

	assert.True(t, got.Valid)
	assert.Empty(t, got.Reason)
	require.NotNil(t, got.Scale)
	assert.InDelta(t, 2.0, got.Scale.X, 1e-9)
	assert.InDelta(t, 2.0, got.Scale.Y, 1e-9)
	assert.InDelta(t, 2.0, got.Scale.Z, 1e-9)
	require.NotNil(t, got.NewDimensions)
	assert.InDelta(t, 90.4, got.NewDimensions.XMM, 1e-9)
	assert.InDelta(t, 60, got.NewDimensions.YMM, 1e-9)
	assert.InDelta(t, 45.2, got.NewDimensions.ZMM, 1e-9)
}

func TestValidateScaleRejectsNonPositive(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 45.2, YMM: 30, ZMM: 22.6})
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	got, err := svc.ValidateScale(context.Background(), job.ID,
		TargetDimensions{XMM: 0, YMM: 60, ZMM: 45.2})
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Contains(t, got.Reason, "positive")
}

func TestValidateScaleRejectsOutOfRangeFactor(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 45.2, YMM: 30, ZMM: 22.6})
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	got, err := svc.ValidateScale(context.Background(), job.ID,
		TargetDimensions{XMM: 271.2, YMM: 30, ZMM: 22.6}) // 6x on X
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Contains(t, got.Reason, "range")
	// scale and projected dimensions are still reported
	require.NotNil(t, got.Scale)
	assert.InDelta(t, 6.0, got.Scale.X, 1e-9)
}

func TestValidateScaleRejectsTooThin(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 2, YMM: 30, ZMM: 22.6})
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	got, err := svc.ValidateScale(context.Background(), job.ID,
		TargetDimensions{XMM: 1.1, YMM: 30, ZMM: 22.6})
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Contains(t, got.Reason, "wall thickness")
}

func TestValidateScaleRejectsBuildVolume(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 60, YMM: 30, ZMM: 22.6})
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	got, err := svc.ValidateScale(context.Background(), job.ID,
		TargetDimensions{XMM: 270, YMM: 30, ZMM: 22.6})
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Contains(t, got.Reason, "build volume")
}

func TestValidateScaleRequiresMeasuredJob(t *testing.T) {
	job := doneJob(nil)
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	_, err := svc.ValidateScale(context.Background(), job.ID,
		TargetDimensions{XMM: 10, YMM: 10, ZMM: 10})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestValidateScaleUnknownJob(t *testing.T) {
	svc := NewExportService(newFakeRepo(), newMemStore(), testBounds(), zap.NewNop())

	_, err := svc.ValidateScale(context.Background(), uuid.New(),
		TargetDimensions{XMM: 10, YMM: 10, ZMM: 10})
	assert.ErrorIs(t, err, postgresql.ErrNotFound)
}

func TestExportScaled(t *testing.T) {
	job := doneJob(&entity.Dimensions{
		XMM: 10, YMM: 20, ZMM: 30, VolumeMM3: 6000,
		Watertight: true, Manifold: true,
	})
	repo := newFakeRepo(job)
	store := newMemStore()

	var buf bytes.Buffer
	require.NoError(t, mesh.EncodeSTL(&buf, mesh.Box(10, 20, 30)))
	ref, err := store.Put(context.Background(), job.ID.String(), entity.ArtifactMeshRepaired, &buf)
	require.NoError(t, err)
	job.Artifacts[entity.ArtifactMeshRepaired] = ref

	svc := NewExportService(repo, store, testBounds(), zap.NewNop())

	got, err := svc.ExportScaled(context.Background(), job.ID, entity.ScaleFactors{X: 2, Y: 1, Z: 1})
	require.NoError(t, err)

	assert.InDelta(t, 20, got.ScaledDimensions.XMM, 1e-9)
	assert.InDelta(t, 20, got.ScaledDimensions.YMM, 1e-9)
	assert.InDelta(t, 30, got.ScaledDimensions.ZMM, 1e-9)
	assert.InDelta(t, 12000, got.ScaledDimensions.VolumeMM3, 1e-9)
	assert.True(t, got.ScaledDimensions.Watertight)

	// scaled artifacts are stored and recorded on the job
	stored := repo.jobs[job.ID]
	assert.Equal(t, got.STLRef, stored.Artifacts[entity.ArtifactSTLScaled])
	assert.Equal(t, got.OBJRef, stored.Artifacts[entity.ArtifactOBJScaled])
	assert.InDelta(t, 2, stored.UserScale.X, 1e-9)

	// base dimensions stay untouched
	assert.InDelta(t, 10, stored.Dimensions.XMM, 1e-9)

	// the stored STL really is scaled
	rc, err := store.Open(context.Background(), got.STLRef)
	require.NoError(t, err)
	defer rc.Close()
	scaled, err := mesh.DecodeSTL(rc)
	require.NoError(t, err)
	a := scaled.Measure()
	assert.InDelta(t, 20, a.XMM, 1e-6)
	assert.InDelta(t, 12000, a.VolumeMM3, 1e-3)
}

func TestExportScaledIdentityRoundTrip(t *testing.T) {
	job := doneJob(&entity.Dimensions{
		XMM: 45.2, YMM: 30, ZMM: 12.5, VolumeMM3: 1205.4, Watertight: true,
	})
	store := newMemStore()

	var buf bytes.Buffer
	require.NoError(t, mesh.EncodeSTL(&buf, mesh.Box(45.2, 30, 12.5)))
	ref, err := store.Put(context.Background(), job.ID.String(), entity.ArtifactMeshRepaired, &buf)
	require.NoError(t, err)
	job.Artifacts[entity.ArtifactMeshRepaired] = ref

	svc := NewExportService(newFakeRepo(job), store, testBounds(), zap.NewNop())

	got, err := svc.ExportScaled(context.Background(), job.ID, entity.IdentityScale())
	require.NoError(t, err)
	assert.Equal(t, *job.Dimensions, got.ScaledDimensions)
}

func TestExportScaledRecomputesFromBase(t *testing.T) {
	job := doneJob(&entity.Dimensions{
		XMM: 45.2, YMM: 30, ZMM: 12.5, VolumeMM3: 1205.4, Watertight: true,
	})
	store := newMemStore()

	var buf bytes.Buffer
	require.NoError(t, mesh.EncodeSTL(&buf, mesh.Box(45.2, 30, 12.5)))
	ref, err := store.Put(context.Background(), job.ID.String(), entity.ArtifactMeshRepaired, &buf)
	require.NoError(t, err)
	job.Artifacts[entity.ArtifactMeshRepaired] = ref

	svc := NewExportService(newFakeRepo(job), store, testBounds(), zap.NewNop())

	got, err := svc.ExportScaled(context.Background(), job.ID, entity.ScaleFactors{X: 2, Y: 1, Z: 1})
	require.NoError(t, err)
	assert.InDelta(t, 90.4, got.ScaledDimensions.XMM, 1e-9)
	assert.InDelta(t, 30, got.ScaledDimensions.YMM, 1e-9)
	assert.InDelta(t, 12.5, got.ScaledDimensions.ZMM, 1e-9)
	assert.InDelta(t, 2410.8, got.ScaledDimensions.VolumeMM3, 1e-9)
}

func TestExportScaledRejectsBadFactors(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 10, YMM: 10, ZMM: 10})
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	_, err := svc.ExportScaled(context.Background(), job.ID, entity.ScaleFactors{X: 0, Y: 1, Z: 1})
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = svc.ExportScaled(context.Background(), job.ID, entity.ScaleFactors{X: 6, Y: 1, Z: 1})
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = svc.ExportScaled(context.Background(), job.ID, entity.ScaleFactors{X: 0.25, Y: 1, Z: 1})
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestExportScaledRequiresFinishedJob(t *testing.T) {
	job := doneJob(&entity.Dimensions{XMM: 10, YMM: 10, ZMM: 10})
	job.Status = entity.StatusMeshRepairing
	svc := NewExportService(newFakeRepo(job), newMemStore(), testBounds(), zap.NewNop())

	_, err := svc.ExportScaled(context.Background(), job.ID, entity.ScaleFactors{X: 2, Y: 2, Z: 2})
	assert.ErrorIs(t, err, ErrNotReady)
}
