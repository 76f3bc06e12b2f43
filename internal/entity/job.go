package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusUploaded          JobStatus = "uploaded"
	StatusPreprocessing     JobStatus = "preprocessing"
	StatusReconstructing3D  JobStatus = "reconstructing_3d"
	StatusRenderingPreviews JobStatus = "rendering_previews"
	StatusMeshRepairing     JobStatus = "mesh_repairing"
	StatusExportingSTL      JobStatus = "exporting_stl"
	StatusDone              JobStatus = "done"
	StatusError             JobStatus = "error"
)

// Terminal reports whether no further pipeline writes may happen for a job.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Stage is one unit of pipeline work. Unlike JobStatus it never takes the
// values done/error: it always names the current or most recent stage.
type Stage string

const (
	StagePreprocessing     Stage = "preprocessing"
	StageReconstructing3D  Stage = "reconstructing_3d"
	StageRenderingPreviews Stage = "rendering_previews"
	StageMeshRepairing     Stage = "mesh_repairing"
	StageExportingSTL      Stage = "exporting_stl"
)

// Artifact names. Populated incrementally as stages complete; the keys are
// also the blob-store asset names within the job's prefix.
const (
	ArtifactPreprocessed = "preprocessed"
	ArtifactPreview0     = "preview_0"
	ArtifactPreview1     = "preview_1"
	ArtifactPreview2     = "preview_2"
	ArtifactPreview3     = "preview_3"
	ArtifactMeshGLB      = "mesh_glb"
	ArtifactMeshRaw      = "mesh_raw"
	ArtifactMeshRepaired = "mesh_repaired"
	ArtifactMeshSTL      = "mesh_stl"
	ArtifactMeshOBJ      = "mesh_obj"
	ArtifactSTLScaled    = "mesh_stl_scaled"
	ArtifactOBJScaled    = "mesh_obj_scaled"
)

// Dimensions is the measured size of the reconstructed mesh in millimeters.
// Set once after reconstruction and immutable thereafter; user scaling is
// applied on top of it at export time, never written back.
type Dimensions struct {
	XMM        float64 `json:"x_mm"`
	YMM        float64 `json:"y_mm"`
	ZMM        float64 `json:"z_mm"`
	VolumeMM3  float64 `json:"volume_mm3"`
	Watertight bool    `json:"watertight"`
	Manifold   bool    `json:"manifold"`
}

// ScaleFactors is a per-axis multiplier chosen by the client.
type ScaleFactors struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func IdentityScale() ScaleFactors { return ScaleFactors{X: 1, Y: 1, Z: 1} }

// UploadOptions are client knobs captured at upload time and passed through
// to the stage implementations.
type UploadOptions struct {
	RemoveBackground bool `json:"remove_bg"`
	EnhancedDetail   bool `json:"enhanced_detail"`
}

type Job struct {
	ID           uuid.UUID         `json:"id"`
	Status       JobStatus         `json:"status"`
	Stage        Stage             `json:"stage,omitempty"`
	Progress     int               `json:"progress"`
	InputRef     string            `json:"input_ref"`
	Options      UploadOptions     `json:"options"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	Dimensions   *Dimensions       `json:"dimensions,omitempty"`
	UserScale    ScaleFactors      `json:"user_scale"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
