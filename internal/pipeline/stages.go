// Package pipeline defines the fixed stage sequence of the image-to-mesh
// pipeline and the orchestrator that drives jobs through it.
package pipeline

import (
	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/service"
)

// StageDef binds a stage to the worker lane that may run it and to its
// share of overall progress.
type StageDef struct {
	Stage entity.Stage
	Lane  string
	// Weight is the stage's share of overall progress. Weights reflect
	// relative wall-clock cost and sum to 100 across the sequence.
	Weight int
}

// Sequence is the total order of pipeline stages. Reconstruction is the
// only GPU stage and carries the largest weight; neural inference
// dominates wall-clock time.
var Sequence = []StageDef{
	{Stage: entity.StagePreprocessing, Lane: service.LaneCPU, Weight: 10},
	{Stage: entity.StageReconstructing3D, Lane: service.LaneGPU, Weight: 40},
	{Stage: entity.StageRenderingPreviews, Lane: service.LaneCPU, Weight: 15},
	{Stage: entity.StageMeshRepairing, Lane: service.LaneCPU, Weight: 15},
	{Stage: entity.StageExportingSTL, Lane: service.LaneCPU, Weight: 20},
}

func First() StageDef { return Sequence[0] }

// Lookup returns the definition for a stage.
func Lookup(s entity.Stage) (StageDef, bool) {
	for _, def := range Sequence {
		if def.Stage == s {
			return def, true
		}
	}
	return StageDef{}, false
}

// Next returns the stage after s, or ok=false if s is the last stage.
func Next(s entity.Stage) (StageDef, bool) {
	for i, def := range Sequence {
		if def.Stage == s {
			if i+1 < len(Sequence) {
				return Sequence[i+1], true
			}
			return StageDef{}, false
		}
	}
	return StageDef{}, false
}

// Base returns the overall progress at the start of a stage: the summed
// weights of all stages before it.
func Base(s entity.Stage) int {
	base := 0
	for _, def := range Sequence {
		if def.Stage == s {
			return base
		}
		base += def.Weight
	}
	return base
}

// Overall maps a stage's own 0-100 completion fraction into overall job
// progress. The result stays within the stage's weight slice, so progress
// is non-decreasing across stage boundaries.
func Overall(s entity.Stage, frac int) int {
	def, ok := Lookup(s)
	if !ok {
		return 0
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 100 {
		frac = 100
	}
	return Base(s) + def.Weight*frac/100
}
