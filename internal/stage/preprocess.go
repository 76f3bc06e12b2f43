package stage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	_ "image/jpeg" // uploaded images may be jpeg

	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/storage"
)

// Preprocessor prepares the uploaded image for reconstruction. With
// remove_bg set it runs background matting; the matting model here is a
// luminance-threshold placeholder standing in for the real segmentation
// service.
type Preprocessor struct {
	store storage.Store
	log   *zap.Logger
}

func (p *Preprocessor) Run(ctx context.Context, job *entity.Job, report pipeline.ProgressFunc) (*pipeline.StageResult, error) {
	report(0)

	data, err := readBlob(ctx, p.store, job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("read input image: %w", err)
	}
	report(30)

	out := data
	if job.Options.RemoveBackground {
		if processed, err := removeBackground(data); err != nil {
			// Non-decodable formats pass through untouched; the
			// reconstructor works on raw bytes either way.
			p.log.Warn("background removal skipped",
				zap.String("job_id", job.ID.String()), zap.Error(err))
		} else {
			out = processed
		}
	}
	report(70)

	ref, err := putBlob(ctx, p.store, job.ID.String(), entity.ArtifactPreprocessed, out)
	if err != nil {
		return nil, err
	}
	report(100)

	return &pipeline.StageResult{
		Artifacts: map[string]string{entity.ArtifactPreprocessed: ref},
	}, nil
}

// removeBackground makes near-white pixels transparent and re-encodes as
// PNG.
func removeBackground(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if r>>8 > 240 && g>>8 > 240 && bl>>8 > 240 {
				out.Set(x, y, color.NRGBA{})
				continue
			}
			out.Set(x, y, color.RGBA64{
				R: uint16(r), G: uint16(g), B: uint16(bl), A: uint16(a),
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
