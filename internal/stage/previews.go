package stage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"go.uber.org/zap"

	"mesh-pipeline-service/internal/entity"
	"mesh-pipeline-service/internal/mesh"
	"mesh-pipeline-service/internal/pipeline"
	"mesh-pipeline-service/internal/storage"
)

var previewAzimuths = []float64{0, 90, 180, 270}

const previewSize = 512

// PreviewRenderer rasterizes the reconstructed mesh from four azimuths so
// the client can show turntable previews before the exports exist.
type PreviewRenderer struct {
	store storage.Store
	log   *zap.Logger
}

func (p *PreviewRenderer) Run(ctx context.Context, job *entity.Job, report pipeline.ProgressFunc) (*pipeline.StageResult, error) {
	report(0)

	ref, err := artifactRef(job, entity.ArtifactMeshRaw)
	if err != nil {
		return nil, err
	}
	data, err := readBlob(ctx, p.store, ref)
	if err != nil {
		return nil, fmt.Errorf("read mesh: %w", err)
	}
	m, err := mesh.DecodeSTL(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mesh: %w", err)
	}
	report(20)

	names := []string{
		entity.ArtifactPreview0, entity.ArtifactPreview1,
		entity.ArtifactPreview2, entity.ArtifactPreview3,
	}
	artifacts := make(map[string]string, len(names))

	for i, azimuth := range previewAzimuths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img := renderOrtho(m, azimuth, previewSize)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode preview %d: %w", i, err)
		}
		pref, err := putBlob(ctx, p.store, job.ID.String(), names[i], buf.Bytes())
		if err != nil {
			return nil, err
		}
		artifacts[names[i]] = pref

		report(20 + (i+1)*20)
	}

	p.log.Info("previews rendered",
		zap.String("job_id", job.ID.String()), zap.Int("count", len(names)))

	return &pipeline.StageResult{Artifacts: artifacts}, nil
}

// renderOrtho draws a flat-shaded orthographic view of the mesh rotated
// about the z axis, with a z-buffer so overlapping faces resolve.
func renderOrtho(m *mesh.Mesh, azimuthDeg float64, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0xFF // white background, opaque
	}

	if len(m.Faces) == 0 {
		return img
	}

	rad := azimuthDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	// rotate about z, then view along -y: screen x = rotated x,
	// screen y = -z, depth = rotated y
	proj := make([][3]float64, len(m.Vertices))
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, v := range m.Vertices {
		rx := v[0]*cos - v[1]*sin
		ry := v[0]*sin + v[1]*cos
		proj[i] = [3]float64{rx, -v[2], ry}
		minX, maxX = math.Min(minX, rx), math.Max(maxX, rx)
		minY, maxY = math.Min(minY, -v[2]), math.Max(maxY, -v[2])
	}

	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	scale := float64(size) * 0.8 / span
	offX := (float64(size) - (maxX-minX)*scale) / 2
	offY := (float64(size) - (maxY-minY)*scale) / 2

	depth := make([]float64, size*size)
	for i := range depth {
		depth[i] = math.Inf(1)
	}

	light := [3]float64{0.3, -0.8, 0.52}
	for fi, f := range m.Faces {
		a, b, c := proj[f[0]], proj[f[1]], proj[f[2]]

		ax := (a[0]-minX)*scale + offX
		ay := (a[1]-minY)*scale + offY
		bx := (b[0]-minX)*scale + offX
		by := (b[1]-minY)*scale + offY
		cx := (c[0]-minX)*scale + offX
		cy := (c[1]-minY)*scale + offY

		n := m.FaceNormal(fi)
		if l := n.Length(); l > 0 {
			n = mesh.Vec3{n[0] / l, n[1] / l, n[2] / l}
		}
		// rotate the normal with the mesh
		nx := n[0]*cos - n[1]*sin
		ny := n[0]*sin + n[1]*cos
		lambert := nx*light[0] + ny*light[1] + n[2]*light[2]
		if lambert < 0 {
			lambert = -lambert
		}
		shade := uint8(60 + 180*lambert)

		fillTriangle(img, depth, size, ax, ay, a[2], bx, by, b[2], cx, cy, c[2], shade)
	}
	return img
}

func fillTriangle(img *image.NRGBA, depth []float64, size int,
	ax, ay, az, bx, by, bz, cx, cy, cz float64, shade uint8) {

	minX := int(math.Max(0, math.Floor(math.Min(ax, math.Min(bx, cx)))))
	maxX := int(math.Min(float64(size-1), math.Ceil(math.Max(ax, math.Max(bx, cx)))))
	minY := int(math.Max(0, math.Floor(math.Min(ay, math.Min(by, cy)))))
	maxY := int(math.Min(float64(size-1), math.Ceil(math.Max(ay, math.Max(by, cy)))))

	area := (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
	if area == 0 {
		return
	}

	col := color.NRGBA{R: shade, G: shade, B: shade, A: 0xFF}
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			l0 := ((by-cy)*(px-cx) + (cx-bx)*(py-cy)) / area
			l1 := ((cy-ay)*(px-cx) + (ax-cx)*(py-cy)) / area
			l2 := 1 - l0 - l1
			if l0 < 0 || l1 < 0 || l2 < 0 {
				continue
			}
			z := l0*az + l1*bz + l2*cz
			idx := y*size + x
			if z < depth[idx] {
				depth[idx] = z
				img.SetNRGBA(x, y, col)
			}
		}
	}
}
