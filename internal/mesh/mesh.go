// Package mesh holds the triangle-mesh type shared by the pipeline stages
// and the scale/export engine, together with measurement, scaling and the
// STL/OBJ/GLB codecs.
package mesh

import (
	"fmt"
	"math"
)

type Vec3 [3]float64

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Mesh is an indexed triangle mesh. Units are millimeters throughout the
// pipeline.
type Mesh struct {
	Vertices []Vec3
	Faces    [][3]uint32
}

func (m *Mesh) Validate() error {
	n := uint32(len(m.Vertices))
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx >= n {
				return fmt.Errorf("face %d references vertex %d of %d", i, idx, n)
			}
		}
	}
	return nil
}

// ApplyScale multiplies vertex positions by a per-axis factor in place.
func (m *Mesh) ApplyScale(sx, sy, sz float64) {
	for i := range m.Vertices {
		m.Vertices[i][0] *= sx
		m.Vertices[i][1] *= sy
		m.Vertices[i][2] *= sz
	}
}

// Clone returns a deep copy. Scaled exports must not mutate the stored mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices: make([]Vec3, len(m.Vertices)),
		Faces:    make([][3]uint32, len(m.Faces)),
	}
	copy(c.Vertices, m.Vertices)
	copy(c.Faces, m.Faces)
	return c
}

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() (min, max Vec3) {
	if len(m.Vertices) == 0 {
		return Vec3{}, Vec3{}
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for a := 0; a < 3; a++ {
			if v[a] < min[a] {
				min[a] = v[a]
			}
			if v[a] > max[a] {
				max[a] = v[a]
			}
		}
	}
	return min, max
}

// FaceNormal returns the (unnormalized) normal of face i.
func (m *Mesh) FaceNormal(i int) Vec3 {
	f := m.Faces[i]
	a := m.Vertices[f[0]]
	b := m.Vertices[f[1]]
	c := m.Vertices[f[2]]
	return b.Sub(a).Cross(c.Sub(a))
}

// SurfaceArea sums triangle areas.
func (m *Mesh) SurfaceArea() float64 {
	var area float64
	for i := range m.Faces {
		area += m.FaceNormal(i).Length() / 2
	}
	return area
}

// signedVolume computes the enclosed volume via signed tetrahedra against
// the origin. Only meaningful for a closed, consistently wound surface.
func (m *Mesh) signedVolume() float64 {
	var vol float64
	for _, f := range m.Faces {
		a := m.Vertices[f[0]]
		b := m.Vertices[f[1]]
		c := m.Vertices[f[2]]
		vol += a.Dot(b.Cross(c)) / 6
	}
	return vol
}
