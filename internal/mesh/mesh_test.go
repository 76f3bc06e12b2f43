package mesh

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureBox(t *testing.T) {
	m := Box(10, 20, 30)
	a := m.Measure()

	assert.InDelta(t, 10, a.XMM, 1e-9)
	assert.InDelta(t, 20, a.YMM, 1e-9)
	assert.InDelta(t, 30, a.ZMM, 1e-9)
	assert.InDelta(t, 6000, a.VolumeMM3, 1e-9)
	assert.InDelta(t, 2200, a.SurfaceArea, 1e-9)
	assert.True(t, a.Watertight)
	assert.True(t, a.Manifold)
	assert.Equal(t, 8, a.Vertices)
	assert.Equal(t, 12, a.Faces)
}

func TestMeasureOpenSurfaceHasNoVolume(t *testing.T) {
	m := Box(10, 10, 10)
	m.Faces = m.Faces[:len(m.Faces)-2] // remove one side

	a := m.Measure()
	assert.False(t, a.Watertight)
	assert.False(t, a.Manifold)
	assert.Zero(t, a.VolumeMM3)
}

func TestApplyScale(t *testing.T) {
	m := Box(10, 10, 10)
	m.ApplyScale(2, 0.5, 1)

	a := m.Measure()
	assert.InDelta(t, 20, a.XMM, 1e-9)
	assert.InDelta(t, 5, a.YMM, 1e-9)
	assert.InDelta(t, 10, a.ZMM, 1e-9)
	// volume scales by the product of the factors
	assert.InDelta(t, 1000, a.VolumeMM3, 1e-9)
}

func TestEllipsoidWatertight(t *testing.T) {
	m := Ellipsoid(10, 15, 20, 24, 16)
	require.NoError(t, m.Validate())

	a := m.Measure()
	assert.True(t, a.Watertight)
	assert.True(t, a.Manifold)
	assert.InDelta(t, 20, a.XMM, 1e-9)
	assert.InDelta(t, 30, a.YMM, 1e-9)
	assert.InDelta(t, 40, a.ZMM, 1e-9)

	// the faceted volume approaches 4/3*pi*rx*ry*rz from below
	exact := 4.0 / 3.0 * 3.14159265358979 * 10 * 15 * 20
	assert.Less(t, a.VolumeMM3, exact)
	assert.Greater(t, a.VolumeMM3, exact*0.9)
}

func TestSTLRoundTrip(t *testing.T) {
	src := Box(10, 20, 30)

	var buf bytes.Buffer
	require.NoError(t, EncodeSTL(&buf, src))

	// 80-byte header + count + 12 triangles of 50 bytes
	require.Equal(t, 80+4+12*50, buf.Len())
	count := binary.LittleEndian.Uint32(buf.Bytes()[80:84])
	require.Equal(t, uint32(12), count)

	got, err := DecodeSTL(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	// decoding welds the exploded triangles back into 8 shared vertices
	assert.Len(t, got.Vertices, 8)
	assert.Len(t, got.Faces, 12)

	a := got.Measure()
	assert.True(t, a.Watertight)
	assert.InDelta(t, 6000, a.VolumeMM3, 1e-6)
}

func TestDecodeSTLTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSTL(&buf, Box(1, 1, 1)))

	_, err := DecodeSTL(bytes.NewReader(buf.Bytes()[:buf.Len()-10]))
	assert.Error(t, err)
}

func TestEncodeOBJ(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeOBJ(&buf, Box(10, 10, 10)))

	out := buf.String()
	assert.Equal(t, 8, strings.Count(out, "\nv "), "vertex lines")
	assert.Equal(t, 12, strings.Count(out, "\nf "), "face lines")
	// 1-based indexing
	assert.NotContains(t, out, " 0//")
}

func TestEncodeGLB(t *testing.T) {
	m := Box(10, 10, 10)

	var buf bytes.Buffer
	require.NoError(t, EncodeGLB(&buf, m))

	b := buf.Bytes()
	require.GreaterOrEqual(t, len(b), 12)
	assert.Equal(t, uint32(0x46546C67), binary.LittleEndian.Uint32(b[0:4]), "glTF magic")
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[4:8]), "container version")
	assert.Equal(t, uint32(len(b)), binary.LittleEndian.Uint32(b[8:12]), "declared total length")

	jsonLen := binary.LittleEndian.Uint32(b[12:16])
	assert.Equal(t, uint32(0x4E4F534A), binary.LittleEndian.Uint32(b[16:20]), "JSON chunk tag")
	assert.Contains(t, string(b[20:20+jsonLen]), `"POSITION"`)
}

func TestRepairWeldsAndDropsDegenerate(t *testing.T) {
	// two triangles sharing an edge, but written with duplicated vertices,
	// plus one degenerate sliver and one orphan vertex
	m := &Mesh{
		Vertices: []Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
			{1, 0, 0}, {1, 1, 0}, {0, 1, 0}, // duplicates of 1 and 2
			{5, 5, 5}, // unused
		},
		Faces: [][3]uint32{
			{0, 1, 2},
			{3, 4, 5},
			{0, 1, 1}, // degenerate
		},
	}

	out := Repair(m)
	require.NoError(t, out.Validate())

	assert.Len(t, out.Vertices, 4)
	assert.Len(t, out.Faces, 2)
}

func TestRepairDropsZeroAreaFace(t *testing.T) {
	m := &Mesh{
		Vertices: []Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}},
		Faces:    [][3]uint32{{0, 1, 2}}, // collinear
	}

	out := Repair(m)
	assert.Empty(t, out.Faces)
	assert.Empty(t, out.Vertices)
}

func TestCloneIsIndependent(t *testing.T) {
	src := Box(10, 10, 10)
	c := src.Clone()
	c.ApplyScale(2, 2, 2)

	a := src.Measure()
	assert.InDelta(t, 10, a.XMM, 1e-9)
}

func TestValidateRejectsOutOfRangeIndex(t *testing.T) {
	m := &Mesh{
		Vertices: []Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:    [][3]uint32{{0, 1, 3}},
	}
	assert.Error(t, m.Validate())
}
