package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary STL layout: 80-byte header, uint32 triangle count, then per
// triangle a float32 normal, three float32 vertices and a uint16 attribute.
// Binary is preferred over ASCII for size; slicers accept both.

const stlHeaderSize = 80

// EncodeSTL writes m as binary STL.
func EncodeSTL(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)

	var header [stlHeaderSize]byte
	copy(header[:], "binary stl")
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Faces))); err != nil {
		return err
	}

	var tri [50]byte // 12 floats + attribute count
	for i, f := range m.Faces {
		n := m.FaceNormal(i)
		if l := n.Length(); l > 0 {
			n = Vec3{n[0] / l, n[1] / l, n[2] / l}
		}
		off := 0
		putVec := func(v Vec3) {
			for a := 0; a < 3; a++ {
				binary.LittleEndian.PutUint32(tri[off:], math.Float32bits(float32(v[a])))
				off += 4
			}
		}
		putVec(n)
		putVec(m.Vertices[f[0]])
		putVec(m.Vertices[f[1]])
		putVec(m.Vertices[f[2]])
		binary.LittleEndian.PutUint16(tri[off:], 0)
		if _, err := bw.Write(tri[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeSTL reads a binary STL stream and rebuilds an indexed mesh,
// welding positionally identical vertices so topology checks work on the
// result.
func DecodeSTL(r io.Reader) (*Mesh, error) {
	br := bufio.NewReader(r)

	var header [stlHeaderSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("stl header: %w", err)
	}

	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("stl triangle count: %w", err)
	}

	m := &Mesh{
		Vertices: make([]Vec3, 0, count*2),
		Faces:    make([][3]uint32, 0, count),
	}
	index := make(map[[3]float32]uint32, count*2)

	var tri [50]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, tri[:]); err != nil {
			return nil, fmt.Errorf("stl triangle %d: %w", i, err)
		}
		var face [3]uint32
		for v := 0; v < 3; v++ {
			off := 12 + v*12 // skip normal
			var key [3]float32
			for a := 0; a < 3; a++ {
				key[a] = math.Float32frombits(binary.LittleEndian.Uint32(tri[off+a*4:]))
			}
			idx, ok := index[key]
			if !ok {
				idx = uint32(len(m.Vertices))
				index[key] = idx
				m.Vertices = append(m.Vertices, Vec3{
					float64(key[0]), float64(key[1]), float64(key[2]),
				})
			}
			face[v] = idx
		}
		m.Faces = append(m.Faces, face)
	}
	return m, nil
}
