package mesh

import "math"

// Analysis is what the repair and export stages report about a mesh.
// Volume follows trimesh semantics: 0 when the surface is not watertight,
// since an open surface does not enclose a volume.
type Analysis struct {
	XMM         float64
	YMM         float64
	ZMM         float64
	VolumeMM3   float64
	SurfaceArea float64
	Watertight  bool
	Manifold    bool
	Vertices    int
	Faces       int
}

type edgeKey struct{ lo, hi uint32 }

func undirected(a, b uint32) edgeKey {
	if a < b {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// topology counts directed and undirected edge usage in one pass.
//
// Manifold: every undirected edge is shared by exactly two faces.
// Watertight: manifold and every directed edge appears exactly once,
// i.e. the two faces at each edge are consistently wound.
func (m *Mesh) topology() (watertight, manifold bool) {
	if len(m.Faces) == 0 {
		return false, false
	}

	undirectedCount := make(map[edgeKey]int, len(m.Faces)*3/2)
	directedCount := make(map[[2]uint32]int, len(m.Faces)*3)

	for _, f := range m.Faces {
		for e := 0; e < 3; e++ {
			a, b := f[e], f[(e+1)%3]
			if a == b {
				return false, false // degenerate edge
			}
			undirectedCount[undirected(a, b)]++
			directedCount[[2]uint32{a, b}]++
		}
	}

	manifold = true
	for _, n := range undirectedCount {
		if n != 2 {
			manifold = false
			break
		}
	}

	watertight = manifold
	if watertight {
		for _, n := range directedCount {
			if n != 1 {
				watertight = false
				break
			}
		}
	}
	return watertight, manifold
}

// Measure computes the full analysis of a mesh.
func (m *Mesh) Measure() Analysis {
	min, max := m.Bounds()
	watertight, manifold := m.topology()

	var volume float64
	if watertight {
		volume = math.Abs(m.signedVolume())
	}

	return Analysis{
		XMM:         max[0] - min[0],
		YMM:         max[1] - min[1],
		ZMM:         max[2] - min[2],
		VolumeMM3:   volume,
		SurfaceArea: m.SurfaceArea(),
		Watertight:  watertight,
		Manifold:    manifold,
		Vertices:    len(m.Vertices),
		Faces:       len(m.Faces),
	}
}
