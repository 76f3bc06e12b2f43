package mesh

import (
	"bufio"
	"fmt"
	"io"
)

// EncodeOBJ writes m as ASCII Wavefront OBJ with per-face normals.
// OBJ indices are 1-based.
func EncodeOBJ(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "# %d vertices, %d faces\n", len(m.Vertices), len(m.Faces)); err != nil {
		return err
	}
	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", v[0], v[1], v[2]); err != nil {
			return err
		}
	}
	for i := range m.Faces {
		n := m.FaceNormal(i)
		if l := n.Length(); l > 0 {
			n = Vec3{n[0] / l, n[1] / l, n[2] / l}
		}
		if _, err := fmt.Fprintf(bw, "vn %g %g %g\n", n[0], n[1], n[2]); err != nil {
			return err
		}
	}
	for i, f := range m.Faces {
		ni := i + 1
		if _, err := fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n",
			f[0]+1, ni, f[1]+1, ni, f[2]+1, ni); err != nil {
			return err
		}
	}
	return bw.Flush()
}
