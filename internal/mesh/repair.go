package mesh

// Repair cleans a mesh for FDM printing: welds coincident vertices, drops
// degenerate faces and prunes unreferenced vertices. Hole filling is left
// to the slicer; reconstruction output is closed in practice.
func Repair(m *Mesh) *Mesh {
	out := weld(m)
	out.Faces = dropDegenerate(out)
	pruneUnused(out)
	return out
}

func weld(m *Mesh) *Mesh {
	index := make(map[Vec3]uint32, len(m.Vertices))
	remap := make([]uint32, len(m.Vertices))
	out := &Mesh{Vertices: make([]Vec3, 0, len(m.Vertices))}

	for i, v := range m.Vertices {
		if idx, ok := index[v]; ok {
			remap[i] = idx
			continue
		}
		idx := uint32(len(out.Vertices))
		index[v] = idx
		remap[i] = idx
		out.Vertices = append(out.Vertices, v)
	}

	out.Faces = make([][3]uint32, len(m.Faces))
	for i, f := range m.Faces {
		out.Faces[i] = [3]uint32{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
	return out
}

func dropDegenerate(m *Mesh) [][3]uint32 {
	kept := m.Faces[:0]
	for i, f := range m.Faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		if m.FaceNormal(i).Length() == 0 {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func pruneUnused(m *Mesh) {
	used := make([]bool, len(m.Vertices))
	for _, f := range m.Faces {
		used[f[0]], used[f[1]], used[f[2]] = true, true, true
	}

	remap := make([]uint32, len(m.Vertices))
	verts := m.Vertices[:0]
	for i, v := range m.Vertices {
		if !used[i] {
			continue
		}
		remap[i] = uint32(len(verts))
		verts = append(verts, v)
	}
	m.Vertices = verts

	for i, f := range m.Faces {
		m.Faces[i] = [3]uint32{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
}
