package mesh

import "math"

// Box returns a watertight axis-aligned box of the given extents,
// centered on the origin, with outward-facing CCW winding.
func Box(x, y, z float64) *Mesh {
	hx, hy, hz := x/2, y/2, z/2
	verts := []Vec3{
		{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {-hx, hy, -hz},
		{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz},
	}
	faces := [][3]uint32{
		{0, 2, 1}, {0, 3, 2}, // -z
		{4, 5, 6}, {4, 6, 7}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{2, 3, 7}, {2, 7, 6}, // +y
		{1, 2, 6}, {1, 6, 5}, // +x
		{3, 0, 4}, {3, 4, 7}, // -x
	}
	return &Mesh{Vertices: verts, Faces: faces}
}

// Ellipsoid returns a watertight UV-sphere stretched to the given radii.
// segments controls longitude resolution; rings controls latitude.
func Ellipsoid(rx, ry, rz float64, segments, rings int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	if rings < 2 {
		rings = 2
	}

	m := &Mesh{}
	// poles plus (rings-1) latitude circles of `segments` points
	m.Vertices = append(m.Vertices, Vec3{0, 0, rz}) // north
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			m.Vertices = append(m.Vertices, Vec3{
				rx * math.Sin(phi) * math.Cos(theta),
				ry * math.Sin(phi) * math.Sin(theta),
				rz * math.Cos(phi),
			})
		}
	}
	south := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, Vec3{0, 0, -rz})

	ring := func(r, s int) uint32 {
		return uint32(1 + (r-1)*segments + (s % segments))
	}

	// cap fans
	for s := 0; s < segments; s++ {
		m.Faces = append(m.Faces, [3]uint32{0, ring(1, s), ring(1, s+1)})
		m.Faces = append(m.Faces, [3]uint32{south, ring(rings-1, s+1), ring(rings-1, s)})
	}
	// quad strips between latitude circles
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s), ring(r+1, s+1)
			m.Faces = append(m.Faces, [3]uint32{a, c, d})
			m.Faces = append(m.Faces, [3]uint32{a, d, b})
		}
	}
	return m
}
