package mesh

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
)

// Minimal glTF 2.0 binary container writer: one buffer, one mesh, one
// primitive. Enough for the browser-side 3D viewer; no materials.

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbChunkJSON = 0x4E4F534A // "JSON"
	glbChunkBIN  = 0x004E4942 // "BIN\0"

	componentFloat = 5126
	componentUint  = 5125

	targetArrayBuffer        = 34962
	targetElementArrayBuffer = 34963
)

type gltfDoc struct {
	Asset       gltfAsset        `json:"asset"`
	Scene       int              `json:"scene"`
	Scenes      []gltfScene      `json:"scenes"`
	Nodes       []gltfNode       `json:"nodes"`
	Meshes      []gltfMesh       `json:"meshes"`
	Accessors   []gltfAccessor   `json:"accessors"`
	BufferViews []gltfBufferView `json:"bufferViews"`
	Buffers     []gltfBuffer     `json:"buffers"`
}

type gltfAsset struct {
	Version   string `json:"version"`
	Generator string `json:"generator"`
}

type gltfScene struct {
	Nodes []int `json:"nodes"`
}

type gltfNode struct {
	Mesh int `json:"mesh"`
}

type gltfMesh struct {
	Primitives []gltfPrimitive `json:"primitives"`
}

type gltfPrimitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    int            `json:"indices"`
}

type gltfAccessor struct {
	BufferView    int       `json:"bufferView"`
	ComponentType int       `json:"componentType"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float64 `json:"min,omitempty"`
	Max           []float64 `json:"max,omitempty"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	Target     int `json:"target"`
}

type gltfBuffer struct {
	ByteLength int `json:"byteLength"`
}

// EncodeGLB writes m as a self-contained .glb file.
func EncodeGLB(w io.Writer, m *Mesh) error {
	var bin bytes.Buffer

	for _, v := range m.Vertices {
		for a := 0; a < 3; a++ {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v[a])))
			bin.Write(b[:])
		}
	}
	posLen := bin.Len()

	for _, f := range m.Faces {
		for _, idx := range f {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], idx)
			bin.Write(b[:])
		}
	}
	idxLen := bin.Len() - posLen

	min, max := m.Bounds()
	doc := gltfDoc{
		Asset:  gltfAsset{Version: "2.0", Generator: "mesh-pipeline-service"},
		Scene:  0,
		Scenes: []gltfScene{{Nodes: []int{0}}},
		Nodes:  []gltfNode{{Mesh: 0}},
		Meshes: []gltfMesh{{Primitives: []gltfPrimitive{{
			Attributes: map[string]int{"POSITION": 0},
			Indices:    1,
		}}}},
		Accessors: []gltfAccessor{
			{
				BufferView:    0,
				ComponentType: componentFloat,
				Count:         len(m.Vertices),
				Type:          "VEC3",
				Min:           []float64{min[0], min[1], min[2]},
				Max:           []float64{max[0], max[1], max[2]},
			},
			{
				BufferView:    1,
				ComponentType: componentUint,
				Count:         len(m.Faces) * 3,
				Type:          "SCALAR",
			},
		},
		BufferViews: []gltfBufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: posLen, Target: targetArrayBuffer},
			{Buffer: 0, ByteOffset: posLen, ByteLength: idxLen, Target: targetElementArrayBuffer},
		},
		Buffers: []gltfBuffer{{ByteLength: bin.Len()}},
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	for len(jsonBytes)%4 != 0 {
		jsonBytes = append(jsonBytes, ' ')
	}
	for bin.Len()%4 != 0 {
		bin.WriteByte(0)
	}

	total := 12 + 8 + len(jsonBytes) + 8 + bin.Len()

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:], glbMagic)
	binary.LittleEndian.PutUint32(header[4:], 2)
	binary.LittleEndian.PutUint32(header[8:], uint32(total))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if err := writeChunk(w, glbChunkJSON, jsonBytes); err != nil {
		return err
	}
	return writeChunk(w, glbChunkBIN, bin.Bytes())
}

func writeChunk(w io.Writer, kind uint32, payload []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], kind)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
