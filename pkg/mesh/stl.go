package mesh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"
)

// stlHeader is the fixed binary STL prefix: an unused 80 byte header
// followed by the triangle count.
type stlHeader struct {
	_     [80]uint8
	Count uint32
}

// stlTriangle is the 50 byte on-disk triangle record.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
	_       uint16 // attribute byte count, unused
}

// SaveSTL writes the mesh to a binary STL file.
func SaveSTL(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := WriteSTL(bw, m); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return bw.Flush()
}

// WriteSTL writes the mesh triangles to w in binary STL format. Face normals
// follow the winding order of each face, so orientation-preserving
// subdivision keeps the exported surface consistently oriented.
func WriteSTL(w io.Writer, m *Mesh) error {
	if m.NumFaces() == 0 {
		return errors.New("mesh has no faces")
	}
	header := stlHeader{Count: uint32(m.NumFaces())}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	var d stlTriangle
	for i, f := range m.Faces {
		n := m.FaceNormal(i)
		if nrm := r3.Norm(n); nrm > 0 {
			n = r3.Scale(1/nrm, n)
		}
		d.Normal = toF32(n)
		d.Vertex1 = toF32(m.Verts[f[0]])
		d.Vertex2 = toF32(m.Verts[f[1]])
		d.Vertex3 = toF32(m.Verts[f[2]])
		if degenerate(&d) {
			return fmt.Errorf("face %d has non-finite coordinates", i)
		}
		if err := binary.Write(w, binary.LittleEndian, &d); err != nil {
			return err
		}
	}
	return nil
}

func toF32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// degenerate reports whether the triangle contains NaN or Inf coordinates,
// which would corrupt the STL for downstream consumers.
func degenerate(d *stlTriangle) bool {
	for _, f := range [][3]float32{d.Vertex1, d.Vertex2, d.Vertex3} {
		for _, c := range f {
			if math32.IsNaN(c) || math32.IsInf(c, 0) {
				return true
			}
		}
	}
	return false
}
