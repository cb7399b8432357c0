package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Load reads a triangulated (or triangulatable) Wavefront OBJ file. This is
// how template meshes enter the pipeline: vertex lines become the vertex
// buffer in file order, face lines become triangles. Quads are split
// [0,1,2]+[2,3,0] so both triangles keep the polygon's winding; larger
// polygons are fan triangulated from their first vertex.
func Load(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mesh file: %w", err)
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// Decode parses OBJ data from a reader. Only v and f records are consumed;
// normals, texture coordinates, groups and comments are skipped.
func Decode(r io.Reader) (*Mesh, error) {
	var verts []r3.Vec
	var faces [][3]int

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineno)
			}
			var p [3]float64
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[1+i], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad coordinate %q: %w", lineno, fields[1+i], err)
				}
				p[i] = v
			}
			verts = append(verts, r3.Vec{X: p[0], Y: p[1], Z: p[2]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineno)
			}
			poly := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				// Face tokens may be v, v/vt, v/vt/vn or v//vn; the
				// vertex index is always the first component.
				if i := strings.IndexByte(tok, '/'); i >= 0 {
					tok = tok[:i]
				}
				idx, err := strconv.Atoi(tok)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad face index %q: %w", lineno, tok, err)
				}
				if idx < 1 || idx > len(verts) {
					return nil, fmt.Errorf("line %d: face index %d out of range (have %d vertices)", lineno, idx, len(verts))
				}
				poly = append(poly, idx-1)
			}
			faces = append(faces, triangulate(poly)...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(verts) == 0 {
		return nil, fmt.Errorf("no vertices found")
	}
	return New(verts, faces)
}

// triangulate converts a polygon (vertex index loop) to triangles preserving
// its winding order.
func triangulate(poly []int) [][3]int {
	switch len(poly) {
	case 3:
		return [][3]int{{poly[0], poly[1], poly[2]}}
	case 4:
		return [][3]int{
			{poly[0], poly[1], poly[2]},
			{poly[2], poly[3], poly[0]},
		}
	default:
		tris := make([][3]int, 0, len(poly)-2)
		for i := 1; i < len(poly)-1; i++ {
			tris = append(tris, [3]int{poly[0], poly[i], poly[i+1]})
		}
		return tris
	}
}

// Save writes the mesh as a Wavefront OBJ file.
func Save(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create mesh file: %w", err)
	}
	defer f.Close()
	if err := Encode(f, m); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Encode writes the mesh in OBJ format.
func Encode(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	for _, v := range m.Verts {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, f := range m.Faces {
		if _, err := fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1); err != nil {
			return err
		}
	}
	return bw.Flush()
}
