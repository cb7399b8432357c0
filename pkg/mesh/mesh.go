// Package mesh provides the triangle mesh representation shared by the
// reconstruction pipeline: packed vertex/face buffers, derived edge
// connectivity, and OBJ/STL input and output.
//
// Meshes are treated as immutable values. Operations that change geometry
// (Offset) or topology return a fresh Mesh and never mutate the receiver's
// buffers, so a mesh produced at one subdivision level can be retained
// safely while later levels are computed.
package mesh

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a triangulated surface: an ordered list of vertex positions and an
// ordered list of faces, each face a triple of vertex indices. All faces are
// triangles; polygon inputs are triangulated at load time.
type Mesh struct {
	Verts []r3.Vec
	Faces [][3]int
}

// New builds a mesh from vertex and face buffers after validating that every
// face index references a valid vertex.
func New(verts []r3.Vec, faces [][3]int) (*Mesh, error) {
	for i, f := range faces {
		for _, v := range f {
			if v < 0 || v >= len(verts) {
				return nil, fmt.Errorf("face %d references vertex %d, mesh has %d vertices", i, v, len(verts))
			}
		}
	}
	return &Mesh{Verts: verts, Faces: faces}, nil
}

// NumVerts returns the number of vertices.
func (m *Mesh) NumVerts() int { return len(m.Verts) }

// NumFaces returns the number of faces.
func (m *Mesh) NumFaces() int { return len(m.Faces) }

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	verts := make([]r3.Vec, len(m.Verts))
	copy(verts, m.Verts)
	faces := make([][3]int, len(m.Faces))
	copy(faces, m.Faces)
	return &Mesh{Verts: verts, Faces: faces}
}

// Offset returns a new mesh with every vertex translated by the matching
// offset vector. The face buffer is shared semantics-wise but copied so the
// result owns its storage.
func (m *Mesh) Offset(offsets []r3.Vec) (*Mesh, error) {
	if len(offsets) != len(m.Verts) {
		return nil, fmt.Errorf("offset count %d does not match vertex count %d", len(offsets), len(m.Verts))
	}
	out := m.Clone()
	for i := range out.Verts {
		out.Verts[i] = r3.Add(out.Verts[i], offsets[i])
	}
	return out, nil
}

// edgeKey normalizes an undirected edge to (lo, hi) order.
func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// buildEdges derives the deduplicated undirected edge list and the lookup
// from normalized pair to edge index. Edges are sorted lexicographically so
// the indexing is deterministic for a given topology; the subdivision cache
// relies on this to return bit-identical results on repeated builds.
func (m *Mesh) buildEdges() ([][2]int, map[[2]int]int) {
	seen := make(map[[2]int]struct{}, 3*len(m.Faces)/2)
	for _, f := range m.Faces {
		seen[edgeKey(f[1], f[2])] = struct{}{}
		seen[edgeKey(f[0], f[2])] = struct{}{}
		seen[edgeKey(f[0], f[1])] = struct{}{}
	}
	edges := make([][2]int, 0, len(seen))
	for e := range seen {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	index := make(map[[2]int]int, len(edges))
	for i, e := range edges {
		index[e] = i
	}
	return edges, index
}

// Edges returns the deduplicated undirected edges of the mesh as normalized
// (lo, hi) vertex pairs in a deterministic order.
func (m *Mesh) Edges() [][2]int {
	edges, _ := m.buildEdges()
	return edges
}

// DirectedEdges returns every undirected edge in both directions as
// (dst, src) pairs. Message-passing aggregation is symmetric only when both
// directions are present, so this is the connectivity handed to the
// subdivision network.
func (m *Mesh) DirectedEdges() [][2]int {
	edges, _ := m.buildEdges()
	directed := make([][2]int, 0, 2*len(edges))
	for _, e := range edges {
		directed = append(directed, [2]int{e[0], e[1]}, [2]int{e[1], e[0]})
	}
	return directed
}

// FacesToEdges maps each face to the indices of its three edges in the
// Edges() ordering. Entry k of a face's triple is the edge opposite vertex k
// of that face: (v1,v2), (v0,v2), (v0,v1). The subdivision builder depends
// on this opposite-vertex convention to keep child-face winding consistent
// with the parent.
func (m *Mesh) FacesToEdges() [][3]int {
	_, index := m.buildEdges()
	out := make([][3]int, len(m.Faces))
	for i, f := range m.Faces {
		out[i] = [3]int{
			index[edgeKey(f[1], f[2])],
			index[edgeKey(f[0], f[2])],
			index[edgeKey(f[0], f[1])],
		}
	}
	return out
}

// EdgeMidpoints returns the midpoint of every edge in Edges() order,
// computed from the current vertex positions. Appending these to the vertex
// buffer yields positions for the midpoint vertices the subdivided face
// index addresses after the existing vertices.
func (m *Mesh) EdgeMidpoints() []r3.Vec {
	edges := m.Edges()
	mids := make([]r3.Vec, len(edges))
	for i, e := range edges {
		mids[i] = r3.Scale(0.5, r3.Add(m.Verts[e[0]], m.Verts[e[1]]))
	}
	return mids
}

// FaceNormal returns the (unnormalized) normal of face i following its
// winding order.
func (m *Mesh) FaceNormal(i int) r3.Vec {
	f := m.Faces[i]
	a, b, c := m.Verts[f[0]], m.Verts[f[1]], m.Verts[f[2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// TopologyFingerprint hashes the vertex count and face connectivity of the
// mesh. Two meshes share a fingerprint exactly when a precomputed
// subdivision index built for one is valid for the other; it is the key of
// the subdivision level cache.
func (m *Mesh) TopologyFingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(m.Verts)))
	h.Write(buf[:])
	for _, f := range m.Faces {
		for _, v := range f {
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}
