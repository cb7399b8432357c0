// Package subdivision precomputes Loop-style 1-to-4 face subdivision indices
// for a template mesh topology.
//
// The face index arrays depend only on connectivity, never on vertex
// positions, so they are computed once per template and reused for every
// mesh sharing that topology. A Cache owns the precomputed levels for one
// template configuration and hands them to the subdivision network, which
// treats them as immutable shared state for the lifetime of a run.
package subdivision

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"vol2mesh/pkg/mesh"
)

// Level is the precomputed record for one subdivision round: the face index
// array of the next level, the propagated per-face labels (nil when no
// labels are tracked), and the topology the record was built from. A Level
// is immutable once built.
type Level struct {
	// Faces is the subdivided face index array. Midpoint vertices are
	// addressed contiguously after the input mesh's vertices.
	Faces [][3]int

	// Labels holds the per-face label array propagated to this level, or
	// nil. Pass-through faces keep their label once, in mask order, ahead
	// of the subdivided parents' labels, each of which is replicated four
	// times consecutively in parent order.
	Labels []int

	// Fingerprint, InVerts and InFaces identify the topology this level's
	// face array applies to. Applying the level to a mesh with any other
	// topology is a precondition violation.
	Fingerprint uint64
	InVerts     int
	InFaces     int
}

// BuildLevels computes numLevels successive subdivision records for the
// template mesh. labels, when non-nil, must have one entry per template
// face; allow, when non-nil, supplies an optional per-level mask restricting
// which faces subdivide (a nil or missing entry subdivides every face).
// Vertex positions of intermediate meshes are the template's edge midpoints;
// they only serve to carry the topology forward between levels.
func BuildLevels(m *mesh.Mesh, numLevels int, labels []int, allow [][]bool) ([]Level, error) {
	if numLevels < 0 {
		return nil, fmt.Errorf("negative level count %d", numLevels)
	}
	if labels != nil && len(labels) != m.NumFaces() {
		return nil, fmt.Errorf("label count %d does not match face count %d", len(labels), m.NumFaces())
	}

	cur := m
	levels := make([]Level, 0, numLevels)
	for l := 0; l < numLevels; l++ {
		var mask []bool
		if allow != nil && l < len(allow) {
			mask = allow[l]
		}
		faces, newLabels, err := subdivideFaces(cur, labels, mask)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		levels = append(levels, Level{
			Faces:       faces,
			Labels:      newLabels,
			Fingerprint: cur.TopologyFingerprint(),
			InVerts:     cur.NumVerts(),
			InFaces:     cur.NumFaces(),
		})

		// Advance to the next level on the template geometry: midpoint
		// vertices appended in edge index order, then the new face array.
		verts := append(append([]r3.Vec{}, cur.Verts...), cur.EdgeMidpoints()...)
		next, err := mesh.New(verts, faces)
		if err != nil {
			return nil, fmt.Errorf("level %d produced invalid topology: %w", l, err)
		}
		cur = next
		labels = newLabels
	}
	return levels, nil
}

// subdivideFaces builds the next level's face index array for one round.
// Each subdivided parent yields three corner faces and one center face whose
// index triples preserve the parent's winding order; with vertices v0,v1,v2
// and opposite-edge midpoints m12,m02,m01 the children are (v0,m01,m02),
// (v1,m12,m01), (v2,m02,m12) and (m12,m02,m01). Output order is all
// corner-0 faces, all corner-1 faces, all corner-2 faces, then all center
// faces; masked-out faces pass through unchanged ahead of the subdivided
// output.
func subdivideFaces(m *mesh.Mesh, labels []int, mask []bool) ([][3]int, []int, error) {
	if mask != nil && len(mask) != m.NumFaces() {
		return nil, nil, fmt.Errorf("mask length %d does not match face count %d", len(mask), m.NumFaces())
	}

	// Edge indices offset by the vertex count so midpoint vertices address
	// contiguously after the existing vertices.
	f2e := m.FacesToEdges()
	off := m.NumVerts()

	var keep, sub []int
	if mask == nil {
		sub = make([]int, m.NumFaces())
		for i := range sub {
			sub[i] = i
		}
	} else {
		for i, ok := range mask {
			if ok {
				sub = append(sub, i)
			} else {
				keep = append(keep, i)
			}
		}
	}

	out := make([][3]int, 0, len(keep)+4*len(sub))
	for _, i := range keep {
		out = append(out, m.Faces[i])
	}
	for _, i := range sub { // corner 0
		f, e := m.Faces[i], f2e[i]
		out = append(out, [3]int{f[0], off + e[2], off + e[1]})
	}
	for _, i := range sub { // corner 1
		f, e := m.Faces[i], f2e[i]
		out = append(out, [3]int{f[1], off + e[0], off + e[2]})
	}
	for _, i := range sub { // corner 2
		f, e := m.Faces[i], f2e[i]
		out = append(out, [3]int{f[2], off + e[1], off + e[0]})
	}
	for _, i := range sub { // center
		e := f2e[i]
		out = append(out, [3]int{off + e[0], off + e[1], off + e[2]})
	}

	if labels == nil {
		return out, nil, nil
	}
	newLabels := make([]int, 0, len(keep)+4*len(sub))
	for _, i := range keep {
		newLabels = append(newLabels, labels[i])
	}
	for _, i := range sub {
		l := labels[i]
		newLabels = append(newLabels, l, l, l, l)
	}
	return out, newLabels, nil
}

// Cache owns the precomputed levels for one template configuration (level
// count, labels and masks fixed at construction), keyed by topology
// fingerprint. It is an explicit value passed into whatever runs the
// subdivision network, not process-global state. Levels built once are
// reused verbatim for every mesh sharing the template topology.
type Cache struct {
	numLevels int
	labels    []int
	allow     [][]bool

	mu     sync.Mutex
	levels map[uint64][]Level
}

// NewCache creates a level cache for the given configuration.
func NewCache(numLevels int, labels []int, allow [][]bool) *Cache {
	return &Cache{
		numLevels: numLevels,
		labels:    labels,
		allow:     allow,
		levels:    make(map[uint64][]Level),
	}
}

// Levels returns the precomputed subdivision levels for the mesh's topology,
// building and retaining them on first use.
func (c *Cache) Levels(m *mesh.Mesh) ([]Level, error) {
	key := m.TopologyFingerprint()
	c.mu.Lock()
	defer c.mu.Unlock()
	if levels, ok := c.levels[key]; ok {
		return levels, nil
	}
	levels, err := BuildLevels(m, c.numLevels, c.labels, c.allow)
	if err != nil {
		return nil, err
	}
	c.levels[key] = levels
	return levels, nil
}
