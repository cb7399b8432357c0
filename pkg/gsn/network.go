package gsn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"vol2mesh/pkg/mesh"
	"vol2mesh/pkg/subdivision"
)

// Network chains one independently-weighted Layer per subdivision level,
// interleaving learned vertex deformation with precomputed structural
// refinement.
type Network struct {
	layers []*Layer
}

// NewNetwork creates a subdivision network with numLevels layers mapping
// 3-D positions to 3-D offsets through the given hidden width. The seed
// makes cold-start weights reproducible.
func NewNetwork(numLevels, hiddenFeatures int, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	layers := make([]*Layer, numLevels)
	for i := range layers {
		layers[i] = NewLayer(3, hiddenFeatures, 3, rng)
	}
	return &Network{layers: layers}
}

// NumLevels returns the number of subdivision rounds the network performs.
func (n *Network) NumLevels() int { return len(n.layers) }

// Subdivide runs the full deform-then-refine sequence on a mesh and returns
// the mesh produced at every level, coarsest first, enabling
// multi-resolution supervision. For each level the corresponding layer's
// offsets are applied to the current vertices; if a precomputed level record
// exists, edge-midpoint vertices are derived from the deformed geometry and
// the precomputed face array is adopted, otherwise the deformed mesh passes
// through with its topology unchanged.
//
// The mesh entering each refinement round must match the topology the level
// record was built from; a mismatch means the caller mixed meshes and
// templates and is reported as an error rather than producing an invalid
// mesh.
func (n *Network) Subdivide(m *mesh.Mesh, levels []subdivision.Level) ([]*mesh.Mesh, error) {
	cur := m
	outs := make([]*mesh.Mesh, 0, len(n.layers))
	for l, layer := range n.layers {
		offsets, err := layer.Forward(vertsDense(cur), cur.DirectedEdges())
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		cur, err = cur.Offset(offsetRows(offsets))
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}

		if l < len(levels) {
			lev := levels[l]
			if cur.NumVerts() != lev.InVerts || cur.NumFaces() != lev.InFaces {
				return nil, fmt.Errorf("level %d: mesh has %d vertices and %d faces, precomputed index was built for %d and %d",
					l, cur.NumVerts(), cur.NumFaces(), lev.InVerts, lev.InFaces)
			}
			if fp := cur.TopologyFingerprint(); fp != lev.Fingerprint {
				return nil, fmt.Errorf("level %d: mesh topology %#x does not match precomputed index topology %#x",
					l, fp, lev.Fingerprint)
			}
			verts := append(append([]r3.Vec{}, cur.Verts...), cur.EdgeMidpoints()...)
			next, err := mesh.New(verts, lev.Faces)
			if err != nil {
				return nil, fmt.Errorf("level %d: %w", l, err)
			}
			cur = next
		}
		outs = append(outs, cur)
	}
	return outs, nil
}

// SubdivideBatch applies the network to every mesh of a batch. All batch
// elements must share the template topology the level records were built
// for; the per-mesh precondition check enforces this.
func (n *Network) SubdivideBatch(batch []*mesh.Mesh, levels []subdivision.Level) ([][]*mesh.Mesh, error) {
	outs := make([][]*mesh.Mesh, len(batch))
	for i, m := range batch {
		levelOuts, err := n.Subdivide(m, levels)
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", i, err)
		}
		outs[i] = levelOuts
	}
	return outs, nil
}

// vertsDense packs the vertex positions into one feature row per vertex.
func vertsDense(m *mesh.Mesh) *mat.Dense {
	data := make([]float64, 3*len(m.Verts))
	for i, v := range m.Verts {
		data[3*i] = v.X
		data[3*i+1] = v.Y
		data[3*i+2] = v.Z
	}
	return mat.NewDense(len(m.Verts), 3, data)
}

// offsetRows converts a per-vertex offset matrix back to vectors.
func offsetRows(m *mat.Dense) []r3.Vec {
	n, _ := m.Dims()
	out := make([]r3.Vec, n)
	for i := range out {
		out[i] = r3.Vec{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
	}
	return out
}
