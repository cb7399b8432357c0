// Package gsn implements the graph subdivision network: a stack of learned
// message-passing layers, one per subdivision level, that deform a mesh's
// vertices before each structural refinement round.
//
// The computation is a pure function of the learned weights, the vertex
// features and the edge connectivity; no state is held between forward
// passes and all arithmetic is deterministic.
package gsn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// leakySlope is the negative-input slope of the activation between the
// feature-transform layers.
const leakySlope = 0.01

// Layer is a single message-passing operator. It transforms per-vertex
// features through a shared three-layer fully-connected network, then
// aggregates symmetric-degree-normalized pairwise feature differences over
// the incoming edges of each vertex.
type Layer struct {
	w1 *mat.Dense // in x hidden
	w2 *mat.Dense // hidden x hidden
	w3 *mat.Dense // hidden x out
}

// NewLayer creates a layer with Glorot-uniform initialized weights drawn
// from rng.
func NewLayer(in, hidden, out int, rng *rand.Rand) *Layer {
	return &Layer{
		w1: glorot(in, hidden, rng),
		w2: glorot(hidden, hidden, rng),
		w3: glorot(hidden, out, rng),
	}
}

// glorot returns a rows x cols matrix with entries drawn uniformly from
// [-limit, limit], limit = sqrt(6 / (fanIn + fanOut)).
func glorot(rows, cols int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(rows, cols, data)
}

// InDim returns the layer's input feature dimensionality.
func (l *Layer) InDim() int { r, _ := l.w1.Dims(); return r }

// OutDim returns the layer's output feature dimensionality.
func (l *Layer) OutDim() int { _, c := l.w3.Dims(); return c }

// Forward computes the per-vertex offset field. x holds one feature row per
// vertex; edges lists directed (target, source) pairs, with every undirected
// mesh edge present in both directions so aggregation is symmetric. The
// result has one row per vertex with OutDim columns.
//
// A vertex with no incident edges receives an exact zero row: degree-zero
// normalization factors are defined as zero rather than infinite.
func (l *Layer) Forward(x *mat.Dense, edges [][2]int) (*mat.Dense, error) {
	n, c := x.Dims()
	if c != l.InDim() {
		return nil, fmt.Errorf("feature dimension %d does not match layer input %d", c, l.InDim())
	}
	for _, e := range edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return nil, fmt.Errorf("edge (%d,%d) references vertex outside [0,%d)", e[0], e[1], n)
		}
	}

	// Step 1: shared feature transform applied independently per vertex.
	var h1, h2, h mat.Dense
	h1.Mul(x, l.w1)
	leakyReLU(&h1)
	h2.Mul(&h1, l.w2)
	leakyReLU(&h2)
	h.Mul(&h2, l.w3)

	// Step 2: symmetric normalization from in-degrees.
	invSqrt := make([]float64, n)
	for _, e := range edges {
		invSqrt[e[0]]++
	}
	for i, d := range invSqrt {
		if d > 0 {
			invSqrt[i] = 1 / math.Sqrt(d)
		}
	}

	// Step 3: accumulate norm * (h[src] - h[dst]) at each target vertex.
	outDim := l.OutDim()
	out := mat.NewDense(n, outDim, nil)
	for _, e := range edges {
		dst, src := e[0], e[1]
		norm := invSqrt[dst] * invSqrt[src]
		if norm == 0 {
			continue
		}
		for j := 0; j < outDim; j++ {
			out.Set(dst, j, out.At(dst, j)+norm*(h.At(src, j)-h.At(dst, j)))
		}
	}
	return out, nil
}

// leakyReLU applies the activation elementwise in place.
func leakyReLU(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return leakySlope * v
		}
		return v
	}, m)
}
