package gsn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestForwardIsolatedVertex(t *testing.T) {
	layer := NewLayer(3, 8, 3, rand.New(rand.NewSource(1)))

	// Vertices 0 and 1 are connected, vertex 2 has no incident edges.
	x := mat.NewDense(3, 3, []float64{
		0, 0, 0,
		1, 0, 0,
		5, 5, 5,
	})
	edges := [][2]int{{0, 1}, {1, 0}}

	out, err := layer.Forward(x, edges)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	for j := 0; j < 3; j++ {
		v := out.At(2, j)
		if v != 0 {
			t.Errorf("isolated vertex offset[%d] = %v, want exactly 0", j, v)
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if v := out.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("offset[%d,%d] = %v", i, j, v)
			}
		}
	}
}

// TestForwardAntisymmetricPair checks the message arithmetic on the smallest
// possible graph: two vertices joined by one undirected edge. Both have
// degree one, so each receives exactly h[other] - h[self], making the two
// offset rows negatives of each other.
func TestForwardAntisymmetricPair(t *testing.T) {
	layer := NewLayer(3, 8, 3, rand.New(rand.NewSource(7)))

	x := mat.NewDense(2, 3, []float64{
		0.5, -1, 2,
		-0.25, 3, 0,
	})
	out, err := layer.Forward(x, [][2]int{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	for j := 0; j < 3; j++ {
		a, b := out.At(0, j), out.At(1, j)
		if math.Abs(a+b) > 1e-12 {
			t.Errorf("column %d: offsets %v and %v are not negatives", j, a, b)
		}
	}
}

func TestForwardZeroWeights(t *testing.T) {
	layer := NewLayer(3, 8, 3, rand.New(rand.NewSource(3)))
	layer.w1.Zero()
	layer.w2.Zero()
	layer.w3.Zero()

	x := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	out, err := layer.Forward(x, [][2]int{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if !mat.Equal(out, mat.NewDense(2, 3, nil)) {
		t.Fatalf("zero weights produced nonzero offsets %v", mat.Formatted(out))
	}
}

func TestForwardErrors(t *testing.T) {
	layer := NewLayer(3, 4, 3, rand.New(rand.NewSource(2)))

	t.Run("feature dimension mismatch", func(t *testing.T) {
		if _, err := layer.Forward(mat.NewDense(2, 2, nil), nil); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("edge out of range", func(t *testing.T) {
		if _, err := layer.Forward(mat.NewDense(2, 3, nil), [][2]int{{0, 2}}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestGlorotWithinLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	w := glorot(6, 10, rng)
	limit := math.Sqrt(6.0 / 16.0)
	for i := 0; i < 6; i++ {
		for j := 0; j < 10; j++ {
			if v := w.At(i, j); v < -limit || v > limit {
				t.Fatalf("weight [%d,%d] = %v outside [-%v, %v]", i, j, v, limit, limit)
			}
		}
	}
}

func TestLeakyReLU(t *testing.T) {
	m := mat.NewDense(1, 3, []float64{-2, 0, 3})
	leakyReLU(m)
	want := []float64{-0.02, 0, 3}
	for j, w := range want {
		if got := m.At(0, j); got != w {
			t.Errorf("leakyReLU[%d] = %v, want %v", j, got, w)
		}
	}
}
