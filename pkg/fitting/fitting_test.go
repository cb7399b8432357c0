package fitting

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"vol2mesh/pkg/mesh"
	"vol2mesh/pkg/voxel"
)

// sphereSDF builds an analytic signed distance volume for a sphere of the
// given radius centered at c, in mm.
func sphereSDF(w, h, d int, c r3.Vec, radius float64) *voxel.Volume {
	v := voxel.NewVolume(w, h, d, 1, 1, 1)
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}
				v.Set(x, y, z, float32(r3.Norm(r3.Sub(p, c))-radius))
			}
		}
	}
	return v
}

// octahedron returns a 6-vertex octahedral template scaled by r around c.
func octahedron(t *testing.T, c r3.Vec, r float64) *mesh.Mesh {
	t.Helper()
	verts := []r3.Vec{
		{X: r}, {X: -r}, {Y: r}, {Y: -r}, {Z: r}, {Z: -r},
	}
	for i := range verts {
		verts[i] = r3.Add(verts[i], c)
	}
	faces := [][3]int{
		{0, 2, 4}, {2, 1, 4}, {1, 3, 4}, {3, 0, 4},
		{2, 0, 5}, {1, 2, 5}, {3, 1, 5}, {0, 3, 5},
	}
	m, err := mesh.New(verts, faces)
	if err != nil {
		t.Fatalf("failed to build octahedron: %v", err)
	}
	return m
}

func TestFitPullsVerticesToSurface(t *testing.T) {
	center := r3.Vec{X: 10, Y: 10, Z: 10}
	sdf := sphereSDF(21, 21, 21, center, 6)
	template := octahedron(t, center, 3)

	res, err := Fit(template, sdf, Params{Iterations: 60, Step: 0.5, SmoothWeight: 0.05})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if res.Residual > 0.5 {
		t.Errorf("residual %v after fitting, want below 0.5", res.Residual)
	}
	// Every fitted vertex must sit near the sphere of radius 6.
	for i, v := range res.Mesh.Verts {
		r := r3.Norm(r3.Sub(v, center))
		if math.Abs(r-6) > 1 {
			t.Errorf("vertex %d at radius %v, want about 6", i, r)
		}
	}
}

func TestFitImprovesResidual(t *testing.T) {
	center := r3.Vec{X: 10, Y: 10, Z: 10}
	sdf := sphereSDF(21, 21, 21, center, 6)
	template := octahedron(t, center, 3)

	short, err := Fit(template, sdf, Params{Iterations: 1, Step: 0.5, SmoothWeight: 0.05})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	long, err := Fit(template, sdf, Params{Iterations: 40, Step: 0.5, SmoothWeight: 0.05})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if long.Residual >= short.Residual {
		t.Errorf("residual did not improve: %v after 1 iteration, %v after 40", short.Residual, long.Residual)
	}
}

func TestFitToleranceStopsEarly(t *testing.T) {
	center := r3.Vec{X: 10, Y: 10, Z: 10}
	sdf := sphereSDF(21, 21, 21, center, 6)
	template := octahedron(t, center, 5.9)

	res, err := Fit(template, sdf, Params{Iterations: 100, Step: 0.5, SmoothWeight: 0, Tolerance: 0.5})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if res.Iterations >= 100 {
		t.Errorf("ran %d iterations, expected early stop", res.Iterations)
	}
}

func TestFitLeavesTemplateIntact(t *testing.T) {
	center := r3.Vec{X: 10, Y: 10, Z: 10}
	sdf := sphereSDF(21, 21, 21, center, 6)
	template := octahedron(t, center, 3)
	orig := template.Clone()

	if _, err := Fit(template, sdf, DefaultParams()); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for i, v := range template.Verts {
		if v != orig.Verts[i] {
			t.Fatalf("template vertex %d mutated", i)
		}
	}
}

func TestFitParamErrors(t *testing.T) {
	sdf := sphereSDF(5, 5, 5, r3.Vec{X: 2, Y: 2, Z: 2}, 1)
	template := octahedron(t, r3.Vec{X: 2, Y: 2, Z: 2}, 1)

	t.Run("negative iterations", func(t *testing.T) {
		if _, err := Fit(template, sdf, Params{Iterations: -1}); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("smooth weight out of range", func(t *testing.T) {
		if _, err := Fit(template, sdf, Params{Iterations: 1, SmoothWeight: 1.5}); err == nil {
			t.Fatal("expected error")
		}
	})
}
