package voxel

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestTrilinearAt(t *testing.T) {
	v := NewVolume(2, 2, 2, 1, 1, 1)
	v.Set(1, 0, 0, 1) // ramp along x on the bottom front edge

	if got := v.TrilinearAt(r3.Vec{X: 0.25}); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("sample at x=0.25: got %v, want 0.25", got)
	}
	if got := v.TrilinearAt(r3.Vec{X: 1}); math.Abs(got-1) > 1e-12 {
		t.Errorf("sample at grid point: got %v, want 1", got)
	}
	// Outside the grid the boundary value holds.
	if got := v.TrilinearAt(r3.Vec{X: 5}); math.Abs(got-1) > 1e-12 {
		t.Errorf("sample beyond the grid: got %v, want 1", got)
	}
}

func TestGradientAt(t *testing.T) {
	// f(x,y,z) = x in physical mm, with 2mm voxels along x.
	v := NewVolume(8, 4, 4, 2, 1, 1)
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 8; x++ {
				v.Set(x, y, z, float32(2*x))
			}
		}
	}
	g := v.GradientAt(r3.Vec{X: 7, Y: 2, Z: 2})
	if math.Abs(g.X-1) > 1e-6 || math.Abs(g.Y) > 1e-6 || math.Abs(g.Z) > 1e-6 {
		t.Errorf("gradient = %v, want (1, 0, 0)", g)
	}
}

func TestResample(t *testing.T) {
	// 4mm slabs resampled to 2mm: twice the voxels along z.
	v := NewVolume(4, 4, 2, 1, 1, 4)
	out, err := v.Resample(1, 1, 2)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}
	if out.Width != 4 || out.Height != 4 || out.Depth != 4 {
		t.Errorf("resampled to %dx%dx%d, want 4x4x4", out.Width, out.Height, out.Depth)
	}
	if out.VoxelSize.Z != 2 {
		t.Errorf("voxel spacing z = %v, want 2", out.VoxelSize.Z)
	}

	if _, err := v.Resample(1, 0, 1); err == nil {
		t.Error("expected error for non-positive spacing")
	}
}

func TestResize(t *testing.T) {
	// Constant volume stays constant under trilinear resizing.
	v := NewVolume(4, 4, 4, 1, 1, 1)
	for i := range v.Data {
		v.Data[i] = 2
	}
	out, err := v.Resize(8, 8, 8)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}
	if out.Width != 8 || out.Height != 8 || out.Depth != 8 {
		t.Errorf("resized to %dx%dx%d, want 8x8x8", out.Width, out.Height, out.Depth)
	}
	if out.VoxelSize.X != 0.5 {
		t.Errorf("voxel spacing x = %v, want 0.5", out.VoxelSize.X)
	}
	for i, d := range out.Data {
		if d != 2 {
			t.Fatalf("voxel %d = %v, want 2", i, d)
		}
	}

	if _, err := v.Resize(0, 8, 8); err == nil {
		t.Error("expected error for non-positive size")
	}
}

func TestResizeNearest(t *testing.T) {
	v := NewVolume(4, 4, 4, 1, 1, 1)
	v.Set(0, 0, 0, 3)
	out, err := v.ResizeNearest(2, 2, 2)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}
	if out.At(0, 0, 0) != 3 {
		t.Errorf("corner value %v, want 3", out.At(0, 0, 0))
	}
	if out.VoxelSize.X != 2 {
		t.Errorf("voxel spacing x = %v, want 2", out.VoxelSize.X)
	}
	// No interpolation: every value must come verbatim from the source.
	for _, d := range out.Data {
		if d != 0 && d != 3 {
			t.Fatalf("resize invented value %v", d)
		}
	}
}

func TestCropForeground(t *testing.T) {
	v := NewVolume(10, 10, 10, 1, 1, 1)
	v.Set(4, 5, 6, 1)
	v.Set(6, 5, 6, 1)

	out, err := v.CropForeground(0.5, 1)
	if err != nil {
		t.Fatalf("crop failed: %v", err)
	}
	// Foreground spans x 4..6 plus a 1 voxel margin on every side.
	if out.Width != 5 || out.Height != 3 || out.Depth != 3 {
		t.Errorf("cropped to %dx%dx%d, want 5x3x3", out.Width, out.Height, out.Depth)
	}
	if out.At(1, 1, 1) != 1 {
		t.Errorf("foreground voxel lost in crop")
	}

	if _, err := NewVolume(2, 2, 2, 1, 1, 1).CropForeground(0.5, 0); err == nil {
		t.Error("expected error for empty foreground")
	}
}

func TestScaleIntensity(t *testing.T) {
	v := NewVolume(2, 1, 1, 1, 1, 1)
	v.Data[0], v.Data[1] = 10, 30
	v.ScaleIntensity(0, 1)
	if v.Data[0] != 0 || v.Data[1] != 1 {
		t.Errorf("scaled to %v, want [0 1]", v.Data)
	}

	c := NewVolume(2, 1, 1, 1, 1, 1)
	c.Data[0], c.Data[1] = 7, 7
	c.ScaleIntensity(0, 1)
	if c.Data[0] != 0 || c.Data[1] != 0 {
		t.Errorf("constant volume scaled to %v, want [0 0]", c.Data)
	}
}

func TestGaussianSmooth(t *testing.T) {
	v := NewVolume(9, 9, 9, 1, 1, 1)
	v.Set(4, 4, 4, 1)

	out := v.GaussianSmooth(1)
	if out.At(4, 4, 4) <= 0 || out.At(4, 4, 4) >= 1 {
		t.Errorf("smoothed peak %v not in (0, 1)", out.At(4, 4, 4))
	}
	// The kernel is normalized, so the total mass is preserved.
	sum := float64(0)
	for _, d := range out.Data {
		sum += float64(d)
	}
	if math.Abs(sum-1) > 1e-4 {
		t.Errorf("total mass %v after smoothing, want 1", sum)
	}

	// sigma <= 0 is a copy, not an alias.
	same := v.GaussianSmooth(0)
	same.Set(0, 0, 0, 9)
	if v.At(0, 0, 0) == 9 {
		t.Error("smoothing with sigma 0 aliased the source data")
	}
}

func TestBinarize(t *testing.T) {
	v := NewVolume(3, 1, 1, 1, 1, 1)
	v.Data[0], v.Data[1], v.Data[2] = -1, 0.5, 2
	out := v.Binarize(0.5)
	want := []float32{0, 0, 1}
	for i, w := range want {
		if out.Data[i] != w {
			t.Errorf("binarized[%d] = %v, want %v", i, out.Data[i], w)
		}
	}
	if v.Data[2] != 2 {
		t.Error("binarize mutated the source volume")
	}
}
