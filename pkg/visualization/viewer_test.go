package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"vol2mesh/pkg/voxel"
)

func gradientVolume() *voxel.Volume {
	vol := voxel.NewVolume(4, 3, 2, 1, 1, 1)
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				vol.Set(x, y, z, float32(x))
			}
		}
	}
	return vol
}

func TestExtractSlice(t *testing.T) {
	v := NewViewer(gradientVolume())

	cases := []struct {
		axis          string
		position      int
		width, height int
	}{
		{"x", 1, 2, 3},
		{"y", 0, 4, 2},
		{"z", 1, 4, 3},
		{"Z", 0, 4, 3},
	}
	for _, c := range cases {
		img, err := v.ExtractSlice(c.axis, c.position)
		if err != nil {
			t.Fatalf("extract %s/%d failed: %v", c.axis, c.position, err)
		}
		b := img.Bounds()
		if b.Dx() != c.width || b.Dy() != c.height {
			t.Errorf("slice %s/%d is %dx%d, want %dx%d", c.axis, c.position, b.Dx(), b.Dy(), c.width, c.height)
		}
	}
}

func TestExtractSliceNormalization(t *testing.T) {
	v := NewViewer(gradientVolume())
	img, err := v.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	// Values span 0..3, so the leftmost column is black and the rightmost
	// is white.
	lo := color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	hi := color.Gray16Model.Convert(img.At(3, 0)).(color.Gray16)
	if lo.Y != 0 {
		t.Errorf("minimum voxel rendered as %d, want 0", lo.Y)
	}
	if hi.Y != 65535 {
		t.Errorf("maximum voxel rendered as %d, want 65535", hi.Y)
	}
}

func TestExtractSliceErrors(t *testing.T) {
	v := NewViewer(gradientVolume())

	cases := []struct {
		name     string
		axis     string
		position int
	}{
		{"invalid axis", "w", 0},
		{"negative position", "x", -1},
		{"x out of range", "x", 4},
		{"y out of range", "y", 3},
		{"z out of range", "z", 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := v.ExtractSlice(c.axis, c.position); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveSliceSequence(t *testing.T) {
	v := NewViewer(gradientVolume())
	dir := t.TempDir()

	if err := v.SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("saved %d slices, want 2", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "slice_z_000.jpg")); err != nil {
		t.Errorf("expected slice file missing: %v", err)
	}

	if err := v.SaveSliceSequence("w", dir); err == nil {
		t.Error("expected error for invalid axis")
	}
}
