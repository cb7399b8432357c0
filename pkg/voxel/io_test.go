package voxel

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestRawRoundTrip(t *testing.T) {
	v := NewVolume(3, 2, 2, 1.5, 1.5, 4)
	for i := range v.Data {
		v.Data[i] = float32(i) * 0.5
	}

	t.Run("stream", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRaw(&buf, v); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		got, err := ReadRaw(&buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if got.Width != 3 || got.Height != 2 || got.Depth != 2 {
			t.Fatalf("dimensions %dx%dx%d, want 3x2x2", got.Width, got.Height, got.Depth)
		}
		if got.VoxelSize != v.VoxelSize {
			t.Fatalf("voxel size %v, want %v", got.VoxelSize, v.VoxelSize)
		}
		for i, d := range v.Data {
			if got.Data[i] != d {
				t.Fatalf("voxel %d = %v, want %v", i, got.Data[i], d)
			}
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vol.vvol")
		if err := SaveRaw(path, v); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		got, err := LoadRaw(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got.Width != v.Width || len(got.Data) != len(v.Data) {
			t.Fatal("loaded volume does not match saved volume")
		}
	})
}

func TestReadRawRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRaw(&buf, NewVolume(2, 2, 2, 1, 1, 1)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data := buf.Bytes()

	t.Run("bad magic", func(t *testing.T) {
		corrupt := append([]byte{}, data...)
		corrupt[0] ^= 0xff
		if _, err := ReadRaw(bytes.NewReader(corrupt)); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("truncated data", func(t *testing.T) {
		if _, err := ReadRaw(bytes.NewReader(data[:len(data)-4])); err == nil {
			t.Fatal("expected error")
		}
	})
}
