package voxel

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Raw volume format: a little-endian header (magic, version, dimensions,
// voxel spacing) followed by the float32 voxel data in grid order. This is
// the interchange format between the preprocessing exporter and this
// pipeline; converters from scanner formats produce it upstream.
const (
	rawMagic   = uint32(0x4c4f5656) // "VVOL"
	rawVersion = uint32(1)
)

// LoadRaw reads a raw volume file.
func LoadRaw(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume: %w", err)
	}
	defer f.Close()
	v, err := ReadRaw(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read volume %s: %w", path, err)
	}
	return v, nil
}

// ReadRaw decodes a raw volume from r.
func ReadRaw(r io.Reader) (*Volume, error) {
	var magic, version uint32
	var w, h, d uint32
	var sx, sy, sz float64
	for _, v := range []interface{}{&magic, &version, &w, &h, &d, &sx, &sy, &sz} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if magic != rawMagic {
		return nil, fmt.Errorf("bad volume magic %#x", magic)
	}
	if version != rawVersion {
		return nil, fmt.Errorf("unsupported volume version %d", version)
	}
	if w == 0 || h == 0 || d == 0 {
		return nil, fmt.Errorf("degenerate volume dimensions %dx%dx%d", w, h, d)
	}
	out := NewVolume(int(w), int(h), int(d), sx, sy, sz)
	if err := binary.Read(r, binary.LittleEndian, out.Data); err != nil {
		return nil, fmt.Errorf("truncated voxel data: %w", err)
	}
	return out, nil
}

// SaveRaw writes the volume to a raw volume file.
func SaveRaw(path string, v *Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume file: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := WriteRaw(bw, v); err != nil {
		return fmt.Errorf("failed to write volume %s: %w", path, err)
	}
	return bw.Flush()
}

// WriteRaw encodes the volume to w.
func WriteRaw(w io.Writer, v *Volume) error {
	for _, val := range []interface{}{
		rawMagic, rawVersion,
		uint32(v.Width), uint32(v.Height), uint32(v.Depth),
		v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z,
	} {
		if err := binary.Write(w, binary.LittleEndian, val); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, v.Data)
}
