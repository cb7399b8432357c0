package gsn

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Checkpoint format: a little-endian header (magic, version, layer count)
// followed by each layer's three weight matrices in gonum's binary matrix
// encoding. Matrix dimensions travel with each matrix, so loading restores
// the weights bit-for-bit regardless of the configuration the process was
// started with.
const (
	checkpointMagic   = uint32(0x4e534756) // "VGSN"
	checkpointVersion = uint32(1)
)

// Save writes the network weights to path.
func Save(path string, n *Network) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := Write(bw, n); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return bw.Flush()
}

// Write serializes the network weights to w.
func Write(w io.Writer, n *Network) error {
	for _, v := range []uint32{checkpointMagic, checkpointVersion, uint32(len(n.layers))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for i, layer := range n.layers {
		for _, weights := range []*mat.Dense{layer.w1, layer.w2, layer.w3} {
			if _, err := weights.MarshalBinaryTo(w); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		}
	}
	return nil
}

// Load restores a network from a checkpoint file.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()
	n, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	return n, nil
}

// Read deserializes a network from r.
func Read(r io.Reader) (*Network, error) {
	var magic, version, numLayers uint32
	for _, v := range []*uint32{&magic, &version, &numLayers} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("bad checkpoint magic %#x", magic)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", version)
	}
	layers := make([]*Layer, numLayers)
	for i := range layers {
		var w1, w2, w3 mat.Dense
		for _, weights := range []*mat.Dense{&w1, &w2, &w3} {
			if _, err := weights.UnmarshalBinaryFrom(r); err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
		}
		layers[i] = &Layer{w1: &w1, w2: &w2, w3: &w3}
	}
	return &Network{layers: layers}, nil
}
