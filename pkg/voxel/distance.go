package voxel

import (
	"fmt"
	"math"
)

// SignedDistanceField computes the exact signed Euclidean distance field of
// the segmentation foreground (voxels above threshold). The result holds,
// per voxel, the physical distance in mm to the structure boundary:
// positive outside the structure, negative inside. This mirrors the
// distance-field targets the network trains against, derived from ground
// truth segmentations during preprocessing.
func SignedDistanceField(seg *Volume, threshold float32) (*Volume, error) {
	foreground := 0
	for _, d := range seg.Data {
		if d > threshold {
			foreground++
		}
	}
	if foreground == 0 {
		return nil, fmt.Errorf("segmentation has no foreground voxels above %g", threshold)
	}

	// Distance to the foreground set, sampled everywhere: zero on the
	// structure, positive outside it.
	outside := squaredEDT(seg, func(v float32) bool { return v > threshold })
	// Distance to the background set: zero outside, positive inside.
	inside := squaredEDT(seg, func(v float32) bool { return v <= threshold })

	out := NewVolume(seg.Width, seg.Height, seg.Depth, seg.VoxelSize.X, seg.VoxelSize.Y, seg.VoxelSize.Z)
	for i := range out.Data {
		if seg.Data[i] > threshold {
			out.Data[i] = -float32(math.Sqrt(inside[i]))
		} else {
			out.Data[i] = float32(math.Sqrt(outside[i]))
		}
	}
	return out, nil
}

// squaredEDT computes the squared Euclidean distance from every voxel to the
// nearest voxel satisfying isSeed, in physical units, via three separable
// one-dimensional lower-envelope passes. Anisotropic voxel spacing is
// handled by placing samples at their physical positions in each pass.
func squaredEDT(v *Volume, isSeed func(float32) bool) []float64 {
	w, h, d := v.Width, v.Height, v.Depth
	dist := make([]float64, w*h*d)
	for i, val := range v.Data {
		if isSeed(val) {
			dist[i] = 0
		} else {
			dist[i] = math.Inf(1)
		}
	}

	// Pass along x for every (y, z) line.
	forEachSlicePar(d, func(z int) {
		line := make([]float64, w)
		for y := 0; y < h; y++ {
			base := z*w*h + y*w
			copy(line, dist[base:base+w])
			dt1d(line, v.VoxelSize.X, dist[base:base+w])
		}
	})
	// Pass along y for every (x, z) line.
	forEachSlicePar(d, func(z int) {
		line := make([]float64, h)
		res := make([]float64, h)
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				line[y] = dist[z*w*h+y*w+x]
			}
			dt1d(line, v.VoxelSize.Y, res)
			for y := 0; y < h; y++ {
				dist[z*w*h+y*w+x] = res[y]
			}
		}
	})
	// Pass along z for every (x, y) line.
	forEachSlicePar(h, func(y int) {
		line := make([]float64, d)
		res := make([]float64, d)
		for x := 0; x < w; x++ {
			for z := 0; z < d; z++ {
				line[z] = dist[z*w*h+y*w+x]
			}
			dt1d(line, v.VoxelSize.Z, res)
			for z := 0; z < d; z++ {
				dist[z*w*h+y*w+x] = res[z]
			}
		}
	})
	return dist
}

// dt1d is the one-dimensional squared distance transform of sampled
// function f, with samples spaced s apart, written into out. It maintains
// the lower envelope of the parabolas rooted at each finite sample;
// infinite samples (lines with no seed yet) contribute no parabola.
func dt1d(f []float64, s float64, out []float64) {
	n := len(f)
	first := -1
	for i, fv := range f {
		if !math.IsInf(fv, 1) {
			first = i
			break
		}
	}
	if first < 0 {
		for i := range out {
			out[i] = math.Inf(1)
		}
		return
	}

	v := make([]int, n)       // parabola roots in the envelope
	z := make([]float64, n+1) // envelope segment boundaries
	k := 0
	v[0] = first
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)

	pos := func(i int) float64 { return s * float64(i) }
	for q := first + 1; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		for {
			p := v[k]
			sx := ((f[q] + pos(q)*pos(q)) - (f[p] + pos(p)*pos(p))) / (2*pos(q) - 2*pos(p))
			if sx <= z[k] {
				// sx is finite and z[0] is -Inf, so k stays in range.
				k--
				continue
			}
			k++
			v[k] = q
			z[k] = sx
			z[k+1] = math.Inf(1)
			break
		}
	}

	k = 0
	for q := 0; q < n; q++ {
		x := pos(q)
		for z[k+1] < x {
			k++
		}
		p := v[k]
		out[q] = (x-pos(p))*(x-pos(p)) + f[p]
	}
}
