// Package voxel provides the volumetric side of the pipeline: a scalar
// voxel grid with physical spacing, the preprocessing steps applied to
// images and segmentation labels (isotropic resampling, foreground
// cropping, resizing, intensity scaling, smoothing), and the signed
// Euclidean distance transform that converts a segmentation into the
// distance field the mesh fitting stage consumes.
package voxel

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"
)

// Volume is a 3D scalar grid stored as a 1D array in row-major order
// (x fastest, then y, then z), with the physical size of each voxel in mm.
type Volume struct {
	// Data is the voxel data, indexed z*Width*Height + y*Width + x.
	Data []float32

	// Width, Height, Depth are the grid dimensions in voxels.
	Width, Height, Depth int

	// VoxelSize is the physical extent of one voxel in mm along each axis.
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume with the given dimensions and
// voxel spacing.
func NewVolume(width, height, depth int, sx, sy, sz float64) *Volume {
	v := &Volume{
		Data:   make([]float32, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X = sx
	v.VoxelSize.Y = sy
	v.VoxelSize.Z = sz
	return v
}

// At returns the voxel value at integer grid coordinates, clamping
// coordinates to the grid so boundary sampling is well defined.
func (v *Volume) At(x, y, z int) float32 {
	x = clampInt(x, 0, v.Width-1)
	y = clampInt(y, 0, v.Height-1)
	z = clampInt(z, 0, v.Depth-1)
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// Set assigns the voxel value at integer grid coordinates.
func (v *Volume) Set(x, y, z int, val float32) {
	v.Data[z*v.Width*v.Height+y*v.Width+x] = val
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// TrilinearAt samples the volume at a physical position (mm) with trilinear
// interpolation. Positions outside the grid clamp to the boundary.
func (v *Volume) TrilinearAt(p r3.Vec) float64 {
	gx := p.X / v.VoxelSize.X
	gy := p.Y / v.VoxelSize.Y
	gz := p.Z / v.VoxelSize.Z

	x0, y0, z0 := int(math.Floor(gx)), int(math.Floor(gy)), int(math.Floor(gz))
	fx, fy, fz := gx-float64(x0), gy-float64(y0), gz-float64(z0)

	c000 := float64(v.At(x0, y0, z0))
	c100 := float64(v.At(x0+1, y0, z0))
	c010 := float64(v.At(x0, y0+1, z0))
	c110 := float64(v.At(x0+1, y0+1, z0))
	c001 := float64(v.At(x0, y0, z0+1))
	c101 := float64(v.At(x0+1, y0, z0+1))
	c011 := float64(v.At(x0, y0+1, z0+1))
	c111 := float64(v.At(x0+1, y0+1, z0+1))

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx
	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy
	return c0*(1-fz) + c1*fz
}

// GradientAt estimates the spatial gradient at a physical position with
// central differences of one voxel spacing per axis.
func (v *Volume) GradientAt(p r3.Vec) r3.Vec {
	hx, hy, hz := v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z
	return r3.Vec{
		X: (v.TrilinearAt(r3.Vec{X: p.X + hx, Y: p.Y, Z: p.Z}) - v.TrilinearAt(r3.Vec{X: p.X - hx, Y: p.Y, Z: p.Z})) / (2 * hx),
		Y: (v.TrilinearAt(r3.Vec{X: p.X, Y: p.Y + hy, Z: p.Z}) - v.TrilinearAt(r3.Vec{X: p.X, Y: p.Y - hy, Z: p.Z})) / (2 * hy),
		Z: (v.TrilinearAt(r3.Vec{X: p.X, Y: p.Y, Z: p.Z + hz}) - v.TrilinearAt(r3.Vec{X: p.X, Y: p.Y, Z: p.Z - hz})) / (2 * hz),
	}
}

// Resample returns the volume resampled to the given voxel spacing with
// trilinear interpolation, preserving the physical extent. Resampling all
// modalities to a shared isotropic spacing is the first preprocessing step.
func (v *Volume) Resample(sx, sy, sz float64) (*Volume, error) {
	if sx <= 0 || sy <= 0 || sz <= 0 {
		return nil, fmt.Errorf("voxel spacing must be positive, got (%g, %g, %g)", sx, sy, sz)
	}
	w := int(math.Max(1, math.Round(float64(v.Width)*v.VoxelSize.X/sx)))
	h := int(math.Max(1, math.Round(float64(v.Height)*v.VoxelSize.Y/sy)))
	d := int(math.Max(1, math.Round(float64(v.Depth)*v.VoxelSize.Z/sz)))

	out := NewVolume(w, h, d, sx, sy, sz)
	forEachSlicePar(d, func(z int) {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := r3.Vec{X: float64(x) * sx, Y: float64(y) * sy, Z: float64(z) * sz}
				out.Set(x, y, z, float32(v.TrilinearAt(p)))
			}
		}
	})
	return out, nil
}

// Resize returns the volume resized to the given grid with trilinear
// sampling, preserving the physical extent.
func (v *Volume) Resize(width, height, depth int) (*Volume, error) {
	if width < 1 || height < 1 || depth < 1 {
		return nil, fmt.Errorf("target size must be positive, got (%d, %d, %d)", width, height, depth)
	}
	out := NewVolume(width, height, depth,
		v.VoxelSize.X*float64(v.Width)/float64(width),
		v.VoxelSize.Y*float64(v.Height)/float64(height),
		v.VoxelSize.Z*float64(v.Depth)/float64(depth))
	forEachSlicePar(depth, func(z int) {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				p := r3.Vec{
					X: float64(x) * out.VoxelSize.X,
					Y: float64(y) * out.VoxelSize.Y,
					Z: float64(z) * out.VoxelSize.Z,
				}
				out.Set(x, y, z, float32(v.TrilinearAt(p)))
			}
		}
	})
	return out, nil
}

// ResizeNearest returns the volume resized to the given grid with nearest
// neighbor sampling, used for label volumes where interpolation would
// invent classes. The voxel spacing is rescaled to keep the physical
// extent.
func (v *Volume) ResizeNearest(width, height, depth int) (*Volume, error) {
	if width < 1 || height < 1 || depth < 1 {
		return nil, fmt.Errorf("target size must be positive, got (%d, %d, %d)", width, height, depth)
	}
	out := NewVolume(width, height, depth,
		v.VoxelSize.X*float64(v.Width)/float64(width),
		v.VoxelSize.Y*float64(v.Height)/float64(height),
		v.VoxelSize.Z*float64(v.Depth)/float64(depth))
	for z := 0; z < depth; z++ {
		sz := int(float64(z) * float64(v.Depth) / float64(depth))
		for y := 0; y < height; y++ {
			sy := int(float64(y) * float64(v.Height) / float64(height))
			for x := 0; x < width; x++ {
				sx := int(float64(x) * float64(v.Width) / float64(width))
				out.Set(x, y, z, v.At(sx, sy, sz))
			}
		}
	}
	return out, nil
}

// CropForeground returns the sub-volume bounding all voxels above the
// threshold, expanded by margin voxels on every side and clipped to the
// grid. Cropping to the labeled anatomy keeps the downstream grids small.
func (v *Volume) CropForeground(threshold float32, margin int) (*Volume, error) {
	minX, minY, minZ := v.Width, v.Height, v.Depth
	maxX, maxY, maxZ := -1, -1, -1
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				if v.At(x, y, z) > threshold {
					minX, minY, minZ = min(minX, x), min(minY, y), min(minZ, z)
					maxX, maxY, maxZ = max(maxX, x), max(maxY, y), max(maxZ, z)
				}
			}
		}
	}
	if maxX < 0 {
		return nil, fmt.Errorf("no foreground voxels above threshold %g", threshold)
	}
	minX = clampInt(minX-margin, 0, v.Width-1)
	minY = clampInt(minY-margin, 0, v.Height-1)
	minZ = clampInt(minZ-margin, 0, v.Depth-1)
	maxX = clampInt(maxX+margin, 0, v.Width-1)
	maxY = clampInt(maxY+margin, 0, v.Height-1)
	maxZ = clampInt(maxZ+margin, 0, v.Depth-1)

	out := NewVolume(maxX-minX+1, maxY-minY+1, maxZ-minZ+1, v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z)
	for z := 0; z < out.Depth; z++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Set(x, y, z, v.At(minX+x, minY+y, minZ+z))
			}
		}
	}
	return out, nil
}

// ScaleIntensity linearly rescales the voxel values to [minv, maxv]. A
// constant volume maps to minv.
func (v *Volume) ScaleIntensity(minv, maxv float32) {
	lo, hi := v.Data[0], v.Data[0]
	for _, d := range v.Data {
		lo = math32.Min(lo, d)
		hi = math32.Max(hi, d)
	}
	if hi <= lo {
		for i := range v.Data {
			v.Data[i] = minv
		}
		return
	}
	scale := (maxv - minv) / (hi - lo)
	for i, d := range v.Data {
		v.Data[i] = minv + (d-lo)*scale
	}
}

// GaussianSmooth applies a separable Gaussian filter with the given sigma
// in voxels, truncated at three standard deviations. Used to denoise image
// volumes ahead of intensity scaling.
func (v *Volume) GaussianSmooth(sigma float64) *Volume {
	if sigma <= 0 {
		return v.clone()
	}
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	convolve := func(src *Volume, dx, dy, dz int) *Volume {
		dst := NewVolume(src.Width, src.Height, src.Depth, src.VoxelSize.X, src.VoxelSize.Y, src.VoxelSize.Z)
		forEachSlicePar(src.Depth, func(z int) {
			for y := 0; y < src.Height; y++ {
				for x := 0; x < src.Width; x++ {
					acc := 0.0
					for i, k := range kernel {
						off := i - radius
						acc += k * float64(src.At(x+off*dx, y+off*dy, z+off*dz))
					}
					dst.Set(x, y, z, float32(acc))
				}
			}
		})
		return dst
	}
	out := convolve(v, 1, 0, 0)
	out = convolve(out, 0, 1, 0)
	return convolve(out, 0, 0, 1)
}

// Binarize returns a copy with voxels above the threshold set to 1 and the
// rest to 0.
func (v *Volume) Binarize(threshold float32) *Volume {
	out := v.clone()
	for i, d := range out.Data {
		if d > threshold {
			out.Data[i] = 1
		} else {
			out.Data[i] = 0
		}
	}
	return out
}

func (v *Volume) clone() *Volume {
	out := NewVolume(v.Width, v.Height, v.Depth, v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z)
	copy(out.Data, v.Data)
	return out
}

// forEachSlicePar runs fn for every z slice, fanning the slices out across
// the available cores.
func forEachSlicePar(depth int, fn func(z int)) {
	workers := runtime.NumCPU()
	if workers > depth {
		workers = depth
	}
	if workers <= 1 {
		for z := 0; z < depth; z++ {
			fn(z)
		}
		return
	}
	var wg sync.WaitGroup
	per := (depth + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * per
		end := min(start+per, depth)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for z := start; z < end; z++ {
				fn(z)
			}
		}(start, end)
	}
	wg.Wait()
}
