// Package metrics evaluates reconstruction quality: point-set distances
// between predicted and reference meshes, surface residuals against a
// distance field, and voxel overlap against a segmentation.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"vol2mesh/pkg/mesh"
	"vol2mesh/pkg/voxel"
)

// point adapts an r3.Vec for the kd-tree.
type point r3.Vec

// Compare implements kdtree.Comparable.
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the kd-tree.
func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return dx*dx + dy*dy + dz*dz
}

// points is a collection of point satisfying kdtree.Interface.
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{points: p, Dim: d}, kdtree.MedianOfMedians(pointPlane{points: p, Dim: d}))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer over one axis.
type pointPlane struct {
	points
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].X < p.points[j].X
	case 1:
		return p.points[i].Y < p.points[j].Y
	case 2:
		return p.points[i].Z < p.points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{points: p.points[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func toPoints(vs []r3.Vec) points {
	out := make(points, len(vs))
	for i, v := range vs {
		out[i] = point(v)
	}
	return out
}

// nearestDistances returns, for every vertex of from, the Euclidean
// distance to its nearest vertex in the tree of to.
func nearestDistances(from, to []r3.Vec) []float64 {
	tree := kdtree.New(toPoints(to), false)
	out := make([]float64, len(from))
	for i, v := range from {
		_, d := tree.Nearest(point(v))
		out[i] = math.Sqrt(d)
	}
	return out
}

// ChamferDistance returns the symmetric Chamfer distance between the vertex
// sets of two meshes: the mean nearest-neighbor distance taken in both
// directions.
func ChamferDistance(a, b *mesh.Mesh) (float64, error) {
	if a.NumVerts() == 0 || b.NumVerts() == 0 {
		return 0, fmt.Errorf("cannot compare empty meshes (%d and %d vertices)", a.NumVerts(), b.NumVerts())
	}
	ab := nearestDistances(a.Verts, b.Verts)
	ba := nearestDistances(b.Verts, a.Verts)
	return (stat.Mean(ab, nil) + stat.Mean(ba, nil)) / 2, nil
}

// HausdorffDistance returns the symmetric Hausdorff distance between the
// vertex sets of two meshes: the largest nearest-neighbor distance in
// either direction.
func HausdorffDistance(a, b *mesh.Mesh) (float64, error) {
	if a.NumVerts() == 0 || b.NumVerts() == 0 {
		return 0, fmt.Errorf("cannot compare empty meshes (%d and %d vertices)", a.NumVerts(), b.NumVerts())
	}
	worst := 0.0
	for _, d := range nearestDistances(a.Verts, b.Verts) {
		worst = math.Max(worst, d)
	}
	for _, d := range nearestDistances(b.Verts, a.Verts) {
		worst = math.Max(worst, d)
	}
	return worst, nil
}

// SurfaceResidual returns the mean absolute signed distance sampled at the
// mesh vertices, measuring how far the mesh sits from the distance field's
// zero level set.
func SurfaceResidual(m *mesh.Mesh, sdf *voxel.Volume) (float64, error) {
	if m.NumVerts() == 0 {
		return 0, fmt.Errorf("cannot evaluate empty mesh")
	}
	ds := make([]float64, m.NumVerts())
	for i, v := range m.Verts {
		ds[i] = math.Abs(sdf.TrilinearAt(v))
	}
	return stat.Mean(ds, nil), nil
}

// Dice returns the Dice overlap coefficient of the foregrounds of two
// volumes of identical dimensions, both thresholded at the given value.
func Dice(a, b *voxel.Volume, threshold float32) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height || a.Depth != b.Depth {
		return 0, fmt.Errorf("volume dimensions differ: %dx%dx%d vs %dx%dx%d",
			a.Width, a.Height, a.Depth, b.Width, b.Height, b.Depth)
	}
	var inter, sizeA, sizeB float64
	for i := range a.Data {
		fa := a.Data[i] > threshold
		fb := b.Data[i] > threshold
		if fa {
			sizeA++
		}
		if fb {
			sizeB++
		}
		if fa && fb {
			inter++
		}
	}
	if sizeA+sizeB == 0 {
		return 0, fmt.Errorf("both volumes have empty foreground")
	}
	return 2 * inter / (sizeA + sizeB), nil
}
