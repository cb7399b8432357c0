package models

// Sample identifies one study to reconstruct: either a precomputed signed
// distance volume, or a segmentation label volume the distance field is
// derived from. When both are present the distance volume wins and the
// label volume is used for overlap metrics only.
type Sample struct {
	// ID names the sample; output artifacts are grouped under it.
	ID string

	// SDFPath is the path to a precomputed signed distance volume in raw
	// volume format, or empty.
	SDFPath string

	// LabelPath is the path to a segmentation label volume in raw volume
	// format, or empty.
	LabelPath string
}

// SampleMetrics holds the per-sample reconstruction quality measures.
type SampleMetrics struct {
	// FitResidual is the mean absolute surface distance of the fitted
	// template before subdivision, in mm.
	FitResidual float64

	// SurfaceResidual is the mean absolute surface distance of the final
	// subdivided mesh, in mm.
	SurfaceResidual float64

	// Dice is the voxel overlap of the final mesh's bounding foreground
	// against the label volume, or 0 when no labels were supplied.
	Dice float64
}

// SampleResult reports one sample's reconstruction outcome.
type SampleResult struct {
	ID string

	// LevelVerts and LevelFaces record the size of the mesh produced at
	// each subdivision level, coarsest first.
	LevelVerts []int
	LevelFaces []int

	Metrics SampleMetrics
}
