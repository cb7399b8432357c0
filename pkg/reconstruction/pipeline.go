// Package reconstruction orchestrates the end-to-end inference path: load
// the anatomical template mesh, precompute its subdivision indices, and for
// every sample derive a signed distance volume, fit the template onto its
// zero level set, and refine the fit with the learned subdivision network.
//
// The reconstruction process consists of several steps:
// 1. Loading the template mesh and validating its topology
// 2. Restoring (or cold-starting) the subdivision network weights
// 3. Precomputing the per-level face indices for the template topology
// 4. Processing samples in parallel: distance field, fitting, subdivision
// 5. Exporting per-level meshes and computing quality metrics
package reconstruction

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"vol2mesh/internal/logger"
	"vol2mesh/internal/models"
	"vol2mesh/pkg/fitting"
	"vol2mesh/pkg/gsn"
	"vol2mesh/pkg/mesh"
	"vol2mesh/pkg/metrics"
	"vol2mesh/pkg/subdivision"
	"vol2mesh/pkg/visualization"
	"vol2mesh/pkg/voxel"
)

// Params holds the reconstruction parameters.
type Params struct {
	// TemplatePath is the OBJ file holding the anatomical template mesh.
	// Every sample is reconstructed by deforming this shared topology.
	TemplatePath string

	// CheckpointPath optionally restores learned subdivision-network
	// weights; when empty a seeded cold start is used.
	CheckpointPath string

	// Samples are the studies to reconstruct.
	Samples []models.Sample

	// OutputDir receives one subdirectory of meshes per sample.
	OutputDir string

	// NumCores bounds how many samples are processed concurrently.
	NumCores int

	// SubdivisionLevels and HiddenFeatures describe the network when no
	// checkpoint is supplied; Seed fixes its cold-start weights.
	SubdivisionLevels int
	HiddenFeatures    int
	Seed              int64

	// Fitting controls the template fitting stage.
	Fitting fitting.Params

	// LabelThreshold separates foreground from background in label
	// volumes.
	LabelThreshold float32

	// VoxelSpacing resamples label volumes to this isotropic spacing (mm)
	// before distance-field conversion; non-positive keeps the native
	// grid.
	VoxelSpacing float64

	// CropMargin crops label volumes to their foreground bounding box
	// expanded by this many voxels; non-positive disables cropping. The
	// crop moves the volume origin, so templates must be positioned in
	// the cropped frame.
	CropMargin int

	// SmoothSigma applies a Gaussian (sigma in voxels) to label volumes
	// ahead of thresholding, softening staircase boundaries; zero
	// disables smoothing.
	SmoothSigma float64

	// SaveSTL additionally exports every level's mesh as binary STL.
	SaveSTL bool

	// SaveIntermediaryResults dumps distance-field slice images and the
	// fitted template per sample.
	SaveIntermediaryResults bool
}

// Pipeline runs the reconstruction over a set of samples sharing one
// template topology.
type Pipeline struct {
	params   *Params
	template *mesh.Mesh
	net      *gsn.Network
	levels   []subdivision.Level

	results []models.SampleResult
}

// NewPipeline loads the template, restores the network and precomputes the
// subdivision levels for the template topology.
func NewPipeline(params *Params) (*Pipeline, error) {
	template, err := mesh.Load(params.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	logger.Log.Info("loaded template mesh",
		zap.String("path", params.TemplatePath),
		zap.Int("verts", template.NumVerts()),
		zap.Int("faces", template.NumFaces()))

	var net *gsn.Network
	if params.CheckpointPath != "" {
		net, err = gsn.Load(params.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("failed to restore network: %w", err)
		}
		logger.Log.Info("restored network weights",
			zap.String("path", params.CheckpointPath),
			zap.Int("levels", net.NumLevels()))
	} else {
		net = gsn.NewNetwork(params.SubdivisionLevels, params.HiddenFeatures, params.Seed)
		logger.Log.Info("cold-started network",
			zap.Int("levels", params.SubdivisionLevels),
			zap.Int("hiddenFeatures", params.HiddenFeatures),
			zap.Int64("seed", params.Seed))
	}

	// The face index arrays depend only on the template topology; build
	// them once and share them across every sample.
	cache := subdivision.NewCache(net.NumLevels(), nil, nil)
	levels, err := cache.Levels(template)
	if err != nil {
		return nil, fmt.Errorf("failed to precompute subdivision levels: %w", err)
	}

	return &Pipeline{
		params:   params,
		template: template,
		net:      net,
		levels:   levels,
	}, nil
}

// Process reconstructs every sample, fanning the work out across the
// configured number of cores.
func (p *Pipeline) Process() error {
	if len(p.params.Samples) == 0 {
		return fmt.Errorf("no samples to process")
	}
	if err := os.MkdirAll(p.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	type outcome struct {
		result models.SampleResult
		err    error
	}

	workers := p.params.NumCores
	if workers < 1 {
		workers = 1
	}
	if workers > len(p.params.Samples) {
		workers = len(p.params.Samples)
	}

	jobs := make(chan models.Sample)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sample := range jobs {
				result, err := p.processSample(sample)
				outcomes <- outcome{result: result, err: err}
			}
		}()
	}
	go func() {
		for _, sample := range p.params.Samples {
			jobs <- sample
		}
		close(jobs)
		wg.Wait()
		close(outcomes)
	}()

	var firstErr error
	for out := range outcomes {
		if out.err != nil {
			logger.Log.Error("sample failed", zap.String("sample", out.result.ID), zap.Error(out.err))
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		p.results = append(p.results, out.result)
	}
	if firstErr != nil {
		return fmt.Errorf("sample processing failed: %w", firstErr)
	}

	p.logSummary()
	return nil
}

// processSample runs the distance field, fitting and subdivision stages for
// one sample and exports its meshes.
func (p *Pipeline) processSample(sample models.Sample) (models.SampleResult, error) {
	result := models.SampleResult{ID: sample.ID}
	log := logger.Log.With(zap.String("sample", sample.ID))

	sdf, label, err := p.loadDistanceField(sample)
	if err != nil {
		return result, fmt.Errorf("sample %s: %w", sample.ID, err)
	}

	sampleDir := filepath.Join(p.params.OutputDir, sample.ID)
	if err := os.MkdirAll(sampleDir, 0755); err != nil {
		return result, fmt.Errorf("sample %s: %w", sample.ID, err)
	}
	if p.params.SaveIntermediaryResults {
		viewer := visualization.NewViewer(sdf)
		if err := viewer.SaveSliceSequence("z", filepath.Join(sampleDir, "sdf_slices")); err != nil {
			log.Warn("failed to save distance-field slices", zap.Error(err))
		}
	}

	// Coarse registration: pull the template onto the zero level set.
	fit, err := fitting.Fit(p.template, sdf, p.params.Fitting)
	if err != nil {
		return result, fmt.Errorf("sample %s: fitting failed: %w", sample.ID, err)
	}
	result.Metrics.FitResidual = fit.Residual
	log.Info("fitted template",
		zap.Int("iterations", fit.Iterations),
		zap.Float64("residual", fit.Residual))
	if p.params.SaveIntermediaryResults {
		if err := mesh.Save(filepath.Join(sampleDir, "fitted_template.obj"), fit.Mesh); err != nil {
			log.Warn("failed to save fitted template", zap.Error(err))
		}
	}

	// Learned refinement across the precomputed levels.
	levelMeshes, err := p.net.Subdivide(fit.Mesh, p.levels)
	if err != nil {
		return result, fmt.Errorf("sample %s: subdivision failed: %w", sample.ID, err)
	}
	for l, m := range levelMeshes {
		result.LevelVerts = append(result.LevelVerts, m.NumVerts())
		result.LevelFaces = append(result.LevelFaces, m.NumFaces())
		if err := mesh.Save(filepath.Join(sampleDir, fmt.Sprintf("level_%02d.obj", l)), m); err != nil {
			return result, fmt.Errorf("sample %s: %w", sample.ID, err)
		}
		if p.params.SaveSTL {
			if err := mesh.SaveSTL(filepath.Join(sampleDir, fmt.Sprintf("level_%02d.stl", l)), m); err != nil {
				return result, fmt.Errorf("sample %s: %w", sample.ID, err)
			}
		}
	}

	final := levelMeshes[len(levelMeshes)-1]
	if result.Metrics.SurfaceResidual, err = metrics.SurfaceResidual(final, sdf); err != nil {
		return result, fmt.Errorf("sample %s: %w", sample.ID, err)
	}
	if label != nil {
		inside := sdf.Binarize(0) // 1 outside, 0 at or below the surface
		for i, d := range inside.Data {
			inside.Data[i] = 1 - d
		}
		dice, err := metrics.Dice(inside, label.Binarize(p.params.LabelThreshold), 0.5)
		if err != nil {
			log.Warn("failed to compute Dice overlap", zap.Error(err))
		} else {
			result.Metrics.Dice = dice
		}
	}

	log.Info("reconstructed sample",
		zap.Ints("levelFaces", result.LevelFaces),
		zap.Float64("surfaceResidual", result.Metrics.SurfaceResidual))
	return result, nil
}

// loadDistanceField returns the signed distance volume for a sample, and
// the label volume when one was supplied. A precomputed distance volume
// wins; otherwise the label is preprocessed (resampled, cropped, smoothed)
// and converted to a distance field, and the preprocessed label is the one
// returned so overlap metrics share the distance field's grid.
func (p *Pipeline) loadDistanceField(sample models.Sample) (sdf, label *voxel.Volume, err error) {
	if sample.LabelPath != "" {
		label, err = voxel.LoadRaw(sample.LabelPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load label volume: %w", err)
		}
	}
	if sample.SDFPath != "" {
		sdf, err = voxel.LoadRaw(sample.SDFPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load distance volume: %w", err)
		}
		return sdf, label, nil
	}
	if label == nil {
		return nil, nil, fmt.Errorf("sample has neither distance nor label volume")
	}

	if p.params.VoxelSpacing > 0 {
		s := p.params.VoxelSpacing
		label, err = label.Resample(s, s, s)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resample label volume: %w", err)
		}
	}
	if p.params.CropMargin > 0 {
		label, err = label.CropForeground(p.params.LabelThreshold, p.params.CropMargin)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to crop label volume: %w", err)
		}
	}
	if p.params.SmoothSigma > 0 {
		label = label.GaussianSmooth(p.params.SmoothSigma)
	}

	sdf, err = voxel.SignedDistanceField(label, p.params.LabelThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute distance field: %w", err)
	}
	return sdf, label, nil
}

// logSummary aggregates per-sample metrics once processing finishes.
func (p *Pipeline) logSummary() {
	if len(p.results) == 0 {
		return
	}
	fitRes := make([]float64, len(p.results))
	surfRes := make([]float64, len(p.results))
	for i, r := range p.results {
		fitRes[i] = r.Metrics.FitResidual
		surfRes[i] = r.Metrics.SurfaceResidual
	}
	logger.Log.Info("processing complete",
		zap.Int("samples", len(p.results)),
		zap.Float64("meanFitResidual", stat.Mean(fitRes, nil)),
		zap.Float64("meanSurfaceResidual", stat.Mean(surfRes, nil)))
}

// Results returns the per-sample outcomes in completion order.
func (p *Pipeline) Results() []models.SampleResult {
	return p.results
}

// Template returns the loaded template mesh.
func (p *Pipeline) Template() *mesh.Mesh {
	return p.template
}

// Network returns the subdivision network in use, e.g. for checkpointing.
func (p *Pipeline) Network() *gsn.Network {
	return p.net
}
