package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"vol2mesh/internal/logger"
	"vol2mesh/internal/models"
	"vol2mesh/pkg/config"
	"vol2mesh/pkg/fitting"
	"vol2mesh/pkg/gsn"
	"vol2mesh/pkg/reconstruction"
)

func main() {
	inputDir := flag.String("input", "", "Directory containing sample volumes (<id>_sdf.vvol and/or <id>_label.vvol)")
	templatePath := flag.String("template", "", "Path to the template mesh (OBJ)")
	checkpointPath := flag.String("checkpoint", "", "Path to subdivision-network weights (optional)")
	saveCheckpoint := flag.String("save-checkpoint", "", "Write the network weights after processing (optional)")
	outputDir := flag.String("output", "reconstructed_meshes", "Directory for reconstructed meshes")
	configPath := flag.String("config", "vol2mesh.yaml", "Path to the YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputDir == "" || *templatePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	samples, err := discoverSamples(*inputDir)
	if err != nil {
		logger.Log.Fatal("failed to discover samples", zap.Error(err))
	}
	if len(samples) == 0 {
		logger.Log.Fatal("no sample volumes found", zap.String("input", *inputDir))
	}
	logger.Log.Info("discovered samples", zap.Int("count", len(samples)))

	params := &reconstruction.Params{
		TemplatePath:      *templatePath,
		CheckpointPath:    *checkpointPath,
		Samples:           samples,
		OutputDir:         *outputDir,
		NumCores:          cfg.Processing.NumCores,
		SubdivisionLevels: cfg.Subdivision.Levels,
		HiddenFeatures:    cfg.Subdivision.HiddenFeatures,
		Seed:              cfg.Subdivision.Seed,
		Fitting: fitting.Params{
			Iterations:   cfg.Fitting.Iterations,
			Step:         cfg.Fitting.Step,
			SmoothWeight: cfg.Fitting.SmoothWeight,
			Tolerance:    cfg.Fitting.Tolerance,
		},
		LabelThreshold:          float32(cfg.Processing.LabelThreshold),
		VoxelSpacing:            cfg.Processing.VoxelSpacing,
		CropMargin:              cfg.Processing.CropMargin,
		SmoothSigma:             cfg.Processing.SmoothSigma,
		SaveSTL:                 cfg.Output.SaveSTL,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
	}

	pipeline, err := reconstruction.NewPipeline(params)
	if err != nil {
		logger.Log.Fatal("failed to initialize pipeline", zap.Error(err))
	}

	start := time.Now()
	if err := pipeline.Process(); err != nil {
		logger.Log.Fatal("reconstruction failed", zap.Error(err))
	}
	elapsed := time.Since(start)

	if *saveCheckpoint != "" {
		if err := gsn.Save(*saveCheckpoint, pipeline.Network()); err != nil {
			logger.Log.Fatal("failed to save checkpoint", zap.Error(err))
		}
		logger.Log.Info("saved network weights", zap.String("path", *saveCheckpoint))
	}

	fmt.Printf("\nReconstruction completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Meshes written to: %s\n\n", *outputDir)
	fmt.Printf("%-20s %14s %18s %8s\n", "Sample", "Fit residual", "Surface residual", "Dice")
	for _, r := range pipeline.Results() {
		fmt.Printf("%-20s %14.4f %18.4f %8.3f\n",
			r.ID, r.Metrics.FitResidual, r.Metrics.SurfaceResidual, r.Metrics.Dice)
	}
}

// discoverSamples scans the input directory for raw volume files and groups
// them per sample ID. A sample may supply a precomputed distance field
// (<id>_sdf.vvol), a segmentation (<id>_label.vvol), or both.
func discoverSamples(dir string) ([]models.Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Sample)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".vvol") {
			continue
		}
		base := strings.TrimSuffix(name, ".vvol")
		var id, kind string
		switch {
		case strings.HasSuffix(base, "_sdf"):
			id, kind = strings.TrimSuffix(base, "_sdf"), "sdf"
		case strings.HasSuffix(base, "_label"):
			id, kind = strings.TrimSuffix(base, "_label"), "label"
		default:
			id, kind = base, "sdf"
		}
		s, ok := byID[id]
		if !ok {
			s = &models.Sample{ID: id}
			byID[id] = s
		}
		path := filepath.Join(dir, name)
		if kind == "sdf" {
			s.SDFPath = path
		} else {
			s.LabelPath = path
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	samples := make([]models.Sample, 0, len(ids))
	for _, id := range ids {
		samples = append(samples, *byID[id])
	}
	return samples, nil
}
