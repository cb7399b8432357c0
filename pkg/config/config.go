// Package config provides configuration loading and management for vol2mesh.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use when processing
		// samples in parallel
		NumCores int `yaml:"numCores"`

		// VoxelSpacing is the isotropic spacing (mm) volumes are
		// resampled to before distance-field conversion
		VoxelSpacing float64 `yaml:"voxelSpacing"`

		// CropMargin is the margin in voxels kept around the labeled
		// foreground when cropping
		CropMargin int `yaml:"cropMargin"`

		// LabelThreshold separates foreground from background in
		// segmentation volumes
		LabelThreshold float64 `yaml:"labelThreshold"`

		// SmoothSigma is the Gaussian sigma (voxels) applied to image
		// volumes before intensity scaling; 0 disables smoothing
		SmoothSigma float64 `yaml:"smoothSigma"`
	} `yaml:"processing"`

	// Template fitting parameters
	Fitting struct {
		// Iterations is the number of gradient/smoothing rounds
		Iterations int `yaml:"iterations"`

		// Step scales the per-iteration displacement along the
		// distance-field gradient
		Step float64 `yaml:"step"`

		// SmoothWeight blends vertices toward their neighbor mean after
		// each gradient step
		SmoothWeight float64 `yaml:"smoothWeight"`

		// Tolerance stops fitting once the mean surface distance (mm)
		// falls below it; 0 disables early stopping
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"fitting"`

	// Subdivision network parameters
	Subdivision struct {
		// Levels is the number of subdivision rounds (0 means the
		// template is only deformed, never refined)
		Levels int `yaml:"levels"`

		// HiddenFeatures is the width of the message-passing layers'
		// feature transform
		HiddenFeatures int `yaml:"hiddenFeatures"`

		// Seed makes cold-start layer weights reproducible when no
		// checkpoint is supplied
		Seed int64 `yaml:"seed"`
	} `yaml:"subdivision"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save intermediary
		// processing results (distance-field slices, fitted template)
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// SaveSTL additionally exports each level's mesh as binary STL
		SaveSTL bool `yaml:"saveSTL"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// File enables rotating file output when non-empty
		File string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.VoxelSpacing = 8.0
	cfg.Processing.CropMargin = 1
	cfg.Processing.LabelThreshold = 0.5
	cfg.Processing.SmoothSigma = 0

	cfg.Fitting.Iterations = 100
	cfg.Fitting.Step = 0.5
	cfg.Fitting.SmoothWeight = 0.1
	cfg.Fitting.Tolerance = 0

	cfg.Subdivision.Levels = 2
	cfg.Subdivision.HiddenFeatures = 16
	cfg.Subdivision.Seed = 8

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.SaveSTL = true

	cfg.Logging.Level = "info"
	cfg.Logging.File = ""

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
