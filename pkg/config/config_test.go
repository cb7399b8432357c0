package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.NumCores < 1 {
		t.Errorf("default core count %d, want at least 1", cfg.Processing.NumCores)
	}
	if cfg.Processing.VoxelSpacing != 8.0 {
		t.Errorf("default voxel spacing %v, want 8", cfg.Processing.VoxelSpacing)
	}
	if cfg.Fitting.Iterations != 100 || cfg.Fitting.Step != 0.5 {
		t.Errorf("unexpected fitting defaults: %+v", cfg.Fitting)
	}
	if cfg.Subdivision.Levels != 2 || cfg.Subdivision.HiddenFeatures != 16 {
		t.Errorf("unexpected subdivision defaults: %+v", cfg.Subdivision)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level %q, want info", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Subdivision.Levels != DefaultConfig().Subdivision.Levels {
		t.Error("missing file must fall back to defaults")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Processing.VoxelSpacing = 4
	cfg.Subdivision.Levels = 3
	cfg.Logging.Level = "debug"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Processing.VoxelSpacing != 4 {
		t.Errorf("voxel spacing %v after round trip, want 4", loaded.Processing.VoxelSpacing)
	}
	if loaded.Subdivision.Levels != 3 {
		t.Errorf("subdivision levels %d after round trip, want 3", loaded.Subdivision.Levels)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("log level %q after round trip, want debug", loaded.Logging.Level)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("subdivision:\n  levels: 4\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Subdivision.Levels != 4 {
		t.Errorf("overridden levels %d, want 4", cfg.Subdivision.Levels)
	}
	// Untouched sections keep their defaults.
	if cfg.Fitting.Iterations != 100 {
		t.Errorf("fitting iterations %d, want default 100", cfg.Fitting.Iterations)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("subdivision: [unclosed"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}
