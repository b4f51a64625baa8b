package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the default parameter values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Geometry.VoxelYX != 100 || cfg.Geometry.PSFYX != 200 {
		t.Errorf("Unexpected default geometry: voxel %f, psf %f",
			cfg.Geometry.VoxelYX, cfg.Geometry.PSFYX)
	}
	if cfg.Geometry.VoxelZ != 0 || cfg.Geometry.PSFZ != 0 {
		t.Errorf("Default geometry should be 2-d, got z voxel %f, z psf %f",
			cfg.Geometry.VoxelZ, cfg.Geometry.PSFZ)
	}
	if cfg.Detection.MinDistance != 1 || !cfg.Detection.RelativeThreshold {
		t.Errorf("Unexpected default detection parameters: %+v", cfg.Detection)
	}
	if cfg.Decomposition.Alpha != 0.5 || cfg.Decomposition.Beta != 1 ||
		cfg.Decomposition.Gamma != 5 || cfg.Decomposition.Limit != 1000 {
		t.Errorf("Unexpected default decomposition parameters: %+v", cfg.Decomposition)
	}
	if cfg.Processing.NumCores < 1 {
		t.Errorf("Default core count should be at least 1, got %d", cfg.Processing.NumCores)
	}
}

// TestLoadConfigMissingFile verifies that a missing file yields the defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("A missing config file should not fail: %v", err)
	}
	if cfg.Geometry.VoxelYX != DefaultConfig().Geometry.VoxelYX {
		t.Errorf("Expected default values for a missing file")
	}
}

// TestSaveLoadRoundTrip verifies that a saved configuration loads back
// unchanged
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Geometry.VoxelZ = 300
	cfg.Geometry.PSFZ = 600
	cfg.Decomposition.Gamma = 0
	cfg.Processing.Verbose = false

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Geometry.VoxelZ != 300 || loaded.Geometry.PSFZ != 600 {
		t.Errorf("Geometry did not round trip: %+v", loaded.Geometry)
	}
	if loaded.Decomposition.Gamma != 0 {
		t.Errorf("Gamma did not round trip: %f", loaded.Decomposition.Gamma)
	}
	if loaded.Processing.Verbose {
		t.Error("Verbose did not round trip")
	}
}

// TestLoadConfigPartialFile verifies that fields absent from the file keep
// their defaults
func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	partial := "decomposition:\n  alpha: 0.7\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatalf("Failed to write partial config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Decomposition.Alpha != 0.7 {
		t.Errorf("Expected alpha 0.7 from the file, got %f", cfg.Decomposition.Alpha)
	}
	if cfg.Decomposition.Beta != 1 || cfg.Geometry.VoxelYX != 100 {
		t.Errorf("Fields absent from the file should keep their defaults")
	}
}

// TestCreateDefaultConfigFile verifies the bootstrap helper
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotdecomp.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create default config file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}
