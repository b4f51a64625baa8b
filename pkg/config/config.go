// Package config provides configuration loading and management for
// spotdecomp. It handles loading configuration from YAML files and
// provides default values.
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
	// Geometry parameters, all in nanometers
	Geometry struct {
		// VoxelZ is the physical height of one voxel along the z axis.
		// Leave at 0 for 2-d images.
		VoxelZ float64 `yaml:"voxelZ"`

		// VoxelYX is the physical size of one pixel in the yx plane
		VoxelYX float64 `yaml:"voxelYX"`

		// PSFZ is the theoretical PSF spread along z. Leave at 0 for 2-d
		// images.
		PSFZ float64 `yaml:"psfZ"`

		// PSFYX is the theoretical PSF spread in the yx plane
		PSFYX float64 `yaml:"psfYX"`
	} `yaml:"geometry"`

	// Detection parameters for the LoG single-spot detector
	Detection struct {
		// MinDistance is the minimum spacing in pixels between two peaks
		MinDistance int `yaml:"minDistance"`

		// Threshold removes peaks below this intensity
		Threshold float64 `yaml:"threshold"`

		// RelativeThreshold interprets Threshold as a fraction of the
		// image maximum
		RelativeThreshold bool `yaml:"relativeThreshold"`
	} `yaml:"detection"`

	// Decomposition parameters for the dense region engine
	Decomposition struct {
		// Alpha is the reference spot intensity percentile, in [0, 1]
		Alpha float64 `yaml:"alpha"`

		// Beta scales the dense region intensity threshold
		Beta float64 `yaml:"beta"`

		// Gamma scales the background estimation blur; 0 disables it
		Gamma float64 `yaml:"gamma"`

		// Limit caps the number of Gaussians fitted per region
		Limit int `yaml:"limit"`
	} `yaml:"decomposition"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel
		// region fitting
		NumCores int `yaml:"numCores"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Typical widefield smFISH acquisition geometry
	cfg.Geometry.VoxelZ = 0
	cfg.Geometry.VoxelYX = 100
	cfg.Geometry.PSFZ = 0
	cfg.Geometry.PSFYX = 200

	// Set default detection parameters
	cfg.Detection.MinDistance = 1
	cfg.Detection.Threshold = 0.5
	cfg.Detection.RelativeThreshold = true

	// Set default decomposition parameters
	cfg.Decomposition.Alpha = 0.5
	cfg.Decomposition.Beta = 1
	cfg.Decomposition.Gamma = 5
	cfg.Decomposition.Limit = 1000

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
