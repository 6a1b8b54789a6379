// Package config provides configuration loading and management for niftislice.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"niftislice/pkg/nifti"
	"niftislice/pkg/visualization"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Voxel loading parameters
	Loader struct {
		// MmapThresholdBytes is the payload size above which uncompressed
		// voxel data is memory-mapped instead of decoded
		MmapThresholdBytes int64 `yaml:"mmapThresholdBytes"`
	} `yaml:"loader"`

	// Export parameters
	Export struct {
		// Axis is the slicing axis; only 2 (axial) is supported
		Axis int `yaml:"axis"`

		// Format is the raster format: png, jpeg, tiff or bmp
		Format string `yaml:"format"`

		// JPEGQuality is used when Format is jpeg
		JPEGQuality int `yaml:"jpegQuality"`
	} `yaml:"export"`

	// Logging parameters
	Logging struct {
		// Level is a logrus level name
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Processing parameters
	Processing struct {
		// NumWorkers bounds how many volumes a batch processes at once
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Loader.MmapThresholdBytes = nifti.DefaultMmapThreshold

	cfg.Export.Axis = visualization.AxialAxis
	cfg.Export.Format = "png"
	cfg.Export.JPEGQuality = 90

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default

	return cfg
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Loader.MmapThresholdBytes < 0 {
		return fmt.Errorf("loader.mmapThresholdBytes must be non-negative, got %d", c.Loader.MmapThresholdBytes)
	}
	if _, err := visualization.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}
	if c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100 {
		return fmt.Errorf("export.jpegQuality must be in [1,100], got %d", c.Export.JPEGQuality)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("processing.numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	return nil
}

// ExportFormat returns the parsed export format
func (c *Config) ExportFormat() visualization.Format {
	f, _ := visualization.ParseFormat(c.Export.Format)
	return f
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
