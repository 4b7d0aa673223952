// Package config provides configuration loading and management for the
// isophote fitting tool. It handles loading configuration from YAML files
// and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the fit configuration loaded from YAML
type Config struct {
	// Fit parameters controlling the isophote sequence
	Fit struct {
		// SMA0 is the starting semi-major axis in pixels
		SMA0 float64 `yaml:"sma0"`

		// MinSMA and MaxSMA bound the radial walk; MinSMA of 0 ends
		// the walk with the central pixel record
		MinSMA float64 `yaml:"minSma"`
		MaxSMA float64 `yaml:"maxSma"`

		// Step advances the semi-major axis between isophotes
		Step float64 `yaml:"step"`

		// LinearGrowth switches the step from relative to additive
		LinearGrowth bool `yaml:"linearGrowth"`

		// Convergence scales the harmonic-amplitude stopping criterion
		Convergence float64 `yaml:"convergence"`

		// MinIterations and MaxIterations bound each isophote fit
		MinIterations int `yaml:"minIterations"`
		MaxIterations int `yaml:"maxIterations"`

		// FlaggedFraction is the minimum acceptable fraction of
		// unflagged sample points per isophote
		FlaggedFraction float64 `yaml:"flaggedFraction"`

		// MaxGradientError is the largest acceptable relative error
		// on the local intensity gradient
		MaxGradientError float64 `yaml:"maxGradientError"`

		// Integrator selects the pixel integration algorithm:
		// bilinear, nearest_neighbor, mean, or median
		Integrator string `yaml:"integrator"`

		// MinIntensity stops the outward walk below this level
		MinIntensity float64 `yaml:"minIntensity"`
	} `yaml:"fit"`

	// Geometry parameters seeding the first isophote
	Geometry struct {
		// X0, Y0 is the initial ellipse center; image center when 0
		X0 float64 `yaml:"x0"`
		Y0 float64 `yaml:"y0"`

		// EPS is the initial ellipticity
		EPS float64 `yaml:"eps"`

		// PA is the initial position angle in degrees
		PA float64 `yaml:"pa"`

		// FixCenter, FixEPS, FixPA hold parameters fixed during fitting
		FixCenter bool `yaml:"fixCenter"`
		FixEPS    bool `yaml:"fixEps"`
		FixPA     bool `yaml:"fixPa"`
	} `yaml:"geometry"`

	// Clipping parameters for outlier rejection during sampling
	Clipping struct {
		// Sigma is the clipping threshold in standard deviations
		Sigma float64 `yaml:"sigma"`

		// Iterations is the number of clipping passes (0 disables)
		Iterations int `yaml:"iterations"`
	} `yaml:"clipping"`

	// Output parameters
	Output struct {
		// Columns selects the exported table columns: main, all, or a
		// comma-separated list of column names
		Columns string `yaml:"columns"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default fit parameters, matching the classical task defaults
	cfg.Fit.SMA0 = 10.0
	cfg.Fit.Step = 0.1
	cfg.Fit.Convergence = 0.05
	cfg.Fit.MinIterations = 10
	cfg.Fit.MaxIterations = 50
	cfg.Fit.FlaggedFraction = 0.7
	cfg.Fit.MaxGradientError = 0.5
	cfg.Fit.Integrator = "bilinear"

	// Set default geometry parameters
	cfg.Geometry.EPS = 0.2

	// Set default clipping parameters
	cfg.Clipping.Sigma = 3.0
	cfg.Clipping.Iterations = 0

	// Set default output parameters
	cfg.Output.Columns = "main"
	cfg.Output.Verbose = true

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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
