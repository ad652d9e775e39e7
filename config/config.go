// Package config provides configuration loading and access for the engine.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all engine configuration parameters.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Sim       SimConfig       `yaml:"sim"`
	Capture   CaptureConfig   `yaml:"capture"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// SimConfig holds simulation sizing and seeding.
type SimConfig struct {
	Seed              uint32 `yaml:"seed"`
	HeroParticles     int    `yaml:"hero_particles"`
	StressFloor       int    `yaml:"stress_floor"` // stress count is max(2*hero, this)
	SpeciesCount      int    `yaml:"species_count"`
	GridDim           int    `yaml:"grid_dim"`
	CellCap           int    `yaml:"cell_cap"`
	Workers           int    `yaml:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int    `yaml:"parallel_threshold"` // below this, stages run serially
}

// CaptureConfig holds readback settings.
type CaptureConfig struct {
	RowAlignment int    `yaml:"row_alignment"`
	HoldFlip     bool   `yaml:"hold_flip"`
	Dir          string `yaml:"dir"`
}

// TelemetryConfig holds performance reporting settings.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"`
	LogEvery   int `yaml:"log_every"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	StressParticles int // max(2*hero, stress floor)
	MaxParticles    int // buffer capacity, max(hero, stress)
}

// Species and alignment bounds.
const (
	MinSpecies = 2
	MaxSpecies = 10
)

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// Defaults returns the embedded defaults with derived values computed.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// computeDerived clamps out-of-range values and calculates derived ones.
// Bad parameters are clamped, never rejected.
func (c *Config) computeDerived() {
	c.Sim.HeroParticles = max(1, c.Sim.HeroParticles)
	c.Sim.StressFloor = max(1, c.Sim.StressFloor)
	c.Sim.SpeciesCount = min(max(c.Sim.SpeciesCount, MinSpecies), MaxSpecies)
	c.Sim.GridDim = max(1, c.Sim.GridDim)
	c.Sim.CellCap = max(1, c.Sim.CellCap)
	c.Sim.Workers = max(0, c.Sim.Workers)
	c.Sim.ParallelThreshold = max(1, c.Sim.ParallelThreshold)

	// row alignment must be a positive multiple of one RGBA8 texel
	a := max(4, c.Capture.RowAlignment)
	c.Capture.RowAlignment = (a + 3) / 4 * 4

	if c.Telemetry.PerfWindow < 1 {
		c.Telemetry.PerfWindow = 120
	}
	c.Telemetry.LogEvery = max(0, c.Telemetry.LogEvery)

	c.Derived.StressParticles = max(2*c.Sim.HeroParticles, c.Sim.StressFloor)
	c.Derived.MaxParticles = max(c.Sim.HeroParticles, c.Derived.StressParticles)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
