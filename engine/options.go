package engine

import (
	"log/slog"

	"github.com/pthm-cable/inkswarm/config"
)

// Options sizes and seeds an Engine.
type Options struct {
	Seed          uint32
	HeroParticles int
	// StressFloor is the minimum stress count; stress is max(2*hero, floor).
	StressFloor  int
	SpeciesCount int
	GridDim      int
	CellCap      int

	// Workers is the stage worker count; 0 uses GOMAXPROCS.
	Workers           int
	ParallelThreshold int

	// HoldFlipOnCapture skips the particle buffer flip on frames that
	// schedule a capture, so the next frame integrates from the same state.
	HoldFlipOnCapture bool

	PerfWindow int
	// LogEvery logs rolling perf stats every N frames; 0 disables.
	LogEvery int

	Logger *slog.Logger
}

// DefaultOptions returns the stock engine sizing.
func DefaultOptions() Options {
	return Options{
		Seed:              1337,
		HeroParticles:     30000,
		StressFloor:       80000,
		SpeciesCount:      6,
		GridDim:           128,
		CellCap:           16,
		ParallelThreshold: 2048,
		PerfWindow:        120,
	}
}

// OptionsFromConfig maps a loaded config onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Seed:              cfg.Sim.Seed,
		HeroParticles:     cfg.Sim.HeroParticles,
		StressFloor:       cfg.Sim.StressFloor,
		SpeciesCount:      cfg.Sim.SpeciesCount,
		GridDim:           cfg.Sim.GridDim,
		CellCap:           cfg.Sim.CellCap,
		Workers:           cfg.Sim.Workers,
		ParallelThreshold: cfg.Sim.ParallelThreshold,
		HoldFlipOnCapture: cfg.Capture.HoldFlip,
		PerfWindow:        cfg.Telemetry.PerfWindow,
		LogEvery:          cfg.Telemetry.LogEvery,
	}
}

// normalize clamps out-of-range values.
func (o *Options) normalize() {
	o.HeroParticles = max(1, o.HeroParticles)
	o.StressFloor = max(1, o.StressFloor)
	o.SpeciesCount = min(max(o.SpeciesCount, config.MinSpecies), config.MaxSpecies)
	o.GridDim = max(1, o.GridDim)
	o.CellCap = max(1, o.CellCap)
	o.Workers = max(0, o.Workers)
	o.ParallelThreshold = max(1, o.ParallelThreshold)
	o.LogEvery = max(0, o.LogEvery)
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// stressParticles is max(2*hero, floor).
func (o *Options) stressParticles() int {
	return max(2*o.HeroParticles, o.StressFloor)
}
