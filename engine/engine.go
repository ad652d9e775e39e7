// Package engine runs the per-frame particle-life pipeline: parameter
// snapshot, grid build and integration, trail/glow composite, optional
// capture, then the particle buffer flip.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/inkswarm/capture"
	"github.com/pthm-cable/inkswarm/components"
	"github.com/pthm-cable/inkswarm/device"
	"github.com/pthm-cable/inkswarm/gen"
	"github.com/pthm-cable/inkswarm/renderer"
	"github.com/pthm-cable/inkswarm/systems"
	"github.com/pthm-cable/inkswarm/telemetry"
)

// ErrDestroyed is returned by operations on a destroyed engine.
var ErrDestroyed = errors.New("engine destroyed")

// Frame delta bounds.
const (
	maxRawDelta = 50 * time.Millisecond
	MinDT       = 1.0 / 240
	MaxDT       = 1.0 / 30
)

// TimingTotal is the Stats.Timings key for the whole frame.
const TimingTotal = "total"

// Surface reports the drawable size. It is re-read every frame.
type Surface interface {
	Size() (w, h int)
}

// FixedSurface is a Surface of constant size.
type FixedSurface struct{ W, H int }

func (s FixedSurface) Size() (int, int) { return s.W, s.H }

// Stats describes one completed frame.
type Stats struct {
	PresetID   int
	PresetName string
	Profile    Profile
	Particles  int
	Species    int
	Width      int
	Height     int
	DT         float32
	Time       float32

	// Timings holds per-phase durations keyed by telemetry phase name,
	// plus TimingTotal.
	Timings map[string]time.Duration

	// Dropped is how many particles overflowed their grid cell.
	Dropped int
	// Captured is set when this frame scheduled a capture readback.
	Captured bool
}

// Frame is the result of one Step.
type Frame struct {
	HUD   string
	Stats Stats
}

// Engine owns the simulation state and the device resources it created.
type Engine struct {
	dev     *device.Device
	surface Surface
	opts    Options
	logger  *slog.Logger

	ctrl    *Controller
	store   *systems.ParticleStore
	grid    *systems.CellGrid
	integ   *systems.Integrator
	comp    *renderer.Compositor
	capture *capture.Pipeline
	pool    *pool
	scratch [][]uint32
	perf    *telemetry.PerfCollector

	simParams  *device.Buffer
	postParams *device.Buffer
	matrix     *device.Buffer
	palette    *device.Buffer

	lastNow         time.Duration
	hasLast         bool
	simTime         float32
	clearTrailsNext bool
	frames          int

	lost      chan struct{}
	done      chan struct{}
	fatal     error
	destroyed bool
}

// New builds the engine's buffers, seeds both particle buffers and applies
// the first preset.
func New(dev *device.Device, surface Surface, opts Options) (*Engine, error) {
	opts.normalize()
	stress := opts.stressParticles()
	capacity := max(opts.HeroParticles, stress)

	e := &Engine{
		dev:     dev,
		surface: surface,
		opts:    opts,
		logger:  opts.Logger.With("component", "engine"),
		ctrl:    NewController(opts.Seed, opts.SpeciesCount, opts.HeroParticles, stress),
		store:   systems.NewParticleStore(capacity),
		grid:    systems.NewCellGrid(opts.GridDim, opts.CellCap),
		pool:    newPool(opts.Workers, opts.ParallelThreshold),
		perf:    telemetry.NewPerfCollector(opts.PerfWindow),
		lost:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.integ = systems.NewIntegrator(e.grid)
	e.comp = renderer.NewCompositor(rowRunner{e.pool})
	e.capture = capture.New(dev, opts.Logger)
	e.scratch = make([][]uint32, e.pool.numWorkers)

	if err := e.init(); err != nil {
		e.release()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	e.ensureTargets()

	go e.watchDevice()

	e.logger.Info("engine created",
		"seed", e.ctrl.Seed(),
		"hero", opts.HeroParticles,
		"stress", stress,
		"species", e.ctrl.Species(),
		"grid", opts.GridDim,
		"cell_cap", opts.CellCap,
		"workers", e.pool.numWorkers,
	)
	return e, nil
}

// init creates the device buffers, seeds both particle buffers and binds
// the first preset.
func (e *Engine) init() error {
	var err error
	if e.simParams, err = e.dev.CreateBuffer("sim-params", components.SimParamsSize, device.UsageUniform|device.UsageCopyDst); err != nil {
		return err
	}
	if e.postParams, err = e.dev.CreateBuffer("post-params", components.PostParamsSize, device.UsageUniform|device.UsageCopyDst); err != nil {
		return err
	}
	if e.matrix, err = e.dev.CreateBuffer("interaction-matrix", components.MatrixSize, device.UsageStorage|device.UsageCopyDst); err != nil {
		return err
	}
	if e.palette, err = e.dev.CreateBuffer("palette", components.PaletteSize, device.UsageStorage|device.UsageCopyDst); err != nil {
		return err
	}

	a, b := e.ctrl.InitialSeeds()
	e.store.Seed(e.opts.SpeciesCount, a, b)

	return e.applyPreset(0)
}

// release stops the workers, closes the capture slot and destroys every
// buffer created so far.
func (e *Engine) release() {
	e.capture.Close()
	e.pool.stopWorkers()
	for _, b := range []*device.Buffer{e.simParams, e.postParams, e.matrix, e.palette} {
		if b != nil {
			b.Destroy()
			e.logger.Debug("buffer released", "label", b.Label())
		}
	}
}

// watchDevice forwards the device loss signal and rejects any capture that
// can no longer be served.
func (e *Engine) watchDevice() {
	select {
	case <-e.dev.Lost():
		err := e.dev.Err()
		e.logger.Error("device lost, engine is dead", "error", err)
		e.capture.Abort(fmt.Errorf("engine: %w", err))
		close(e.lost)
	case <-e.done:
	}
}

// Lost is closed once the device is lost. The engine cannot recover; the
// caller must build a new one on a new device.
func (e *Engine) Lost() <-chan struct{} { return e.lost }

// Step advances one frame at host timestamp now.
func (e *Engine) Step(now time.Duration) (Frame, error) {
	if e.destroyed {
		return Frame{}, ErrDestroyed
	}
	if e.fatal != nil {
		return Frame{}, e.fatal
	}
	if err := e.dev.Err(); err != nil {
		return Frame{}, e.fail(err)
	}

	e.perf.StartTick()

	// params
	e.perf.StartPhase(telemetry.PhaseParams)
	e.ensureTargets()
	w, h := e.comp.Size()
	gw, gh := e.comp.GlowSize()
	dt := e.frameDelta(now)
	e.simTime += dt

	preset := e.ctrl.Preset()
	sim := components.SimParams{
		ResX:         float32(w),
		ResY:         float32(h),
		Time:         e.simTime,
		DT:           dt,
		NumParticles: uint32(e.ctrl.ActiveParticles()),
		SpeciesCount: uint32(e.opts.SpeciesCount),
		GridDim:      uint32(e.opts.GridDim),
		CellCap:      uint32(e.opts.CellCap),
	}
	post := components.PostParams{
		ResX:         float32(w),
		ResY:         float32(h),
		GlowResX:     float32(gw),
		GlowResY:     float32(gh),
		TrailDecay:   preset.TrailDecay,
		Exposure:     preset.Exposure,
		GlowStrength: preset.GlowStrength,
	}
	if err := e.dev.WriteBuffer(e.simParams, 0, sim.Pack()); err != nil {
		return Frame{}, e.fail(err)
	}
	if err := e.dev.WriteBuffer(e.postParams, 0, post.Pack()); err != nil {
		return Frame{}, e.fail(err)
	}
	sim, post, err := e.boundParams()
	if err != nil {
		return Frame{}, e.fail(err)
	}
	e.prepareTrails()

	// compute
	e.perf.StartPhase(telemetry.PhaseCompute)
	cur, next := e.store.Roles()
	n := min(int(sim.NumParticles), len(cur))
	e.integ.BuildGrid(cur, n)
	e.pool.Run(n, func(worker, start, end int) {
		e.scratch[worker] = e.integ.IntegrateRange(cur, next, sim.DT, start, end, e.scratch[worker])
	})

	// trails
	e.perf.StartPhase(telemetry.PhaseTrails)
	e.comp.Begin()
	e.comp.Decay(post.TrailDecay)
	e.comp.Accumulate(next, n)

	e.perf.StartPhase(telemetry.PhaseGlow)
	e.comp.Glow()

	e.perf.StartPhase(telemetry.PhasePresent)
	presented := e.comp.Present(post.Exposure, post.GlowStrength)

	e.perf.StartPhase(telemetry.PhaseCapture)
	var cmds []device.Command
	captured := false
	if e.capture.Pending() {
		cmd, err := e.capture.Encode(presented, w, h)
		if err != nil {
			e.logger.Warn("capture encode failed", "error", err)
		} else if cmd != nil {
			cmds = append(cmds, cmd)
			captured = true
		}
	}

	e.perf.StartPhase(telemetry.PhaseSubmit)
	submitErr := e.dev.Submit(cmds...)
	e.capture.Submitted(submitErr)
	if submitErr != nil {
		if errors.Is(submitErr, device.ErrDeviceLost) {
			return Frame{}, e.fail(submitErr)
		}
		e.logger.Warn("capture submission failed", "error", submitErr)
	}

	// A held capture frame keeps both the particle and the trail roles, so
	// the next frame recomputes from the same state.
	hold := captured && e.opts.HoldFlipOnCapture
	if !hold {
		e.store.Swap()
	}
	e.comp.End(!hold)
	e.perf.EndTick()
	e.perf.RecordFrame()
	e.frames++

	last := e.perf.Last()
	timings := make(map[string]time.Duration, len(last.Phases)+1)
	for k, v := range last.Phases {
		timings[k] = v
	}
	timings[TimingTotal] = last.TickDuration

	stats := Stats{
		PresetID:   preset.ID,
		PresetName: preset.Name,
		Profile:    e.ctrl.Profile(),
		Particles:  n,
		Species:    int(sim.SpeciesCount),
		Width:      w,
		Height:     h,
		DT:         sim.DT,
		Time:       sim.Time,
		Timings:    timings,
		Dropped:    e.grid.Dropped(),
		Captured:   captured,
	}

	if e.opts.LogEvery > 0 && e.frames%e.opts.LogEvery == 0 {
		e.logger.Info("perf", "frame", e.frames, "stats", e.perf.Stats())
	}

	return Frame{HUD: FormatHUD(stats), Stats: stats}, nil
}

// boundParams decodes the parameter blocks the stages see.
func (e *Engine) boundParams() (components.SimParams, components.PostParams, error) {
	raw, err := e.simParams.Contents()
	if err != nil {
		return components.SimParams{}, components.PostParams{}, err
	}
	sim, err := components.UnpackSimParams(raw)
	if err != nil {
		return components.SimParams{}, components.PostParams{}, err
	}
	raw, err = e.postParams.Contents()
	if err != nil {
		return components.SimParams{}, components.PostParams{}, err
	}
	post, err := components.UnpackPostParams(raw)
	if err != nil {
		return components.SimParams{}, components.PostParams{}, err
	}
	return sim, post, nil
}

// frameDelta clamps the raw delta to [0, 50ms] and then to [MinDT, MaxDT].
// The first frame after construction or a profile switch uses MinDT.
func (e *Engine) frameDelta(now time.Duration) float32 {
	if !e.hasLast {
		e.lastNow = now
		e.hasLast = true
	}
	raw := min(max(now-e.lastNow, 0), maxRawDelta)
	e.lastNow = now

	dt := float32(raw.Seconds())
	return min(max(dt, MinDT), MaxDT)
}

// ensureTargets rebuilds trail and glow targets when the surface size
// changes.
func (e *Engine) ensureTargets() {
	w, h := e.surface.Size()
	if e.comp.Resize(w, h) {
		gw, gh := e.comp.GlowSize()
		cw, ch := e.comp.Size()
		e.logger.Info("render targets resized", "width", cw, "height", ch, "glow_width", gw, "glow_height", gh)
	}
}

// prepareTrails applies a scheduled trail clear before accumulation.
func (e *Engine) prepareTrails() {
	if e.clearTrailsNext {
		e.clearTrailsNext = false
		e.comp.ClearTrails()
	}
}

// fail records a fatal device error and rejects the capture slot with it.
func (e *Engine) fail(err error) error {
	if e.fatal == nil {
		e.fatal = fmt.Errorf("engine: %w", err)
		e.capture.Abort(e.fatal)
	}
	return e.fatal
}

// RequestCapture reserves the capture slot for the next presented frame.
// It fails immediately with capture.ErrCaptureInProgress when a capture is
// outstanding, and with the fatal error once the device is lost.
func (e *Engine) RequestCapture() (*capture.Future, error) {
	if e.destroyed {
		return nil, ErrDestroyed
	}
	if e.fatal != nil {
		return nil, e.fatal
	}
	if err := e.dev.Err(); err != nil {
		return nil, e.fail(err)
	}
	return e.capture.Request()
}

// SetProfile selects the load tier, reseeds both particle buffers, resets
// the clock and schedules one trail clear.
func (e *Engine) SetProfile(p Profile) {
	a, b := e.ctrl.SetProfile(p)
	e.store.Seed(e.opts.SpeciesCount, a, b)
	e.clearTrailsNext = true
	e.hasLast = false
	e.simTime = 0
	e.logger.Info("profile changed", "profile", e.ctrl.Profile().String(), "particles", e.ctrl.ActiveParticles())
}

// Profile returns the active profile.
func (e *Engine) Profile() Profile { return e.ctrl.Profile() }

// SetPreset clamps id into range and regenerates the matrix and palette.
func (e *Engine) SetPreset(id int) error {
	if e.destroyed {
		return ErrDestroyed
	}
	if err := e.applyPreset(id); err != nil {
		return fmt.Errorf("setting preset %d: %w", id, err)
	}
	p := e.ctrl.Preset()
	e.logger.Info("preset changed", "requested", id, "preset", p.ID, "name", p.Name)
	return nil
}

// applyPreset writes the preset's matrix and palette to their buffers and
// rebinds both stages from the written bytes.
func (e *Engine) applyPreset(id int) error {
	e.ctrl.SetPreset(id)
	m := e.ctrl.Matrix()
	pal := e.ctrl.Palette()

	if err := e.dev.WriteBuffer(e.matrix, 0, m.Bytes()); err != nil {
		return err
	}
	if err := e.dev.WriteBuffer(e.palette, 0, pal.Bytes()); err != nil {
		return err
	}

	raw, err := e.matrix.Contents()
	if err != nil {
		return err
	}
	bound, err := components.DecodeInteractionMatrix(raw)
	if err != nil {
		return err
	}
	e.integ.SetMatrix(bound)

	raw, err = e.palette.Contents()
	if err != nil {
		return err
	}
	return e.comp.BindPalette(e.ctrl.PresetID(), raw)
}

// Preset returns the active preset id.
func (e *Engine) Preset() int { return e.ctrl.PresetID() }

// Presets lists every preset.
func (e *Engine) Presets() []gen.PresetInfo { return gen.Presets() }

// ActiveParticles returns the particle count for the active profile.
func (e *Engine) ActiveParticles() int { return e.ctrl.ActiveParticles() }

// Particles returns the active prefix of the current particle buffer.
func (e *Engine) Particles() []components.Particle {
	cur := e.store.Current()
	return cur[:min(e.ctrl.ActiveParticles(), len(cur))]
}

// Presented returns the last presented RGBA8 frame. The slice is reused by
// the next Step.
func (e *Engine) Presented() []byte { return e.comp.Frame() }

// Size returns the current render target size.
func (e *Engine) Size() (w, h int) { return e.comp.Size() }

// Perf returns the rolling frame timing collector.
func (e *Engine) Perf() *telemetry.PerfCollector { return e.perf }

// Destroy releases the engine's buffers and workers and rejects a pending
// capture. An in-flight readback still resolves through the device.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	close(e.done)
	e.release()
	e.logger.Info("engine destroyed", "frames", e.frames)
}
