package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/inkswarm/capture"
	"github.com/pthm-cable/inkswarm/components"
	"github.com/pthm-cable/inkswarm/device"
	"github.com/pthm-cable/inkswarm/gen"
)

const frameStep = 16 * time.Millisecond

func smallOptions() Options {
	opts := DefaultOptions()
	opts.HeroParticles = 600
	opts.StressFloor = 1500
	opts.GridDim = 16
	opts.Workers = 3
	opts.ParallelThreshold = 100
	return opts
}

func newTestEngine(t *testing.T, opts Options, manual bool) (*Engine, *device.Device) {
	t.Helper()
	dev := device.New(device.Options{ManualPoll: manual})
	e, err := New(dev, FixedSurface{W: 64, H: 48}, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		e.Destroy()
		dev.Destroy()
	})
	return e, dev
}

func run(t *testing.T, e *Engine, frames int, start time.Duration) time.Duration {
	t.Helper()
	now := start
	for i := 0; i < frames; i++ {
		if _, err := e.Step(now); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		now += frameStep
	}
	return now
}

func TestStressCountFloor(t *testing.T) {
	opts := DefaultOptions()
	opts.HeroParticles = 30000
	dev := device.New(device.Options{ManualPoll: true})
	defer dev.Destroy()
	e, err := New(dev, FixedSurface{W: 8, H: 8}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Destroy()

	e.SetProfile(ProfileHero)
	if got := e.ActiveParticles(); got != 30000 {
		t.Errorf("hero particles = %d, want 30000", got)
	}
	e.SetProfile(ProfileStress)
	if got := e.ActiveParticles(); got != 80000 {
		t.Errorf("stress particles = %d, want 80000", got)
	}
	if e.Profile() != ProfileStress {
		t.Errorf("Profile() = %v, want stress", e.Profile())
	}
}

func TestSetPresetClamps(t *testing.T) {
	e, _ := newTestEngine(t, smallOptions(), true)
	tests := []struct {
		id, want int
	}{
		{-5, 0},
		{999, gen.NumPresets - 1},
		{2, 2},
	}
	for _, tt := range tests {
		if err := e.SetPreset(tt.id); err != nil {
			t.Fatalf("SetPreset(%d): %v", tt.id, err)
		}
		if got := e.Preset(); got != tt.want {
			t.Errorf("SetPreset(%d): Preset() = %d, want %d", tt.id, got, tt.want)
		}
		want := gen.InteractionMatrix(1337, tt.want)
		if got := e.integ.Matrix(); got != want {
			t.Errorf("SetPreset(%d): bound matrix differs from generated", tt.id)
		}
	}
	if n := len(e.Presets()); n != gen.NumPresets {
		t.Errorf("len(Presets()) = %d, want %d", n, gen.NumPresets)
	}
}

func TestDeterministicRuns(t *testing.T) {
	a, _ := newTestEngine(t, smallOptions(), true)
	b, _ := newTestEngine(t, smallOptions(), true)

	if !bytes.Equal(components.EncodeParticles(a.Particles()), components.EncodeParticles(b.Particles())) {
		t.Fatal("initial particle buffers differ")
	}

	run(t, a, 10, 0)
	run(t, b, 10, 0)

	if !bytes.Equal(components.EncodeParticles(a.Particles()), components.EncodeParticles(b.Particles())) {
		t.Error("particle buffers differ after 10 frames")
	}
	if !bytes.Equal(a.Presented(), b.Presented()) {
		t.Error("presented frames differ after 10 frames")
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	par := smallOptions()
	ser := smallOptions()
	ser.Workers = 1

	a, _ := newTestEngine(t, par, true)
	b, _ := newTestEngine(t, ser, true)
	run(t, a, 5, 0)
	run(t, b, 5, 0)

	if !bytes.Equal(components.EncodeParticles(a.Particles()), components.EncodeParticles(b.Particles())) {
		t.Error("parallel and serial integration diverged")
	}
	if !bytes.Equal(a.Presented(), b.Presented()) {
		t.Error("parallel and serial composite diverged")
	}
}

func TestInvariantsAfterFrames(t *testing.T) {
	e, _ := newTestEngine(t, smallOptions(), true)
	run(t, e, 20, 0)
	for i, p := range e.Particles() {
		if p.Pos.X < 0 || p.Pos.X >= 1 || p.Pos.Y < 0 || p.Pos.Y >= 1 {
			t.Fatalf("particle %d position %v outside [0,1)", i, p.Pos)
		}
		if s := math.Sqrt(float64(p.Vel.LenSq())); s > 1+1e-6 {
			t.Fatalf("particle %d speed %v > 1", i, s)
		}
	}
}

func TestStepStatsAndHUD(t *testing.T) {
	e, _ := newTestEngine(t, smallOptions(), true)
	f, err := e.Step(0)
	if err != nil {
		t.Fatal(err)
	}
	s := f.Stats
	if s.PresetName != "Ink Vortex" || s.Profile != ProfileHero || s.Particles != 600 || s.Width != 64 || s.Height != 48 {
		t.Errorf("stats = %+v", s)
	}
	for _, k := range []string{"params", "compute", "trails", "glow", "present", "capture", "submit", TimingTotal} {
		if _, ok := s.Timings[k]; !ok {
			t.Errorf("timing %q missing", k)
		}
	}
	want := "Preset: Ink Vortex · Profile hero · Particles 600 · Species 6 · 64×48"
	if f.HUD != want {
		t.Errorf("HUD = %q, want %q", f.HUD, want)
	}
	if len(e.Presented()) != 64*48*4 {
		t.Errorf("len(Presented) = %d", len(e.Presented()))
	}
}

func TestHUDGroupsParticleCount(t *testing.T) {
	hud := FormatHUD(Stats{PresetName: "Neon Kelp", Profile: ProfileStress, Particles: 80000, Species: 6, Width: 1920, Height: 1080})
	if !strings.Contains(hud, "Particles 80,000") {
		t.Errorf("HUD %q lacks grouped count", hud)
	}
	if !strings.HasSuffix(hud, "1920×1080") {
		t.Errorf("HUD %q: resolution should not be grouped", hud)
	}
}

func TestFrameDeltaClamping(t *testing.T) {
	e, _ := newTestEngine(t, smallOptions(), true)
	tests := []struct {
		name string
		now  time.Duration
		want float32
	}{
		{"first frame", 5 * time.Second, MinDT},
		{"normal", 5*time.Second + 10*time.Millisecond, 0.010},
		{"tiny", 5*time.Second + 11*time.Millisecond, MinDT},
		{"long stall", 9 * time.Second, MaxDT},
		{"backwards", 8 * time.Second, MinDT},
	}
	for _, tt := range tests {
		f, err := e.Step(tt.now)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(float64(f.Stats.DT-tt.want)) > 1e-6 {
			t.Errorf("%s: dt = %v, want %v", tt.name, f.Stats.DT, tt.want)
		}
	}
}

func TestProfileSwitchResets(t *testing.T) {
	e, _ := newTestEngine(t, smallOptions(), true)
	run(t, e, 5, time.Second)

	e.SetProfile(ProfileStress)
	if !e.clearTrailsNext {
		t.Fatal("profile switch did not schedule a trail clear")
	}
	e.prepareTrails()
	for i := 0; i < 2; i++ {
		for k, v := range e.comp.Trail(i).Pix {
			if k%4 != 3 && v != 0 {
				t.Fatalf("trail %d channel %d = %v before accumulate", i, k, v)
			}
		}
	}

	f, err := e.Step(10 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if f.Stats.DT != MinDT {
		t.Errorf("dt after switch = %v, want %v", f.Stats.DT, MinDT)
	}
	if f.Stats.Time != MinDT {
		t.Errorf("sim time after switch = %v, want %v", f.Stats.Time, MinDT)
	}
	if f.Stats.Particles != 1500 {
		t.Errorf("particles = %d, want 1500", f.Stats.Particles)
	}
}

func TestProfileReseedDistinct(t *testing.T) {
	e, _ := newTestEngine(t, smallOptions(), true)
	e.SetProfile(ProfileHero)
	hero := components.EncodeParticles(e.store.Current())
	e.SetProfile(ProfileStress)
	stress := components.EncodeParticles(e.store.Current())
	if bytes.Equal(hero, stress) {
		t.Error("hero and stress reseeds are identical")
	}
	e.SetProfile(ProfileHero)
	if !bytes.Equal(hero, components.EncodeParticles(e.store.Current())) {
		t.Error("hero reseed is not reproducible")
	}
}

func TestCaptureThroughStep(t *testing.T) {
	e, dev := newTestEngine(t, smallOptions(), true)
	now := run(t, e, 3, 0)

	fut, err := e.RequestCapture()
	if err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	if _, err := e.RequestCapture(); !errors.Is(err, capture.ErrCaptureInProgress) {
		t.Fatalf("second request while pending: %v", err)
	}

	f, err := e.Step(now)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Stats.Captured {
		t.Fatal("frame did not schedule the capture")
	}
	want := bytes.Clone(e.Presented())

	// In flight: still rejected, and frames keep running.
	if _, err := e.RequestCapture(); !errors.Is(err, capture.ErrCaptureInProgress) {
		t.Fatalf("request while in flight: %v", err)
	}
	if _, err := e.Step(now + frameStep); err != nil {
		t.Fatalf("Step during in-flight capture: %v", err)
	}

	dev.Poll()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	img, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if img.Width != 64 || img.Height != 48 {
		t.Errorf("capture size = %dx%d", img.Width, img.Height)
	}
	if !bytes.Equal(img.Pix, want) {
		t.Error("captured pixels differ from the presented frame")
	}
}

func TestCaptureFailureKeepsRunning(t *testing.T) {
	e, dev := newTestEngine(t, smallOptions(), true)
	dev.FailNextMap(errors.New("readback failed"))

	fut, err := e.RequestCapture()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(0); err != nil {
		t.Fatal(err)
	}
	dev.Poll()
	<-fut.Done()
	if _, err := fut.Result(); err == nil {
		t.Fatal("expected capture error")
	}
	if _, err := e.Step(frameStep); err != nil {
		t.Errorf("Step after capture failure: %v", err)
	}
}

func TestCaptureFlipOrdering(t *testing.T) {
	tests := []struct {
		name     string
		hold     bool
		wantGens uint64
	}{
		{"flip on capture frame", false, 4},
		{"hold flip on capture frame", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := smallOptions()
			opts.HoldFlipOnCapture = tt.hold
			e, dev := newTestEngine(t, opts, true)

			now := run(t, e, 2, 0)
			before := components.EncodeParticles(e.Particles())
			pingBefore := e.comp.TrailPing()

			if _, err := e.RequestCapture(); err != nil {
				t.Fatal(err)
			}
			now = run(t, e, 1, now)
			after := components.EncodeParticles(e.Particles())
			if held := e.comp.TrailPing() == pingBefore; held != tt.hold {
				t.Errorf("trail ping kept across capture frame = %v, want %v", held, tt.hold)
			}
			dev.Poll()
			run(t, e, 1, now)

			if got := e.store.Generation(); got != tt.wantGens {
				t.Errorf("generation = %d, want %d", got, tt.wantGens)
			}
			// Holding the flip leaves the authoritative buffer as it was
			// before the capture frame.
			if same := bytes.Equal(before, after); same != tt.hold {
				t.Errorf("current buffer unchanged across capture frame = %v, want %v", same, tt.hold)
			}
		})
	}
}

func TestDeviceLossIsFatal(t *testing.T) {
	e, dev := newTestEngine(t, smallOptions(), true)
	run(t, e, 1, 0)

	dev.Lose(errors.New("driver reset"))

	select {
	case <-e.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not forward device loss")
	}

	if _, err := e.Step(time.Second); !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("Step after loss: %v, want ErrDeviceLost", err)
	}
	if _, err := e.Step(2 * time.Second); !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("second Step after loss: %v", err)
	}
}

func TestDeviceLossRejectsCaptures(t *testing.T) {
	e, dev := newTestEngine(t, smallOptions(), true)
	run(t, e, 1, 0)

	pending, err := e.RequestCapture()
	if err != nil {
		t.Fatal(err)
	}
	dev.Lose(errors.New("driver reset"))

	if _, err := e.Step(time.Second); !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("Step after loss: %v, want ErrDeviceLost", err)
	}
	select {
	case <-pending.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture requested before loss never resolved")
	}
	if _, err := pending.Result(); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("capture requested before loss: %v, want ErrDeviceLost", err)
	}

	fut, err := e.RequestCapture()
	if fut != nil || !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("RequestCapture after loss = %v, %v; want nil, ErrDeviceLost", fut, err)
	}
}

func TestRequestCaptureAfterLossWithoutStep(t *testing.T) {
	e, dev := newTestEngine(t, smallOptions(), true)
	dev.Lose(errors.New("driver reset"))

	fut, err := e.RequestCapture()
	if fut != nil || !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("RequestCapture = %v, %v; want nil, ErrDeviceLost", fut, err)
	}
	if _, err := e.Step(0); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("Step: %v, want ErrDeviceLost", err)
	}
}

func TestNewReleasesOnFailure(t *testing.T) {
	dev := device.New(device.Options{ManualPoll: true})
	dev.Lose(errors.New("driver reset"))
	defer dev.Destroy()

	e, err := New(dev, FixedSurface{W: 16, H: 16}, smallOptions())
	if e != nil || !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("New on a lost device = %v, %v; want nil, ErrDeviceLost", e, err)
	}
}

func TestDestroy(t *testing.T) {
	dev := device.New(device.Options{ManualPoll: true})
	defer dev.Destroy()
	e, err := New(dev, FixedSurface{W: 16, H: 16}, smallOptions())
	if err != nil {
		t.Fatal(err)
	}
	fut, _ := e.RequestCapture()

	e.Destroy()
	e.Destroy()

	<-fut.Done()
	if _, err := fut.Result(); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("pending capture err = %v, want ErrClosed", err)
	}
	if _, err := e.Step(0); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Step after Destroy: %v", err)
	}
	if !e.simParams.Destroyed() {
		t.Error("parameter buffer not released")
	}
}

type resizableSurface struct{ w, h int }

func (s *resizableSurface) Size() (int, int) { return s.w, s.h }

func TestResizeRebuildsTargets(t *testing.T) {
	dev := device.New(device.Options{ManualPoll: true})
	defer dev.Destroy()
	surf := &resizableSurface{w: 32, h: 32}
	e, err := New(dev, surf, smallOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Destroy()

	run(t, e, 2, 0)
	surf.w, surf.h = 40, 21
	f, err := e.Step(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if f.Stats.Width != 40 || f.Stats.Height != 21 {
		t.Errorf("size = %dx%d, want 40x21", f.Stats.Width, f.Stats.Height)
	}
	if gw, gh := e.comp.GlowSize(); gw != 20 || gh != 10 {
		t.Errorf("glow = %dx%d, want 20x10", gw, gh)
	}
	if len(e.Presented()) != 40*21*4 {
		t.Errorf("len(Presented) = %d", len(e.Presented()))
	}
}
