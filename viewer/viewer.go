// Package viewer shows the engine's presented frames in a raylib window
// with preset, profile and capture controls.
package viewer

import (
	"fmt"
	"image/color"
	"log/slog"
	"time"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/inkswarm/capture"
	"github.com/pthm-cable/inkswarm/engine"
	"github.com/pthm-cable/inkswarm/telemetry"
)

const (
	buttonW   = 120
	buttonH   = 26
	panelPad  = 10
	statusFor = 4 * time.Second
)

// Window is the raylib window. It reports the drawable size to the engine.
type Window struct{}

// Open creates a resizable window.
func Open(width, height, targetFPS int, title string) *Window {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(width), int32(height), title)
	rl.SetTargetFPS(int32(targetFPS))
	return &Window{}
}

// Size returns the current drawable size.
func (w *Window) Size() (int, int) {
	return int(rl.GetScreenWidth()), int(rl.GetScreenHeight())
}

// Close destroys the window.
func (w *Window) Close() { rl.CloseWindow() }

// Viewer drives an engine from the window's frame loop.
type Viewer struct {
	win        *Window
	eng        *engine.Engine
	captureDir string
	logger     *slog.Logger

	tex     rl.Texture2D
	texW    int
	texH    int
	pixels  []color.RGBA
	pending *capture.Future
	status  string
	statusT time.Time
}

// New creates a viewer for eng rendering into win. Captures are written
// as PNG files under captureDir.
func New(win *Window, eng *engine.Engine, captureDir string, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Viewer{win: win, eng: eng, captureDir: captureDir, logger: logger.With("component", "viewer")}
}

// Run loops until the window closes or the engine fails.
func (v *Viewer) Run() error {
	defer v.unloadTexture()
	start := time.Now()

	for !rl.WindowShouldClose() {
		v.handle(pollKeys())

		frame, err := v.eng.Step(time.Since(start))
		if err != nil {
			return fmt.Errorf("viewer: %w", err)
		}
		v.collectCapture()
		v.upload()

		rl.BeginDrawing()
		rl.ClearBackground(rl.Black)
		rl.DrawTexture(v.tex, 0, 0, rl.White)
		v.drawHUD(frame)
		v.handle(v.drawControls(frame.Stats))
		rl.EndDrawing()
	}
	return nil
}

func (v *Viewer) handle(a action) {
	switch a.kind {
	case actionPreset:
		if err := v.eng.SetPreset(a.preset); err != nil {
			v.logger.Error("set preset failed", "error", err)
		}
	case actionProfile:
		v.eng.SetProfile(a.profile)
	case actionCapture:
		fut, err := v.eng.RequestCapture()
		if err != nil {
			v.setStatus(err.Error())
			return
		}
		v.pending = fut
		v.setStatus("capturing...")
	}
}

// collectCapture writes a finished capture without blocking the loop.
func (v *Viewer) collectCapture() {
	if v.pending == nil {
		return
	}
	select {
	case <-v.pending.Done():
	default:
		return
	}
	img, err := v.pending.Result()
	v.pending = nil
	if err != nil {
		v.logger.Warn("capture failed", "error", err)
		v.setStatus("capture failed: " + err.Error())
		return
	}
	path, err := img.WritePNG(v.captureDir, time.Now())
	if err != nil {
		v.logger.Warn("capture save failed", "error", err)
		v.setStatus("capture save failed")
		return
	}
	v.logger.Info("capture saved", "path", path, "width", img.Width, "height", img.Height)
	v.setStatus("saved " + path)
}

func (v *Viewer) setStatus(s string) {
	v.status = s
	v.statusT = time.Now()
}

// upload copies the presented frame into the window texture, rebuilding
// the texture when the engine's target size changes.
func (v *Viewer) upload() {
	w, h := v.eng.Size()
	if w != v.texW || h != v.texH {
		v.unloadTexture()
		img := rl.GenImageColor(w, h, rl.Black)
		v.tex = rl.LoadTextureFromImage(img)
		rl.UnloadImage(img)
		v.texW, v.texH = w, h
	}
	v.pixels = toRGBA(v.pixels, v.eng.Presented())
	rl.UpdateTexture(v.tex, v.pixels)
}

func (v *Viewer) unloadTexture() {
	if v.texW > 0 {
		rl.UnloadTexture(v.tex)
		v.texW, v.texH = 0, 0
	}
}

func (v *Viewer) drawHUD(frame engine.Frame) {
	rl.DrawText(frame.HUD, panelPad, panelPad, 18, rl.RayWhite)

	t := frame.Stats.Timings
	rl.DrawText(
		fmt.Sprintf("FPS %d | compute %s | trails %s | glow %s | present %s",
			rl.GetFPS(),
			t[telemetry.PhaseCompute].Round(time.Microsecond),
			t[telemetry.PhaseTrails].Round(time.Microsecond),
			t[telemetry.PhaseGlow].Round(time.Microsecond),
			t[telemetry.PhasePresent].Round(time.Microsecond),
		),
		panelPad, panelPad+24, 14, rl.LightGray,
	)

	if v.status != "" && time.Since(v.statusT) < statusFor {
		rl.DrawText(v.status, panelPad, int32(rl.GetScreenHeight())-30, 16, rl.Yellow)
	}
}

// drawControls draws preset, profile and capture buttons and returns the
// clicked action.
func (v *Viewer) drawControls(s engine.Stats) action {
	var clicked action
	x := float32(rl.GetScreenWidth()) - buttonW - panelPad
	y := float32(panelPad)

	for _, p := range v.eng.Presets() {
		label := p.Name
		if p.ID == s.PresetID {
			label = "> " + label
		}
		if gui.Button(rl.Rectangle{X: x, Y: y, Width: buttonW, Height: buttonH}, label) {
			clicked = action{kind: actionPreset, preset: p.ID}
		}
		y += buttonH + 4
	}

	y += 8
	next := engine.ProfileStress
	if s.Profile == engine.ProfileStress {
		next = engine.ProfileHero
	}
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: buttonW, Height: buttonH}, "Profile: "+s.Profile.String()) {
		clicked = action{kind: actionProfile, profile: next}
	}
	y += buttonH + 4

	label := "Capture"
	if v.pending != nil {
		label = "Capturing..."
	}
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: buttonW, Height: buttonH}, label) {
		clicked = action{kind: actionCapture}
	}
	return clicked
}
