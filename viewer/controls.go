package viewer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/inkswarm/engine"
	"github.com/pthm-cable/inkswarm/gen"
)

// actionKind is a user command from a hotkey or button.
type actionKind int

const (
	actionNone actionKind = iota
	actionPreset
	actionProfile
	actionCapture
)

type action struct {
	kind    actionKind
	preset  int
	profile engine.Profile
}

// hotkeys maps keys to actions: 1-5 select presets, H/S the profile, C
// captures.
var hotkeys = map[int32]action{
	rl.KeyOne:   {kind: actionPreset, preset: gen.PresetInkVortex},
	rl.KeyTwo:   {kind: actionPreset, preset: gen.PresetNeonKelp},
	rl.KeyThree: {kind: actionPreset, preset: gen.PresetPredatorBloom},
	rl.KeyFour:  {kind: actionPreset, preset: gen.PresetQuietNebula},
	rl.KeyFive:  {kind: actionPreset, preset: gen.PresetChaosInkstorm},
	rl.KeyH:     {kind: actionProfile, profile: engine.ProfileHero},
	rl.KeyS:     {kind: actionProfile, profile: engine.ProfileStress},
	rl.KeyC:     {kind: actionCapture},
}

// actionForKey returns the action bound to key.
func actionForKey(key int32) (action, bool) {
	a, ok := hotkeys[key]
	return a, ok
}

// pollKeys returns the first bound key pressed this frame.
func pollKeys() action {
	for key, a := range hotkeys {
		if rl.IsKeyPressed(key) {
			return a
		}
	}
	return action{}
}

// toRGBA converts tightly packed RGBA8 bytes into dst, growing it as needed.
func toRGBA(dst []color.RGBA, src []byte) []color.RGBA {
	n := len(src) / 4
	if cap(dst) < n {
		dst = make([]color.RGBA, n)
	}
	dst = dst[:n]
	for i := range dst {
		k := i * 4
		dst[i] = color.RGBA{R: src[k], G: src[k+1], B: src[k+2], A: src[k+3]}
	}
	return dst
}
