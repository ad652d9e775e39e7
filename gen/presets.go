package gen

// Preset is a named bundle of matrix rule, palette and post-process tuning.
type Preset struct {
	ID           int
	Name         string
	TrailDecay   float32
	Exposure     float32
	GlowStrength float32
}

// PresetInfo is the public listing entry for a preset.
type PresetInfo struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// Preset ids.
const (
	PresetInkVortex = iota
	PresetNeonKelp
	PresetPredatorBloom
	PresetQuietNebula
	PresetChaosInkstorm
	NumPresets
)

var presets = [NumPresets]Preset{
	{ID: PresetInkVortex, Name: "Ink Vortex", TrailDecay: 0.945, Exposure: 1.10, GlowStrength: 0.55},
	{ID: PresetNeonKelp, Name: "Neon Kelp", TrailDecay: 0.955, Exposure: 1.05, GlowStrength: 0.65},
	{ID: PresetPredatorBloom, Name: "Predator Bloom", TrailDecay: 0.940, Exposure: 1.15, GlowStrength: 0.75},
	{ID: PresetQuietNebula, Name: "Quiet Nebula", TrailDecay: 0.965, Exposure: 0.95, GlowStrength: 0.45},
	{ID: PresetChaosInkstorm, Name: "Chaos Inkstorm", TrailDecay: 0.935, Exposure: 1.25, GlowStrength: 0.85},
}

// ClampPresetID maps any id into the valid range.
func ClampPresetID(id int) int {
	if id < 0 {
		return 0
	}
	if id >= NumPresets {
		return NumPresets - 1
	}
	return id
}

// PresetByID returns the preset for id after clamping.
func PresetByID(id int) Preset {
	return presets[ClampPresetID(id)]
}

// Presets lists every preset in id order.
func Presets() []PresetInfo {
	out := make([]PresetInfo, 0, NumPresets)
	for _, p := range presets {
		out = append(out, PresetInfo{ID: p.ID, Name: p.Name})
	}
	return out
}
