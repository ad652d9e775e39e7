package gen

import "github.com/pthm-cable/inkswarm/components"

type rgba = [components.PaletteChannels]float32

// paletteFamilies holds five curated colours per preset.
var paletteFamilies = [NumPresets][5]rgba{
	// cool ink on paper
	{
		{0.70, 0.85, 1.00, 0.90},
		{0.25, 0.55, 0.95, 0.90},
		{0.55, 0.35, 0.95, 0.90},
		{0.95, 0.45, 0.55, 0.90},
		{0.95, 0.85, 0.35, 0.90},
	},
	// teals and greens
	{
		{0.20, 1.00, 0.85, 0.90},
		{0.10, 0.65, 0.95, 0.90},
		{0.55, 0.95, 0.35, 0.90},
		{0.85, 1.00, 0.35, 0.90},
		{0.95, 0.55, 0.35, 0.90},
	},
	// magenta and orange
	{
		{1.00, 0.25, 0.85, 0.90},
		{0.95, 0.35, 0.45, 0.90},
		{1.00, 0.65, 0.25, 0.90},
		{0.85, 0.85, 0.30, 0.90},
		{0.35, 0.95, 0.75, 0.90},
	},
	// soft pastels
	{
		{0.85, 0.85, 0.95, 0.85},
		{0.65, 0.75, 0.95, 0.85},
		{0.85, 0.65, 0.95, 0.85},
		{0.95, 0.75, 0.65, 0.85},
		{0.75, 0.95, 0.65, 0.85},
	},
	// high contrast
	{
		{1.00, 1.00, 1.00, 0.95},
		{0.95, 0.35, 0.95, 0.95},
		{0.25, 0.95, 0.95, 0.95},
		{0.95, 0.95, 0.25, 0.95},
		{0.95, 0.35, 0.25, 0.95},
	},
}

// BuildPalette replicates the preset's family across all species slots.
func BuildPalette(presetID int) components.Palette {
	family := &paletteFamilies[ClampPresetID(presetID)]
	var p components.Palette
	for i := range p {
		p[i] = family[i%len(family)]
	}
	return p
}
