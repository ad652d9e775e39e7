package engine

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hudPrinter = message.NewPrinter(language.English)

// FormatHUD renders the one-line status text. The particle count is digit
// grouped.
func FormatHUD(s Stats) string {
	return hudPrinter.Sprintf("Preset: %s · Profile %s · Particles %d · Species %d · %s×%s",
		s.PresetName, s.Profile.String(), s.Particles, s.Species,
		strconv.Itoa(s.Width), strconv.Itoa(s.Height))
}
