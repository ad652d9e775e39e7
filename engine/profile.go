package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pthm-cable/inkswarm/components"
	"github.com/pthm-cable/inkswarm/gen"
)

// ErrUnknownProfile is returned by ParseProfile.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile is a load tier selecting the active particle count.
type Profile int

const (
	ProfileHero Profile = iota
	ProfileStress
)

func (p Profile) String() string {
	switch p {
	case ProfileHero:
		return "hero"
	case ProfileStress:
		return "stress"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ParseProfile accepts "hero" or "stress", case-insensitively.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hero":
		return ProfileHero, nil
	case "stress":
		return ProfileStress, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProfile, s)
}

// seedMix is the profile's contribution to both reseed streams.
func (p Profile) seedMix() uint32 {
	if p == ProfileStress {
		return gen.SeedMixStress
	}
	return gen.SeedMixHero
}

// Controller owns profile and preset selection and derives what each
// selection regenerates.
type Controller struct {
	seed    uint32
	species int
	hero    int
	stress  int

	profile  Profile
	presetID int
}

// NewController starts on the hero profile and the first preset.
func NewController(seed uint32, species, hero, stress int) *Controller {
	return &Controller{seed: seed, species: species, hero: hero, stress: stress}
}

// Seed returns the base seed.
func (c *Controller) Seed() uint32 { return c.seed }

// Species returns the species count.
func (c *Controller) Species() int { return c.species }

// Profile returns the active profile.
func (c *Controller) Profile() Profile { return c.profile }

// ActiveParticles returns the particle count for the active profile.
func (c *Controller) ActiveParticles() int {
	if c.profile == ProfileStress {
		return c.stress
	}
	return c.hero
}

// InitialSeeds returns the stream seeds for both buffers at construction.
func (c *Controller) InitialSeeds() (a, b uint32) {
	return c.seed ^ gen.SeedMixInitialA, (c.seed ^ gen.SeedMixNext) ^ gen.SeedMixInitialB
}

// SetProfile selects p and returns the reseed stream seeds for both
// buffers. Unknown profiles fall back to hero.
func (c *Controller) SetProfile(p Profile) (a, b uint32) {
	if p != ProfileStress {
		p = ProfileHero
	}
	c.profile = p
	mix := p.seedMix()
	return c.seed ^ mix, (c.seed ^ gen.SeedMixNext) ^ mix
}

// PresetID returns the active preset id.
func (c *Controller) PresetID() int { return c.presetID }

// Preset returns the active preset.
func (c *Controller) Preset() gen.Preset { return gen.PresetByID(c.presetID) }

// SetPreset clamps id into range, selects it and returns the clamped id.
func (c *Controller) SetPreset(id int) int {
	c.presetID = gen.ClampPresetID(id)
	return c.presetID
}

// Matrix generates the interaction matrix for the active preset.
func (c *Controller) Matrix() components.InteractionMatrix {
	return gen.InteractionMatrix(c.seed, c.presetID)
}

// Palette generates the palette for the active preset.
func (c *Controller) Palette() components.Palette {
	return gen.BuildPalette(c.presetID)
}
