package gen

import (
	"math"

	"github.com/pthm-cable/inkswarm/components"
)

// Seed mixes for the two particle buffers.
const (
	SeedMixInitialA = 0xC0FFEE
	SeedMixInitialB = 0xBADC0DE
	SeedMixNext     = 0xA5A5A5A5
	SeedMixHero     = 0x11111111
	SeedMixStress   = 0x22222222
)

// SeedParticles draws count particles from a fresh stream in the fixed field
// order x, y, vx, vy, species, energy, size.
func SeedParticles(count, speciesCount int, seed uint32) []components.Particle {
	if count < 0 {
		count = 0
	}
	out := make([]components.Particle, count)
	SeedParticlesInto(out, speciesCount, seed)
	return out
}

// SeedParticlesInto overwrites dst in place.
func SeedParticlesInto(dst []components.Particle, speciesCount int, seed uint32) {
	rnd := NewStream(seed)
	for i := range dst {
		x := rnd.Next()
		y := rnd.Next()

		vx := rnd.Signed() * 0.05
		vy := rnd.Signed() * 0.05

		species := uint32(math.Floor(rnd.Next() * float64(speciesCount)))

		energy := 0.25 + rnd.Next()*0.75
		size := (5 + rnd.Next()*6) * (0.65 + 0.35*energy)

		dst[i] = components.Particle{
			Pos:     components.Position{X: unit32(x), Y: unit32(y)},
			Vel:     components.Velocity{X: float32(vx), Y: float32(vy)},
			Species: species,
			Energy:  float32(energy),
			Size:    float32(size),
		}
	}
}

// unit32 narrows a [0,1) draw without letting float32 rounding reach 1.
func unit32(v float64) float32 {
	f := float32(v)
	if f >= 1 {
		return math.Nextafter32(1, 0)
	}
	return f
}
