package systems

import (
	"github.com/pthm-cable/inkswarm/components"
	"github.com/pthm-cable/inkswarm/gen"
)

// ParticleStore is the ping-pong particle double buffer. One buffer is
// current (read-only during integration), the other is next (written by the
// integrator). Their roles swap once per frame.
type ParticleStore struct {
	bufs       [2][]components.Particle
	flipped    bool   // false: bufs[0] is current
	generation uint64 // completed swaps since the last reset
}

// NewParticleStore allocates two buffers of capacity particles each.
func NewParticleStore(capacity int) *ParticleStore {
	if capacity < 1 {
		capacity = 1
	}
	return &ParticleStore{
		bufs: [2][]components.Particle{
			make([]components.Particle, capacity),
			make([]components.Particle, capacity),
		},
	}
}

// Cap returns the per-buffer capacity.
func (s *ParticleStore) Cap() int { return len(s.bufs[0]) }

// Seed overwrites both buffers from independent streams and makes buffer A
// current.
func (s *ParticleStore) Seed(speciesCount int, seedA, seedB uint32) {
	gen.SeedParticlesInto(s.bufs[0], speciesCount, seedA)
	gen.SeedParticlesInto(s.bufs[1], speciesCount, seedB)
	s.flipped = false
	s.generation = 0
}

// Current returns the authoritative buffer.
func (s *ParticleStore) Current() []components.Particle {
	return s.bufs[s.currentIndex()]
}

// Roles returns the current buffer and the next buffer for one integration
// pass. Callers must only read cur and only write next.
func (s *ParticleStore) Roles() (cur, next []components.Particle) {
	c := s.currentIndex()
	return s.bufs[c], s.bufs[1-c]
}

// Swap flips the current/next roles.
func (s *ParticleStore) Swap() {
	s.flipped = !s.flipped
	s.generation++
}

// Generation returns the number of swaps since the last Seed.
func (s *ParticleStore) Generation() uint64 { return s.generation }

func (s *ParticleStore) currentIndex() int {
	if s.flipped {
		return 1
	}
	return 0
}
