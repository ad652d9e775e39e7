// Package gen holds the deterministic generators: the seeded uniform stream,
// the per-preset interaction matrices and palettes, and particle seeding.
//
// Every generator is a pure function of its inputs. Two calls with the same
// arguments produce bit-identical output.
package gen

// LCG constants (Numerical Recipes).
const (
	lcgMul = 1664525
	lcgInc = 1013904223
)

// goldenRatio32 mixes the preset id into the matrix sub-seed.
const goldenRatio32 = 0x9E3779B9

// Stream is a reproducible sequence of uniform [0,1) values.
type Stream struct {
	state uint32
}

// NewStream returns a stream positioned before its first draw.
func NewStream(seed uint32) *Stream {
	return &Stream{state: seed}
}

// Next advances the recurrence and returns state / 2^32.
func (s *Stream) Next() float64 {
	s.state = lcgMul*s.state + lcgInc
	return float64(s.state) / 4294967296.0
}

// Signed returns a value in [-1, 1).
func (s *Stream) Signed() float64 {
	return s.Next()*2 - 1
}

// MatrixSeed derives the sub-seed for a preset's interaction matrix.
func MatrixSeed(seed uint32, presetID int) uint32 {
	return seed ^ (uint32(presetID) * goldenRatio32)
}
