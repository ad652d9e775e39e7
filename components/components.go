// Package components defines the particle record and the packed parameter
// blocks shared by the simulation and compositing stages.
//
// Every packed layout is little-endian with 4-byte fields and must match the
// stage expectations byte for byte.
package components

import "errors"

// MaxSpecies is the padded species dimension of the interaction matrix and
// the palette.
const MaxSpecies = 10

// Byte sizes of the packed records.
const (
	ParticleStride  = 32
	SimParamsSize   = 32
	PostParamsSize  = 32
	MatrixSize      = MaxSpecies * MaxSpecies * 4
	PaletteSize     = MaxSpecies * 4 * 4
	PaletteChannels = 4
)

// ErrShortBuffer is returned when a packed record is decoded from too few bytes.
var ErrShortBuffer = errors.New("components: buffer too short")
