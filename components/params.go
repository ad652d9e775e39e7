package components

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SimParams is the per-frame parameter snapshot read by the grid and
// integration stages.
type SimParams struct {
	ResX, ResY   float32
	Time         float32 // elapsed simulation seconds
	DT           float32 // clamped frame delta in seconds
	NumParticles uint32
	SpeciesCount uint32
	GridDim      uint32
	CellCap      uint32
}

// Pack returns the 32-byte little-endian layout.
func (p SimParams) Pack() []byte {
	b := make([]byte, SimParamsSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], math.Float32bits(p.ResX))
	le.PutUint32(b[4:], math.Float32bits(p.ResY))
	le.PutUint32(b[8:], math.Float32bits(p.Time))
	le.PutUint32(b[12:], math.Float32bits(p.DT))
	le.PutUint32(b[16:], p.NumParticles)
	le.PutUint32(b[20:], p.SpeciesCount)
	le.PutUint32(b[24:], p.GridDim)
	le.PutUint32(b[28:], p.CellCap)
	return b
}

// UnpackSimParams decodes a block produced by SimParams.Pack.
func UnpackSimParams(b []byte) (SimParams, error) {
	if len(b) < SimParamsSize {
		return SimParams{}, fmt.Errorf("unpacking sim params (%d bytes): %w", len(b), ErrShortBuffer)
	}
	le := binary.LittleEndian
	return SimParams{
		ResX:         math.Float32frombits(le.Uint32(b[0:])),
		ResY:         math.Float32frombits(le.Uint32(b[4:])),
		Time:         math.Float32frombits(le.Uint32(b[8:])),
		DT:           math.Float32frombits(le.Uint32(b[12:])),
		NumParticles: le.Uint32(b[16:]),
		SpeciesCount: le.Uint32(b[20:]),
		GridDim:      le.Uint32(b[24:]),
		CellCap:      le.Uint32(b[28:]),
	}, nil
}

// PostParams drives the trail, glow and present passes.
type PostParams struct {
	ResX, ResY         float32
	GlowResX, GlowResY float32
	TrailDecay         float32 // 0 < d < 1
	Exposure           float32
	GlowStrength       float32
}

// Pack returns the 32-byte little-endian layout. The last field is padding.
func (p PostParams) Pack() []byte {
	b := make([]byte, PostParamsSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], math.Float32bits(p.ResX))
	le.PutUint32(b[4:], math.Float32bits(p.ResY))
	le.PutUint32(b[8:], math.Float32bits(p.GlowResX))
	le.PutUint32(b[12:], math.Float32bits(p.GlowResY))
	le.PutUint32(b[16:], math.Float32bits(p.TrailDecay))
	le.PutUint32(b[20:], math.Float32bits(p.Exposure))
	le.PutUint32(b[24:], math.Float32bits(p.GlowStrength))
	le.PutUint32(b[28:], math.Float32bits(0))
	return b
}

// UnpackPostParams decodes a block produced by PostParams.Pack.
func UnpackPostParams(b []byte) (PostParams, error) {
	if len(b) < PostParamsSize {
		return PostParams{}, fmt.Errorf("unpacking post params (%d bytes): %w", len(b), ErrShortBuffer)
	}
	le := binary.LittleEndian
	f := func(off int) float32 { return math.Float32frombits(le.Uint32(b[off:])) }
	return PostParams{
		ResX:         f(0),
		ResY:         f(4),
		GlowResX:     f(8),
		GlowResY:     f(12),
		TrailDecay:   f(16),
		Exposure:     f(20),
		GlowStrength: f(24),
	}, nil
}
