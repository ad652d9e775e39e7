package components

import (
	"encoding/binary"
	"fmt"
	"math"
)

// InteractionMatrix holds the signed force weights, row-major with the row
// index being the source species.
type InteractionMatrix [MaxSpecies * MaxSpecies]float32

// At returns the weight species a applies toward species b.
func (m *InteractionMatrix) At(a, b uint32) float32 {
	return m[a*MaxSpecies+b]
}

// Bytes packs the matrix as 100 little-endian f32 values.
func (m *InteractionMatrix) Bytes() []byte {
	b := make([]byte, MatrixSize)
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeInteractionMatrix reads a buffer produced by InteractionMatrix.Bytes.
func DecodeInteractionMatrix(b []byte) (InteractionMatrix, error) {
	var m InteractionMatrix
	if len(b) < MatrixSize {
		return m, fmt.Errorf("decoding interaction matrix (%d bytes): %w", len(b), ErrShortBuffer)
	}
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return m, nil
}

// Palette holds one RGBA colour per species slot. Alpha scales splat opacity.
type Palette [MaxSpecies][PaletteChannels]float32

// Bytes packs the palette as 10×4 little-endian f32 values.
func (p *Palette) Bytes() []byte {
	b := make([]byte, PaletteSize)
	for i := range p {
		for c := 0; c < PaletteChannels; c++ {
			binary.LittleEndian.PutUint32(b[(i*PaletteChannels+c)*4:], math.Float32bits(p[i][c]))
		}
	}
	return b
}

// DecodePalette reads a buffer produced by Palette.Bytes.
func DecodePalette(b []byte) (Palette, error) {
	var p Palette
	if len(b) < PaletteSize {
		return p, fmt.Errorf("decoding palette (%d bytes): %w", len(b), ErrShortBuffer)
	}
	for i := range p {
		for c := 0; c < PaletteChannels; c++ {
			p[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(b[(i*PaletteChannels+c)*4:]))
		}
	}
	return p, nil
}
