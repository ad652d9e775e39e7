package components

import (
	"encoding/binary"
	"math"
)

// Particle is one simulated particle. Its packed form is 32 bytes:
// posX posY velX velY species energy size pad.
type Particle struct {
	Pos     Position
	Vel     Velocity
	Species uint32
	Energy  float32 // [0,1], slowly homeostatic
	Size    float32 // splat half-extent in pixels, derived from Energy
}

// Encode writes the packed record into b, which must hold ParticleStride bytes.
func (p *Particle) Encode(b []byte) {
	_ = b[ParticleStride-1]
	le := binary.LittleEndian
	le.PutUint32(b[0:], math.Float32bits(p.Pos.X))
	le.PutUint32(b[4:], math.Float32bits(p.Pos.Y))
	le.PutUint32(b[8:], math.Float32bits(p.Vel.X))
	le.PutUint32(b[12:], math.Float32bits(p.Vel.Y))
	le.PutUint32(b[16:], p.Species)
	le.PutUint32(b[20:], math.Float32bits(p.Energy))
	le.PutUint32(b[24:], math.Float32bits(p.Size))
	le.PutUint32(b[28:], 0)
}

// decodeParticle reads one packed record from b.
func decodeParticle(b []byte) Particle {
	_ = b[ParticleStride-1]
	le := binary.LittleEndian
	return Particle{
		Pos:     Position{X: math.Float32frombits(le.Uint32(b[0:])), Y: math.Float32frombits(le.Uint32(b[4:]))},
		Vel:     Velocity{X: math.Float32frombits(le.Uint32(b[8:])), Y: math.Float32frombits(le.Uint32(b[12:]))},
		Species: le.Uint32(b[16:]),
		Energy:  math.Float32frombits(le.Uint32(b[20:])),
		Size:    math.Float32frombits(le.Uint32(b[24:])),
	}
}

// EncodeParticles packs ps into a new buffer of len(ps)*ParticleStride bytes.
func EncodeParticles(ps []Particle) []byte {
	out := make([]byte, len(ps)*ParticleStride)
	for i := range ps {
		ps[i].Encode(out[i*ParticleStride:])
	}
	return out
}
