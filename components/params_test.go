package components

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestSimParamsRoundTrip(t *testing.T) {
	in := SimParams{
		ResX: 1920, ResY: 1080,
		Time: 12.345, DT: 1.0 / 60.0,
		NumParticles: 80000, SpeciesCount: 6,
		GridDim: 128, CellCap: 16,
	}

	b := in.Pack()
	if len(b) != SimParamsSize {
		t.Fatalf("packed size = %d, want %d", len(b), SimParamsSize)
	}

	out, err := UnpackSimParams(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestSimParamsFieldOrder(t *testing.T) {
	b := SimParams{ResX: 2, ResY: 3, Time: 4, DT: 5, NumParticles: 6, SpeciesCount: 7, GridDim: 8, CellCap: 9}.Pack()
	le := binary.LittleEndian

	floats := []struct {
		off  int
		want float32
	}{{0, 2}, {4, 3}, {8, 4}, {12, 5}}
	for _, f := range floats {
		if got := math.Float32frombits(le.Uint32(b[f.off:])); got != f.want {
			t.Errorf("f32 at %d = %v, want %v", f.off, got, f.want)
		}
	}
	uints := []struct {
		off  int
		want uint32
	}{{16, 6}, {20, 7}, {24, 8}, {28, 9}}
	for _, u := range uints {
		if got := le.Uint32(b[u.off:]); got != u.want {
			t.Errorf("u32 at %d = %v, want %v", u.off, got, u.want)
		}
	}
}

func TestPostParamsRoundTrip(t *testing.T) {
	in := PostParams{ResX: 800, ResY: 600, GlowResX: 400, GlowResY: 300, TrailDecay: 0.945, Exposure: 1.1, GlowStrength: 0.55}
	b := in.Pack()
	if len(b) != PostParamsSize {
		t.Fatalf("packed size = %d, want %d", len(b), PostParamsSize)
	}
	if pad := binary.LittleEndian.Uint32(b[28:]); pad != 0 {
		t.Errorf("pad = %#x, want 0", pad)
	}
	out, err := UnpackPostParams(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	if _, err := UnpackSimParams(make([]byte, 31)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("UnpackSimParams short: err = %v, want ErrShortBuffer", err)
	}
	if _, err := UnpackPostParams(nil); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("UnpackPostParams short: err = %v, want ErrShortBuffer", err)
	}
	if _, err := DecodeInteractionMatrix(make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("DecodeInteractionMatrix short: err = %v, want ErrShortBuffer", err)
	}
}

func TestParticleLayout(t *testing.T) {
	p := Particle{
		Pos:     Position{X: 0.25, Y: 0.75},
		Vel:     Velocity{X: -0.01, Y: 0.02},
		Species: 3,
		Energy:  0.5,
		Size:    4.2,
	}
	b := make([]byte, ParticleStride)
	p.Encode(b)

	le := binary.LittleEndian
	if got := le.Uint32(b[16:]); got != 3 {
		t.Errorf("species at offset 16 = %d, want 3", got)
	}
	if got := math.Float32frombits(le.Uint32(b[20:])); got != 0.5 {
		t.Errorf("energy at offset 20 = %v, want 0.5", got)
	}
	if got := math.Float32frombits(le.Uint32(b[24:])); got != 4.2 {
		t.Errorf("size at offset 24 = %v, want 4.2", got)
	}

	if got := decodeParticle(b); got != p {
		t.Errorf("decode = %+v, want %+v", got, p)
	}
}

func TestMatrixAndPaletteBytes(t *testing.T) {
	var m InteractionMatrix
	m[2*MaxSpecies+7] = -0.35
	got, err := DecodeInteractionMatrix(m.Bytes())
	if err != nil {
		t.Fatalf("decode matrix: %v", err)
	}
	if got.At(2, 7) != -0.35 {
		t.Errorf("At(2,7) = %v, want -0.35", got.At(2, 7))
	}

	var p Palette
	p[9] = [4]float32{0.1, 0.2, 0.3, 0.9}
	b := p.Bytes()
	if len(b) != PaletteSize {
		t.Fatalf("palette size = %d, want %d", len(b), PaletteSize)
	}
	// Slot 9 alpha is the last f32.
	if a := math.Float32frombits(binary.LittleEndian.Uint32(b[PaletteSize-4:])); a != 0.9 {
		t.Errorf("slot 9 alpha = %v, want 0.9", a)
	}
	back, err := DecodePalette(b)
	if err != nil {
		t.Fatalf("decode palette: %v", err)
	}
	if back != p {
		t.Error("palette round trip mismatch")
	}
}
