// Package renderer composites particles into a decaying ink trail, a
// half-resolution glow and a tone-mapped RGBA8 frame.
package renderer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/pthm-cable/inkswarm/components"
)

// Glow tap weights at ±1 main-resolution texel.
const (
	glowCentre = 0.28
	glowEdge   = 0.12
	glowCorner = 0.06
	gamma      = 1.0 / 2.2
)

// Runner splits [0, n) into chunks and runs fn on each, possibly in
// parallel. fn must only touch state owned by its chunk.
type Runner interface {
	Run(n int, fn func(worker, start, end int))
}

type serialRunner struct{}

func (serialRunner) Run(n int, fn func(worker, start, end int)) {
	if n > 0 {
		fn(0, 0, n)
	}
}

// compositeKey identifies one set of resolved pass inputs.
type compositeKey struct {
	W, H         int
	GlowW, GlowH int
	TrailPing    bool
	PresetID     int
}

// binding is the resolved input set for one frame's passes.
type binding struct {
	src, dst *Surface
	glow     *Surface
	colors   [components.MaxSpecies][4]float32
}

// Compositor owns the trail ping-pong pair, the glow target and the
// presented frame.
type Compositor struct {
	runner Runner

	trails    [2]*Surface
	trailPing bool
	glow      *Surface
	frame     []byte

	presetID int
	palette  components.Palette

	bindings map[compositeKey]*binding
	builds   int
	cur      *binding
}

// NewCompositor creates a compositor. A nil runner runs every pass serially.
func NewCompositor(runner Runner) *Compositor {
	if runner == nil {
		runner = serialRunner{}
	}
	return &Compositor{
		runner:    runner,
		trailPing: true,
		bindings:  make(map[compositeKey]*binding),
	}
}

// Size returns the main target size.
func (c *Compositor) Size() (w, h int) {
	if c.trails[0] == nil {
		return 0, 0
	}
	return c.trails[0].W, c.trails[0].H
}

// GlowSize returns the glow target size.
func (c *Compositor) GlowSize() (w, h int) {
	if c.glow == nil {
		return 0, 0
	}
	return c.glow.W, c.glow.H
}

// Resize rebuilds the targets for a w×h drawable. Both trails start cleared
// and the trail ping is reset. It reports whether anything changed.
func (c *Compositor) Resize(w, h int) bool {
	w, h = max(1, w), max(1, h)
	if cw, ch := c.Size(); cw == w && ch == h {
		return false
	}
	c.trails[0] = NewSurface(w, h)
	c.trails[1] = NewSurface(w, h)
	c.glow = NewSurface(max(1, w/2), max(1, h/2))
	c.frame = make([]byte, w*h*4)
	c.trailPing = true
	c.invalidate()
	return true
}

// BindPalette decodes palette bytes for presetID.
func (c *Compositor) BindPalette(presetID int, raw []byte) error {
	p, err := components.DecodePalette(raw)
	if err != nil {
		return fmt.Errorf("binding palette: %w", err)
	}
	c.palette = p
	c.presetID = presetID
	c.invalidate()
	return nil
}

func (c *Compositor) invalidate() {
	clear(c.bindings)
	c.cur = nil
}

// Builds counts how many bindings have been resolved since creation.
func (c *Compositor) Builds() int { return c.builds }

// TrailPing reports which trail is the decay source: the first when true.
func (c *Compositor) TrailPing() bool { return c.trailPing }

// Trail returns the trail surface at index i (0 or 1).
func (c *Compositor) Trail(i int) *Surface { return c.trails[i] }

// GlowSurface returns the glow target.
func (c *Compositor) GlowSurface() *Surface { return c.glow }

// Frame returns the last presented RGBA8 frame.
func (c *Compositor) Frame() []byte { return c.frame }

// ClearTrails resets both trails to opaque black and the ping to its start.
func (c *Compositor) ClearTrails() {
	for _, t := range c.trails {
		if t != nil {
			t.Clear()
		}
	}
	c.trailPing = true
	c.cur = nil
}

// Begin resolves this frame's binding, reusing a cached one when the key
// matches.
func (c *Compositor) Begin() {
	key := compositeKey{TrailPing: c.trailPing, PresetID: c.presetID}
	key.W, key.H = c.Size()
	key.GlowW, key.GlowH = c.GlowSize()

	if b, ok := c.bindings[key]; ok {
		c.cur = b
		return
	}

	b := &binding{glow: c.glow}
	if c.trailPing {
		b.src, b.dst = c.trails[0], c.trails[1]
	} else {
		b.src, b.dst = c.trails[1], c.trails[0]
	}
	for i := range b.colors {
		b.colors[i] = c.palette[i]
	}
	c.bindings[key] = b
	c.builds++
	c.cur = b
}

// Decay writes src scaled by decay into dst. Alpha stays opaque.
func (c *Compositor) Decay(decay float32) {
	b := c.cur
	w := b.dst.W
	c.runner.Run(b.dst.H, func(_, y0, y1 int) {
		lo, hi := y0*w*Channels, y1*w*Channels
		n := (y1 - y0) * w
		blas32.Copy(
			blas32.Vector{N: n * Channels, Inc: 1, Data: b.src.Pix[lo:hi]},
			blas32.Vector{N: n * Channels, Inc: 1, Data: b.dst.Pix[lo:hi]},
		)
		for ch := 0; ch < 3; ch++ {
			blas32.Scal(decay, blas32.Vector{N: n, Inc: Channels, Data: b.dst.Pix[lo+ch : hi]})
		}
		for i := lo + 3; i < hi; i += Channels {
			b.dst.Pix[i] = 1
		}
	})
}

// Accumulate splats the first n particles additively onto dst. Each
// particle covers a square of half-extent Size pixels with a smooth round
// falloff.
func (c *Compositor) Accumulate(particles []components.Particle, n int) {
	b := c.cur
	dst := b.dst
	fw, fh := float32(dst.W), float32(dst.H)
	n = min(n, len(particles))

	c.runner.Run(dst.H, func(_, y0, y1 int) {
		for i := 0; i < n; i++ {
			p := &particles[i]
			half := p.Size
			if half <= 0 {
				continue
			}
			cx, cy := p.Pos.X*fw, p.Pos.Y*fh
			left, top := cx-half, cy-half
			side := 2 * half

			py0 := max(y0, int(math.Ceil(float64(top-0.5))))
			py1 := min(y1, int(math.Ceil(float64(top+side-0.5))))
			if py0 >= py1 {
				continue
			}
			px0 := max(0, int(math.Ceil(float64(left-0.5))))
			px1 := min(dst.W, int(math.Ceil(float64(left+side-0.5))))
			if px0 >= px1 {
				continue
			}

			col := b.colors[p.Species%components.MaxSpecies]
			bright := 0.65 + 0.35*p.Energy
			r, g, bl := col[0]*bright, col[1]*bright, col[2]*bright

			for py := py0; py < py1; py++ {
				v := (float32(py)+0.5-top)/side - 0.5
				row := py * dst.W * Channels
				for px := px0; px < px1; px++ {
					u := (float32(px)+0.5-left)/side - 0.5
					a := smoothFalloff(u*u+v*v) * col[3]
					if a <= 0 {
						continue
					}
					k := row + px*Channels
					dst.Pix[k] = clamp01(dst.Pix[k] + r*a)
					dst.Pix[k+1] = clamp01(dst.Pix[k+1] + g*a)
					dst.Pix[k+2] = clamp01(dst.Pix[k+2] + bl*a)
					dst.Pix[k+3] = clamp01(a + dst.Pix[k+3]*(1-a))
				}
			}
		}
	})
}

// smoothFalloff is smoothstep(0.25, 0, r2): 1 at the centre, 0 from the
// inscribed circle outward.
func smoothFalloff(r2 float32) float32 {
	t := clamp01(1 - 4*r2)
	return t * t * (3 - 2*t)
}

// Glow blurs dst into the half-resolution glow target with nine bilinear
// taps and squares the result.
func (c *Compositor) Glow() {
	b := c.cur
	src, out := b.dst, b.glow
	px, py := 1/float32(src.W), 1/float32(src.H)

	c.runner.Run(out.H, func(_, y0, y1 int) {
		for gy := y0; gy < y1; gy++ {
			v := (float32(gy) + 0.5) / float32(out.H)
			for gx := 0; gx < out.W; gx++ {
				u := (float32(gx) + 0.5) / float32(out.W)

				var acc [3]float32
				tap := func(du, dv, w float32) {
					s := src.Sample(u+du*px, v+dv*py)
					acc[0] += s[0] * w
					acc[1] += s[1] * w
					acc[2] += s[2] * w
				}
				tap(0, 0, glowCentre)
				tap(1, 0, glowEdge)
				tap(-1, 0, glowEdge)
				tap(0, 1, glowEdge)
				tap(0, -1, glowEdge)
				tap(1, 1, glowCorner)
				tap(-1, 1, glowCorner)
				tap(1, -1, glowCorner)
				tap(-1, -1, glowCorner)

				k := (gy*out.W + gx) * Channels
				out.Pix[k] = clamp01(acc[0] * acc[0])
				out.Pix[k+1] = clamp01(acc[1] * acc[1])
				out.Pix[k+2] = clamp01(acc[2] * acc[2])
				out.Pix[k+3] = 1
			}
		}
	})
}

// Present tone-maps trail plus scaled glow into the RGBA8 frame and
// returns it.
func (c *Compositor) Present(exposure, glowStrength float32) []byte {
	b := c.cur
	src, glow := b.dst, b.glow

	c.runner.Run(src.H, func(_, y0, y1 int) {
		for y := y0; y < y1; y++ {
			v := (float32(y) + 0.5) / float32(src.H)
			for x := 0; x < src.W; x++ {
				u := (float32(x) + 0.5) / float32(src.W)
				g := glow.Sample(u, v)
				k := (y*src.W + x) * Channels
				for ch := 0; ch < 3; ch++ {
					c.frame[k+ch] = toUnorm8(Tonemap(src.Pix[k+ch]+g[ch]*glowStrength, exposure))
				}
				c.frame[k+3] = 255
			}
		}
	})
	return c.frame
}

// End closes the frame. With flip, this frame's destination becomes the
// next frame's decay source; without it the next frame decays from the same
// source into the same destination.
func (c *Compositor) End(flip bool) {
	if flip {
		c.trailPing = !c.trailPing
	}
	c.cur = nil
}

// render runs one full composite of the first n particles with post.
func (c *Compositor) render(particles []components.Particle, n int, post components.PostParams) []byte {
	c.Begin()
	c.Decay(post.TrailDecay)
	c.Accumulate(particles, n)
	c.Glow()
	frame := c.Present(post.Exposure, post.GlowStrength)
	c.End(true)
	return frame
}

// Tonemap maps linear x through 1-exp(-x*exposure) then display gamma.
func Tonemap(x, exposure float32) float32 {
	y := 1 - math.Exp(-float64(x)*float64(exposure))
	return float32(math.Pow(max(y, 0), gamma))
}

func toUnorm8(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
