package renderer

// Channels per texel.
const Channels = 4

// Surface is a float RGBA render target. Channel values are kept in [0, 1].
type Surface struct {
	W, H int
	Pix  []float32
}

// NewSurface allocates a w×h surface cleared to opaque black.
func NewSurface(w, h int) *Surface {
	s := &Surface{W: w, H: h, Pix: make([]float32, w*h*Channels)}
	s.Clear()
	return s
}

// Clear resets every texel to (0, 0, 0, 1).
func (s *Surface) Clear() {
	clear(s.Pix)
	for i := 3; i < len(s.Pix); i += Channels {
		s.Pix[i] = 1
	}
}

// At returns the texel at (x, y). Coordinates are clamped to the edge.
func (s *Surface) At(x, y int) [4]float32 {
	x = clampInt(x, 0, s.W-1)
	y = clampInt(y, 0, s.H-1)
	i := (y*s.W + x) * Channels
	return [4]float32{s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3]}
}

// Sample filters the surface bilinearly at normalised (u, v) with
// clamp-to-edge addressing.
func (s *Surface) Sample(u, v float32) [3]float32 {
	fx := u*float32(s.W) - 0.5
	fy := v*float32(s.H) - 0.5
	x0 := floorInt(fx)
	y0 := floorInt(fy)
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	a := s.At(x0, y0)
	b := s.At(x0+1, y0)
	c := s.At(x0, y0+1)
	d := s.At(x0+1, y0+1)

	var out [3]float32
	for k := range out {
		top := a[k] + (b[k]-a[k])*tx
		bot := c[k] + (d[k]-c[k])*tx
		out[k] = top + (bot-top)*ty
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func floorInt(v float32) int {
	i := int(v)
	if float32(i) > v {
		i--
	}
	return i
}
