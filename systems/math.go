package systems

import "math"

// clampFloat clamps a float32 value between min and max.
func clampFloat(v, minVal, maxVal float32) float32 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// clamp01 clamps a float32 value to the [0, 1] range.
func clamp01(v float32) float32 {
	return clampFloat(v, 0, 1)
}

// Wrap01 maps x into [0, 1) as x - floor(x).
// A tiny negative input can round up to exactly 1 in float32; that case
// wraps to 0, its toroidal neighbour.
func Wrap01(x float32) float32 {
	y := x - float32(math.Floor(float64(x)))
	if y >= 1 {
		return 0
	}
	return y
}

// ToroidalDelta returns the shortest displacement from a to b on the unit
// torus. Each component lies in [-0.5, 0.5].
func ToroidalDelta(ax, ay, bx, by float32) (dx, dy float32) {
	dx = bx - ax
	dy = by - ay

	if dx > 0.5 {
		dx -= 1
	} else if dx < -0.5 {
		dx += 1
	}
	if dy > 0.5 {
		dy -= 1
	} else if dy < -0.5 {
		dy += 1
	}

	return dx, dy
}

// velocityMagnitude returns the magnitude of a velocity vector.
func velocityMagnitude(vx, vy float32) float32 {
	return float32(math.Sqrt(float64(vx*vx + vy*vy)))
}

func floor32(x float32) float32 {
	return float32(math.Floor(float64(x)))
}
