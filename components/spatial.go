package components

// Position is a point on the unit torus. Each axis lies in [0, 1).
type Position struct {
	X, Y float32
}

// Velocity is expressed in domain units per second.
type Velocity struct {
	X, Y float32
}

// LenSq returns the squared magnitude.
func (v Velocity) LenSq() float32 {
	return v.X*v.X + v.Y*v.Y
}
