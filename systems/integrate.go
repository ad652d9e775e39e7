package systems

import (
	"math"

	"github.com/pthm-cable/inkswarm/components"
)

// Force and integration constants.
const (
	InteractionCutoff = 0.08
	InteractionSigma  = 0.03
	HardRepulsion     = 0.015
	HardSoftening     = 0.01
	DriftGain         = 0.02
	MaxSpeed          = 1.0
	Damping           = 0.995
	EnergyRetention   = 0.995
	EnergyRecovery    = 0.002
	SizeBase          = 1.8
	SizePerEnergy     = 2.5
	SizeMin           = 1.0
	SizeMax           = 6.0
)

// Integrator advances particles by one frame using grid neighbours.
type Integrator struct {
	grid   *CellGrid
	matrix components.InteractionMatrix
}

// NewIntegrator creates an integrator that queries grid.
func NewIntegrator(grid *CellGrid) *Integrator {
	return &Integrator{grid: grid}
}

// SetMatrix binds the interaction matrix used for pair forces.
func (it *Integrator) SetMatrix(m components.InteractionMatrix) {
	it.matrix = m
}

// Matrix returns the bound interaction matrix.
func (it *Integrator) Matrix() components.InteractionMatrix {
	return it.matrix
}

// BuildGrid clears the grid and scatters the first n particles of cur.
func (it *Integrator) BuildGrid(cur []components.Particle, n int) {
	it.grid.Clear()
	it.grid.Insert(cur[:n])
}

// IntegrateRange computes next[i] for i in [start, end) from cur. It only
// reads cur and only writes its own slots of next, so disjoint ranges can run
// concurrently. scratch is reused for neighbour lists and returned.
func (it *Integrator) IntegrateRange(cur, next []components.Particle, dt float32, start, end int, scratch []uint32) []uint32 {
	const (
		cutoff2 = InteractionCutoff * InteractionCutoff
		sigma2  = InteractionSigma * InteractionSigma
	)

	for i := start; i < end; i++ {
		p := cur[i]

		// rotational drift around the domain centre
		toCX := 0.5 - p.Pos.X
		toCY := 0.5 - p.Pos.Y
		curlX, curlY := -toCY, toCX

		var accX, accY float32

		scratch = it.grid.NeighborsInto(scratch[:0], p.Pos)
		for _, j := range scratch {
			if int(j) == i {
				continue
			}
			q := &cur[j]

			dx, dy := ToroidalDelta(p.Pos.X, p.Pos.Y, q.Pos.X, q.Pos.Y)
			r2 := dx*dx + dy*dy
			if r2 > cutoff2 {
				continue
			}

			r := float32(math.Sqrt(float64(max(r2, 1e-8))))
			coeff := it.matrix.At(p.Species, q.Species)

			w := float32(math.Exp(float64(-r2 / sigma2)))
			hard := -HardRepulsion / (r + HardSoftening)
			f := coeff*w + hard

			accX += dx / r * f
			accY += dy / r * f
		}

		accX += curlX * DriftGain
		accY += curlY * DriftGain

		p.Vel.X += accX * dt
		p.Vel.Y += accY * dt

		if spd := velocityMagnitude(p.Vel.X, p.Vel.Y); spd > MaxSpeed {
			s := MaxSpeed / spd
			p.Vel.X *= s
			p.Vel.Y *= s
		}
		p.Vel.X *= Damping
		p.Vel.Y *= Damping

		p.Pos.X = Wrap01(p.Pos.X + p.Vel.X*dt)
		p.Pos.Y = Wrap01(p.Pos.Y + p.Vel.Y*dt)

		p.Energy = clamp01(p.Energy*EnergyRetention + EnergyRecovery)
		p.Size = clampFloat(SizeBase+p.Energy*SizePerEnergy, SizeMin, SizeMax)

		next[i] = p
	}
	return scratch
}

// step builds the grid and integrates all active particles serially.
func (it *Integrator) step(store *ParticleStore, params components.SimParams) {
	cur, next := store.Roles()
	n := min(int(params.NumParticles), len(cur))
	it.BuildGrid(cur, n)
	it.IntegrateRange(cur, next, params.DT, 0, n, nil)
}
