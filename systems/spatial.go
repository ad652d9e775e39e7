// Package systems provides the per-frame simulation stages: the particle
// double buffer, the bounded spatial grid and the force integrator.
package systems

import (
	"sync/atomic"

	"github.com/pthm-cable/inkswarm/components"
)

// CellGrid is a fixed-resolution uniform grid over the unit torus. Each cell
// stores at most cellCap particle indices.
//
// Particles beyond a cell's capacity are counted but not stored, so they are
// absent from every neighbour query that frame. This is an accepted
// approximation; capacity never grows.
type CellGrid struct {
	dim     int
	cellCap int
	counts  []uint32 // per-cell insertion counters, may exceed cellCap
	slots   []uint32 // dim*dim*cellCap particle indices
}

// NewCellGrid creates a dim×dim grid. Non-positive sizes are clamped to 1.
func NewCellGrid(dim, cellCap int) *CellGrid {
	if dim < 1 {
		dim = 1
	}
	if cellCap < 1 {
		cellCap = 1
	}
	cells := dim * dim
	return &CellGrid{
		dim:     dim,
		cellCap: cellCap,
		counts:  make([]uint32, cells),
		slots:   make([]uint32, cells*cellCap),
	}
}

// Dim returns the number of cells per axis.
func (g *CellGrid) Dim() int { return g.dim }

// CellCap returns the per-cell capacity.
func (g *CellGrid) CellCap() int { return g.cellCap }

// Clear resets every bucket count to zero.
func (g *CellGrid) Clear() {
	clear(g.counts)
}

// CellCoords returns the clamped cell column and row for a position.
func (g *CellGrid) CellCoords(p components.Position) (col, row int) {
	gd := float32(g.dim)
	col = int(clampFloat(floor32(p.X*gd), 0, gd-1))
	row = int(clampFloat(floor32(p.Y*gd), 0, gd-1))
	return col, row
}

// CellIndex returns the flat index of the cell containing p.
func (g *CellGrid) CellIndex(p components.Position) int {
	col, row := g.CellCoords(p)
	return row*g.dim + col
}

// Insert scatters all particles into the grid.
func (g *CellGrid) Insert(particles []components.Particle) {
	g.InsertRange(particles, 0, len(particles))
}

// InsertRange scatters particles[start:end]. Counters are claimed atomically,
// so disjoint ranges may be inserted concurrently.
func (g *CellGrid) InsertRange(particles []components.Particle, start, end int) {
	for i := start; i < end; i++ {
		cell := g.CellIndex(particles[i].Pos)
		slot := atomic.AddUint32(&g.counts[cell], 1) - 1
		if int(slot) < g.cellCap {
			g.slots[cell*g.cellCap+int(slot)] = uint32(i)
		}
	}
}

// Count returns the number of particles that fell into cell, including
// any that overflowed its capacity.
func (g *CellGrid) Count(cell int) int {
	return int(atomic.LoadUint32(&g.counts[cell]))
}

// Bucket returns the stored indices of a cell.
func (g *CellGrid) Bucket(cell int) []uint32 {
	n := min(g.Count(cell), g.cellCap)
	base := cell * g.cellCap
	return g.slots[base : base+n]
}

// Dropped returns how many inserted particles were not stored.
func (g *CellGrid) Dropped() int {
	dropped := 0
	for i := range g.counts {
		if c := int(g.counts[i]); c > g.cellCap {
			dropped += c - g.cellCap
		}
	}
	return dropped
}

// NeighborsInto appends the indices stored in the 3×3 neighbourhood of the
// cell containing p and returns the updated slice. Neighbour cells wrap
// toroidally. Reuse dst across calls to avoid allocations.
// Order among the returned indices is unspecified.
func (g *CellGrid) NeighborsInto(dst []uint32, p components.Position) []uint32 {
	col, row := g.CellCoords(p)
	for oy := -1; oy <= 1; oy++ {
		ny := (row + oy + g.dim) % g.dim
		for ox := -1; ox <= 1; ox++ {
			nx := (col + ox + g.dim) % g.dim
			dst = append(dst, g.Bucket(ny*g.dim+nx)...)
		}
	}
	return dst
}
