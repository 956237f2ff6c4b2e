// Package energy implements the SURPASS force field: the by-residue energy
// interface, the long- and short-range evaluation drivers, the knowledge-based
// mean-field terms, the hydrogen-bond / beta-sheet analyzer and the contact
// and excluded-volume terms, combined by a weighted total.
//
// All terms are pure functions of the current bead store apart from the
// hydrogen-bond analyzer, which keeps a per-instance cache rebuilt under an
// explicit, idempotent rehash.
package energy

import (
	"errors"
	"math"

	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// Errors of the data / config taxonomy.
var (
	// ErrMissingDistribution reports a (aa-pair, ss-pair) key absent from a
	// loaded distribution file.
	ErrMissingDistribution = errors.New("energy: missing distribution key")
	// ErrUnknownTerm reports an unrecognized term name in the score config.
	ErrUnknownTerm = errors.New("energy: unknown energy term")
)

// ByResidueEnergy is the uniform query surface of every term.
//
// CalculateByResidue returns the energy attributable to residue r interacting
// with everything else, counted from r's perspective. CalculateByChunk
// returns the energy of residues [from, to] with the rest of the system plus
// the internal energy of the range. A kernel-level hard rejection surfaces as
// +Inf, never as an error.
type ByResidueEnergy interface {
	Name() string
	Calculate() float64
	CalculateByResidue(r int) float64
	CalculateByChunk(from, to int) float64
}

// PairEnergyMap accumulates a per-residue-pair decomposition of an energy.
type PairEnergyMap struct {
	n int
	v []float64
}

// NewPairEnergyMap creates an n-by-n accumulator.
func NewPairEnergyMap(n int) *PairEnergyMap {
	return &PairEnergyMap{n: n, v: make([]float64, n*n)}
}

// Add accumulates e for the pair (i, j).
func (m *PairEnergyMap) Add(i, j int, e float64) { m.v[i*m.n+j] += e }

// At returns the accumulated energy of the pair (i, j).
func (m *PairEnergyMap) At(i, j int) float64 { return m.v[i*m.n+j] }

// Reset zeroes the accumulator.
func (m *PairEnergyMap) Reset() {
	for i := range m.v {
		m.v[i] = 0
	}
}

// PairMapEnergy is implemented by terms that can decompose their total into
// residue pairs.
type PairMapEnergy interface {
	CalculateOnMap(m *PairEnergyMap) float64
}

// pairKernel evaluates one residue pair, accumulating into acc. A false
// return is a hard rejection: the driver short-circuits to +Inf.
type pairKernel func(moved, other int, acc *float64) bool

// longRange drives a pair kernel over residue pairs with a minimum sequence
// separation. Concrete terms embed it and install their kernel.
type longRange struct {
	system *model.System
	offset int // evaluate (i, j) only when |i-j| >= offset
	kernel pairKernel
}

func (e *longRange) Calculate() float64 {
	en := 0.0
	n := e.system.Count()
	for k := e.offset; k < n; k++ {
		for i := 0; i <= k-e.offset; i++ {
			if !e.kernel(k, i, &en) {
				return math.Inf(1)
			}
		}
	}
	return en
}

func (e *longRange) CalculateByResidue(r int) float64 {
	en := 0.0
	for j := 0; j <= r-e.offset; j++ {
		if !e.kernel(r, j, &en) {
			return math.Inf(1)
		}
	}
	for j := r + e.offset; j < e.system.Count(); j++ {
		if !e.kernel(r, j, &en) {
			return math.Inf(1)
		}
	}
	return en
}

func (e *longRange) CalculateByChunk(from, to int) float64 {
	en := 0.0
	n := e.system.Count()
	for cr := from; cr <= to; cr++ {
		// Chunk interacting with upstream residues.
		up := cr - e.offset
		if from-1 < up {
			up = from - 1
		}
		for j := 0; j <= up; j++ {
			if !e.kernel(cr, j, &en) {
				return math.Inf(1)
			}
		}
		// Chunk interacting with downstream residues.
		down := to + 1
		if cr+e.offset > down {
			down = cr + e.offset
		}
		for j := down; j < n; j++ {
			if !e.kernel(cr, j, &en) {
				return math.Inf(1)
			}
		}
	}
	// Chunk interacting with itself.
	for i := from + e.offset; i <= to; i++ {
		for j := from; j <= i-e.offset; j++ {
			if !e.kernel(i, j, &en) {
				return math.Inf(1)
			}
		}
	}
	return en
}

// CalculateOnMap runs the full pair loop, accumulating each pair's
// contribution into m. The map stores unweighted per-pair values.
func (e *longRange) CalculateOnMap(m *PairEnergyMap) float64 {
	en := 0.0
	n := e.system.Count()
	for k := e.offset; k < n; k++ {
		for i := 0; i <= k-e.offset; i++ {
			before := en
			if !e.kernel(k, i, &en) {
				return math.Inf(1)
			}
			if d := en - before; d != 0 {
				m.Add(k, i, d)
				m.Add(i, k, d)
			}
		}
	}
	return en
}
