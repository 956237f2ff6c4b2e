// Package sampling implements the Monte Carlo machinery: movers with
// acceptance bookkeeping, the Metropolis criterion, the isothermal sweep
// driver, the simulated annealing schedule and the replica exchange driver.
//
// Citation: Metropolis, N., et al. (1953). "Equation of state calculations by
// fast computing machines." J. Chem. Phys. 21(6): 1087-1092.
package sampling

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/energy"
	"github.com/sarat-asymmetrica/surpass/internal/geometry"
	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// MetropolisCriterion accepts or rejects a proposed energy change at its
// current temperature. A +Inf delta (a kernel hard reject) never passes.
type MetropolisCriterion struct {
	temperature float64
	rng         *rand.Rand
}

// NewMetropolisCriterion creates a criterion at temperature T drawing from rng.
func NewMetropolisCriterion(temperature float64, rng *rand.Rand) *MetropolisCriterion {
	return &MetropolisCriterion{temperature: temperature, rng: rng}
}

// Temperature returns the current temperature.
func (c *MetropolisCriterion) Temperature() float64 { return c.temperature }

// SetTemperature changes the temperature; the annealing driver uses this
// between segments.
func (c *MetropolisCriterion) SetTemperature(t float64) { c.temperature = t }

// Accept applies the Metropolis rule to an energy change.
func (c *MetropolisCriterion) Accept(deltaE float64) bool {
	if deltaE <= 0 {
		return true
	}
	if math.IsInf(deltaE, 1) || math.IsNaN(deltaE) {
		return false
	}
	return c.rng.Float64() < math.Exp(-deltaE/c.temperature)
}

// Mover proposes, evaluates and commits or reverts one Monte Carlo move,
// keeping acceptance statistics.
type Mover struct {
	name      string
	proposed  uint64
	accepted  uint64
	moveRange float64
	move      func(c *MetropolisCriterion, moveRange float64) bool
}

// Name returns the mover's display name.
func (m *Mover) Name() string { return m.name }

// MoveRange returns the maximum displacement of one proposal.
func (m *Mover) MoveRange() float64 { return m.moveRange }

// SetMoveRange calibrates the maximum displacement; replica setups assign a
// per-replica value here.
func (m *Mover) SetMoveRange(r float64) { m.moveRange = r }

// Stats returns the proposal and acceptance counters.
func (m *Mover) Stats() (proposed, accepted uint64) { return m.proposed, m.accepted }

// ResetStats zeroes the counters.
func (m *Mover) ResetStats() { m.proposed, m.accepted = 0, 0 }

// SuccessRate returns the fraction of accepted proposals.
func (m *Mover) SuccessRate() float64 {
	if m.proposed == 0 {
		return 0
	}
	return float64(m.accepted) / float64(m.proposed)
}

// Move performs one proposal/decision step.
func (m *Mover) Move(c *MetropolisCriterion) bool {
	m.proposed++
	if m.move(c, m.moveRange) {
		m.accepted++
		return true
	}
	return false
}

// NewPerturbResidue builds the single-bead mover: a uniform-ball displacement
// of one uniformly drawn residue, scored through the by-residue energy
// query. A zero move range proposes nothing and always rejects.
func NewPerturbResidue(system *model.System, total energy.ByResidueEnergy, rng *rand.Rand) *Mover {
	return &Mover{
		name: "PerturbResidue",
		move: func(c *MetropolisCriterion, moveRange float64) bool {
			if moveRange == 0 {
				return false
			}
			r := rng.Intn(system.Count())
			old := system.Pos(r)

			before := total.CalculateByResidue(r)
			system.SetPos(r, r3.Add(old, geometry.UniformBall(moveRange, rng)))
			after := total.CalculateByResidue(r)

			if c.Accept(after - before) {
				return true
			}
			system.SetPos(r, old)
			return false
		},
	}
}

// NewPerturbChainFragment builds the fragment mover: n consecutive beads of
// one chain either translated rigidly or bent by an endpoint-preserving kink,
// scored through the by-chunk energy query. Fragments are clamped inside the
// chain of the drawn start residue; chains shorter than n reject.
func NewPerturbChainFragment(system *model.System, total energy.ByResidueEnergy, n int, rng *rand.Rand) *Mover {
	return &Mover{
		name: "PerturbChainFragment",
		move: func(c *MetropolisCriterion, moveRange float64) bool {
			if moveRange == 0 || n < 1 {
				return false
			}
			r := rng.Intn(system.Count())
			chain := system.ChainRange(system.ChainForBead(r))
			if chain.Size() < n {
				return false
			}
			if r+n-1 > chain.Last {
				r = chain.Last - n + 1
			}
			from, to := r, r+n-1

			old := make([]r3.Vec, n)
			for i := 0; i < n; i++ {
				old[i] = system.Pos(from + i)
			}

			before := total.CalculateByChunk(from, to)
			u := geometry.UniformBall(moveRange, rng)
			if n < 3 || rng.Intn(2) == 0 {
				// Rigid translation of the whole fragment.
				for i := 0; i < n; i++ {
					system.SetPos(from+i, r3.Add(old[i], u))
				}
			} else {
				// Endpoint-preserving kink: displacement rises and falls
				// sinusoidally, vanishing at both fragment ends.
				for i := 1; i < n-1; i++ {
					w := math.Sin(math.Pi * float64(i) / float64(n-1))
					system.SetPos(from+i, r3.Add(old[i], r3.Scale(w, u)))
				}
			}
			after := total.CalculateByChunk(from, to)

			if c.Accept(after - before) {
				return true
			}
			for i := 0; i < n; i++ {
				system.SetPos(from+i, old[i])
			}
			return false
		},
	}
}

// MoversSet holds weighted movers; one sweep draws Sum(weights) proposals,
// each mover picked with probability proportional to its weight. Weights are
// conventionally the number of times the mover should fire per sweep, e.g.
// the bead count for the single-residue mover.
type MoversSet struct {
	movers  []*Mover
	weights []float64
	sum     float64
}

// NewMoversSet returns an empty set.
func NewMoversSet() *MoversSet { return &MoversSet{} }

// AddMover registers a mover with its sweep weight.
func (s *MoversSet) AddMover(m *Mover, weight float64) {
	s.movers = append(s.movers, m)
	s.weights = append(s.weights, weight)
	s.sum += weight
}

// Movers returns the registered movers in registration order.
func (s *MoversSet) Movers() []*Mover { return s.movers }

// SweepSize returns the number of proposals in one sweep.
func (s *MoversSet) SweepSize() int { return int(s.sum) }

// Pick draws a mover with probability proportional to its weight.
func (s *MoversSet) Pick(rng *rand.Rand) *Mover {
	x := rng.Float64() * s.sum
	for i, w := range s.weights {
		if x < w {
			return s.movers[i]
		}
		x -= w
	}
	return s.movers[len(s.movers)-1]
}

// Sweep runs one sweep of proposals against the criterion and returns the
// number of accepted moves.
func (s *MoversSet) Sweep(c *MetropolisCriterion, rng *rand.Rand) int {
	accepted := 0
	for i := 0; i < s.SweepSize(); i++ {
		if s.Pick(rng).Move(c) {
			accepted++
		}
	}
	return accepted
}
