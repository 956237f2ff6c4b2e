package sampling

import (
	"io"
	"math/rand"
)

// Evaluator produces one scalar per observation, e.g. the radius of gyration.
type Evaluator interface {
	Name() string
	Evaluate() float64
}

// Observer emits one record per observation, usually to an output stream.
type Observer interface {
	Observe() error
}

// StreamObserver is an Observer whose output stream can be swapped out; the
// replica exchange driver uses this for isothermal observation mode.
type StreamObserver interface {
	Observer
	Stream() io.Writer
	SetStream(io.Writer)
}

// SamplingProtocol carries the cycle counts and the observer/evaluator lists
// shared by every sampling driver. Registration is append-only and dispatch
// follows registration order: evaluators first, then observers.
type SamplingProtocol struct {
	nOuterCycles int
	nInnerCycles int
	nCycleSize   int

	evaluateEveryInnerCycle []Evaluator
	evaluateEveryOuterCycle []Evaluator
	observeEveryInnerCycle  []Observer
	observeEveryOuterCycle  []Observer
}

// OuterCycles returns the number of outer (big) cycles.
func (p *SamplingProtocol) OuterCycles() int { return p.nOuterCycles }

// InnerCycles returns the number of inner (small) cycles.
func (p *SamplingProtocol) InnerCycles() int { return p.nInnerCycles }

// CycleSize returns the number of MC sweeps per inner cycle.
func (p *SamplingProtocol) CycleSize() int { return p.nCycleSize }

// Cycles sets all three counters in one call.
func (p *SamplingProtocol) Cycles(inner, outer, cycleSize int) {
	p.nInnerCycles = inner
	p.nOuterCycles = outer
	p.nCycleSize = cycleSize
}

// InnerCycleEvaluator registers an evaluator called after every inner cycle.
func (p *SamplingProtocol) InnerCycleEvaluator(e Evaluator) {
	p.evaluateEveryInnerCycle = append(p.evaluateEveryInnerCycle, e)
}

// OuterCycleEvaluator registers an evaluator called after every outer cycle.
func (p *SamplingProtocol) OuterCycleEvaluator(e Evaluator) {
	p.evaluateEveryOuterCycle = append(p.evaluateEveryOuterCycle, e)
}

// InnerCycleObserver registers an observer called after every inner cycle.
func (p *SamplingProtocol) InnerCycleObserver(o Observer) {
	p.observeEveryInnerCycle = append(p.observeEveryInnerCycle, o)
}

// OuterCycleObserver registers an observer called after every outer cycle.
func (p *SamplingProtocol) OuterCycleObserver(o Observer) {
	p.observeEveryOuterCycle = append(p.observeEveryOuterCycle, o)
}

func (p *SamplingProtocol) callInnerCycle() error {
	for _, e := range p.evaluateEveryInnerCycle {
		e.Evaluate()
	}
	for _, o := range p.observeEveryInnerCycle {
		if err := o.Observe(); err != nil {
			return err
		}
	}
	return nil
}

func (p *SamplingProtocol) callOuterCycle() error {
	for _, e := range p.evaluateEveryOuterCycle {
		e.Evaluate()
	}
	for _, o := range p.observeEveryOuterCycle {
		if err := o.Observe(); err != nil {
			return err
		}
	}
	return nil
}

// IsothermalMC is the fixed-temperature sampler: nOuter x nInner cycles of
// cycleSize sweeps, with observers dispatched at the cycle boundaries.
// It is single threaded and runs to counter exhaustion.
type IsothermalMC struct {
	SamplingProtocol

	movers    *MoversSet
	criterion *MetropolisCriterion
	rng       *rand.Rand
}

// NewIsothermalMC wires a sampler over a movers set at a fixed temperature.
// The rng drives both the mover proposals and the Metropolis decisions of
// this sampler; replica setups pass each sampler its own deterministic
// sub-stream.
func NewIsothermalMC(movers *MoversSet, temperature float64, rng *rand.Rand) *IsothermalMC {
	s := &IsothermalMC{
		movers:    movers,
		criterion: NewMetropolisCriterion(temperature, rng),
		rng:       rng,
	}
	s.Cycles(1, 1, 1)
	return s
}

// Temperature returns the sampler's current temperature.
func (s *IsothermalMC) Temperature() float64 { return s.criterion.Temperature() }

// SetTemperature retunes the Metropolis criterion.
func (s *IsothermalMC) SetTemperature(t float64) { s.criterion.SetTemperature(t) }

// Movers returns the sampler's movers set.
func (s *IsothermalMC) Movers() *MoversSet { return s.movers }

// Run executes the full outer x inner x sweep schedule.
func (s *IsothermalMC) Run() error {
	for o := 0; o < s.OuterCycles(); o++ {
		for in := 0; in < s.InnerCycles(); in++ {
			for sw := 0; sw < s.CycleSize(); sw++ {
				s.movers.Sweep(s.criterion, s.rng)
			}
			if err := s.callInnerCycle(); err != nil {
				return err
			}
		}
		if err := s.callOuterCycle(); err != nil {
			return err
		}
	}
	return nil
}
