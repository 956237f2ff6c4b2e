package sampling

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// ObservationMode selects what the per-sampler output files follow during
// replica exchange: a fixed temperature or a fixed physical replica.
type ObservationMode int

const (
	// Isothermal swaps the observers' output streams on every accepted
	// exchange so each file stays at one temperature; the per-replica
	// trajectory becomes discontiguous.
	Isothermal ObservationMode = iota
	// Isotemporal leaves observers with their physical replica; each file is
	// a contiguous reaction path mixing temperatures.
	Isotemporal
)

// String returns the mode name.
func (m ObservationMode) String() string {
	if m == Isothermal {
		return "ISOTHERMAL"
	}
	return "ISOTEMPORAL"
}

// TotalEnergySource yields the current total energy of one replica for the
// exchange criterion.
type TotalEnergySource interface {
	Calculate() float64
}

// ReplicaTask pairs one physical replica with its current temperature slot.
// ReplicaIndex is the immutable identity of the physical system;
// TemperatureIndex moves under swaps.
type ReplicaTask struct {
	ReplicaIndex     int
	TemperatureIndex int
	// BoundaryFlag records replica-space walking: 0 before any boundary
	// visit, 1 after most recently touching the lowest temperature, 2 after
	// most recently touching the highest.
	BoundaryFlag int

	Sampler *IsothermalMC
	Energy  TotalEnergySource
}

// ReplicaExchangeMC runs N isothermal samplers in parallel blocks and
// attempts nearest-neighbor temperature swaps between blocks. Swap logic is
// fully serialized: all replica goroutines join before an exchange, so every
// swap observes consistent end-of-block energies.
type ReplicaExchangeMC struct {
	mode         ObservationMode
	temperatures []float64
	replicas     []*ReplicaTask // indexed by temperature slot
	successes    []int          // successful swaps per temperature index
	nExchanges   int
	rng          *rand.Rand

	evaluateEveryExchange []Evaluator
	observeEveryExchange  []Observer
}

// NewReplicaExchangeMC pairs samplers with their energies, one per replica.
// The rng drives only the swap selection and acceptance; each sampler keeps
// its own stream.
func NewReplicaExchangeMC(samplers []*IsothermalMC, energies []TotalEnergySource,
	mode ObservationMode, rng *rand.Rand) (*ReplicaExchangeMC, error) {

	if len(samplers) != len(energies) {
		return nil, fmt.Errorf("sampling: %d samplers for %d energies", len(samplers), len(energies))
	}
	if len(samplers) < 2 {
		return nil, fmt.Errorf("sampling: replica exchange needs at least two replicas")
	}
	r := &ReplicaExchangeMC{
		mode:      mode,
		successes: make([]int, len(samplers)),
		rng:       rng,
	}
	for i, s := range samplers {
		r.replicas = append(r.replicas, &ReplicaTask{
			ReplicaIndex: i, TemperatureIndex: i, Sampler: s, Energy: energies[i],
		})
		r.temperatures = append(r.temperatures, s.Temperature())
	}
	return r, nil
}

// Mode returns the observation mode.
func (r *ReplicaExchangeMC) Mode() ObservationMode { return r.mode }

// Temperatures returns the temperature ladder.
func (r *ReplicaExchangeMC) Temperatures() []float64 { return r.temperatures }

// Replicas returns the tasks ordered by their current temperature slot.
func (r *ReplicaExchangeMC) Replicas() []*ReplicaTask { return r.replicas }

// Successes returns the per-temperature-slot count of accepted swaps.
func (r *ReplicaExchangeMC) Successes() []int { return r.successes }

// SetExchanges sets the number of exchange attempts; each attempt follows one
// full outer x inner x sweep block of every replica.
func (r *ReplicaExchangeMC) SetExchanges(n int) { r.nExchanges = n }

// ExchangeEvaluator registers an evaluator called after every exchange attempt.
func (r *ReplicaExchangeMC) ExchangeEvaluator(e Evaluator) {
	r.evaluateEveryExchange = append(r.evaluateEveryExchange, e)
}

// ExchangeObserver registers an observer called after every exchange attempt.
func (r *ReplicaExchangeMC) ExchangeObserver(o Observer) {
	r.observeEveryExchange = append(r.observeEveryExchange, o)
}

// Run performs the configured number of exchange blocks. Within a block each
// replica runs on its own goroutine touching only its own state; the swap and
// observer dispatch happen after the join barrier.
func (r *ReplicaExchangeMC) Run() error {
	for iex := 0; iex < r.nExchanges; iex++ {
		var g errgroup.Group
		for _, task := range r.replicas {
			g.Go(task.Sampler.Run)
		}
		if err := g.Wait(); err != nil {
			return err
		}

		slot := r.rng.Intn(len(r.replicas) - 1)
		r.tryExchange(slot, slot+1)

		for _, e := range r.evaluateEveryExchange {
			e.Evaluate()
		}
		for _, o := range r.observeEveryExchange {
			if err := o.Observe(); err != nil {
				return err
			}
		}
	}
	return nil
}

// tryExchange attempts a swap between the replicas currently at temperature
// slots l1 and l2 = l1+1, using the detailed-balance rule
// accept iff dBeta*dE <= 0 or uniform < exp(-dBeta*dE).
func (r *ReplicaExchangeMC) tryExchange(l1, l2 int) bool {
	r1, r2 := r.replicas[l1], r.replicas[l2]
	delta := (1/r.temperatures[l1] - 1/r.temperatures[l2]) * (r2.Energy.Calculate() - r1.Energy.Calculate())
	if delta > 0 && r.rng.Float64() >= math.Exp(-delta) {
		return false
	}

	r.replicas[l1], r.replicas[l2] = r2, r1
	r1.TemperatureIndex = l2
	r2.TemperatureIndex = l1
	r1.Sampler.SetTemperature(r.temperatures[l2])
	r2.Sampler.SetTemperature(r.temperatures[l1])
	if l1 == 0 {
		r2.BoundaryFlag = 1
	}
	if l2 == 0 {
		r1.BoundaryFlag = 1
	}
	if l2 == len(r.replicas)-1 {
		r1.BoundaryFlag = 2
	}
	if l1 == len(r.replicas)-1 {
		r2.BoundaryFlag = 2
	}
	r.successes[l1]++
	r.successes[l2]++

	if r.mode == Isothermal {
		swapObserverStreams(r1.Sampler.observeEveryInnerCycle, r2.Sampler.observeEveryInnerCycle)
		swapObserverStreams(r1.Sampler.observeEveryOuterCycle, r2.Sampler.observeEveryOuterCycle)
	}
	return true
}

// swapObserverStreams exchanges the output streams of pairwise-matching
// stream observers, so file contents stay at a fixed temperature.
func swapObserverStreams(a, b []Observer) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sa, okA := a[i].(StreamObserver)
		sb, okB := b[i].(StreamObserver)
		if okA && okB {
			w := sa.Stream()
			sa.SetStream(sb.Stream())
			sb.SetStream(w)
		}
	}
}
