package sampling

import (
	"io"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// tetherEnergy is a harmonic restraint of every bead to its anchor position,
// a cheap stand-in for the force field in sampler tests.
type tetherEnergy struct {
	system  *model.System
	anchors []r3.Vec
	k       float64
}

func newTetherEnergy(system *model.System, k float64) *tetherEnergy {
	anchors := make([]r3.Vec, system.Count())
	for i := range anchors {
		anchors[i] = system.Pos(i)
	}
	return &tetherEnergy{system: system, anchors: anchors, k: k}
}

func (e *tetherEnergy) Name() string { return "Tether" }

func (e *tetherEnergy) CalculateByResidue(r int) float64 {
	d := r3.Sub(e.system.Pos(r), e.anchors[r])
	return e.k * r3.Norm2(d)
}

func (e *tetherEnergy) CalculateByChunk(from, to int) float64 {
	en := 0.0
	for i := from; i <= to; i++ {
		en += e.CalculateByResidue(i)
	}
	return en
}

func (e *tetherEnergy) Calculate() float64 { return e.CalculateByChunk(0, e.system.Count()-1) }

func chainSystem(n int) *model.System {
	beads := make([]model.Bead, n)
	for i := range beads {
		beads[i] = model.Bead{Pos: r3.Vec{X: float64(i) * 3.8}, ChainID: 'A', ResidueIndex: i, BeadType: model.BeadH}
	}
	return model.NewSystem(beads)
}

func TestMetropolisCriterion(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := NewMetropolisCriterion(1.0, rng)

	assert.True(t, c.Accept(-1.0))
	assert.True(t, c.Accept(0.0))
	// A hard reject never passes.
	for i := 0; i < 100; i++ {
		assert.False(t, c.Accept(math.Inf(1)))
	}
	// At very low temperature an uphill move essentially never passes.
	c.SetTemperature(1e-9)
	for i := 0; i < 100; i++ {
		assert.False(t, c.Accept(1.0))
	}
}

func TestAcceptanceRateByTemperature(t *testing.T) {
	run := func(temp float64) float64 {
		rng := rand.New(rand.NewSource(42))
		sys := chainSystem(30)
		en := newTetherEnergy(sys, 10.0)

		mover := NewPerturbResidue(sys, en, rng)
		mover.SetMoveRange(0.5)
		movers := NewMoversSet()
		movers.AddMover(mover, float64(sys.Count()))

		c := NewMetropolisCriterion(temp, rng)
		for i := 0; i < 300; i++ {
			movers.Sweep(c, rng)
		}
		return mover.SuccessRate()
	}

	assert.Greater(t, run(100.0), 0.8)
	assert.Less(t, run(0.01), 0.05)
}

func TestZeroMoveRangeNeverAccepts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sys := chainSystem(10)
	en := newTetherEnergy(sys, 1.0)

	start := make([]r3.Vec, sys.Count())
	for i := range start {
		start[i] = sys.Pos(i)
	}

	mover := NewPerturbResidue(sys, en, rng)
	mover.SetMoveRange(0.0)
	movers := NewMoversSet()
	movers.AddMover(mover, float64(sys.Count()))

	sampler := NewIsothermalMC(movers, 2.0, rng)
	sampler.Cycles(1, 1, 1)
	require.NoError(t, sampler.Run())

	proposed, accepted := mover.Stats()
	assert.Equal(t, uint64(sys.Count()), proposed)
	assert.Zero(t, accepted)
	for i := range start {
		assert.Equal(t, start[i], sys.Pos(i), "bead %d moved", i)
	}
	assert.Equal(t, 0.0, en.Calculate())
}

func TestRejectRestoresState(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sys := chainSystem(5)
	en := newTetherEnergy(sys, 1000.0)

	mover := NewPerturbResidue(sys, en, rng)
	mover.SetMoveRange(2.0)
	c := NewMetropolisCriterion(1e-9, rng) // reject everything uphill

	before := make([]r3.Vec, sys.Count())
	for i := range before {
		before[i] = sys.Pos(i)
	}
	for i := 0; i < 50; i++ {
		mover.Move(c)
	}
	for i := range before {
		assert.Equal(t, before[i], sys.Pos(i))
	}
}

func TestReproducibleTrajectories(t *testing.T) {
	run := func() float64 {
		rng := rand.New(rand.NewSource(1234))
		sys := chainSystem(20)
		en := newTetherEnergy(sys, 5.0)
		mover := NewPerturbResidue(sys, en, rng)
		mover.SetMoveRange(0.7)
		movers := NewMoversSet()
		movers.AddMover(mover, float64(sys.Count()))

		sampler := NewIsothermalMC(movers, 1.5, rng)
		sampler.Cycles(3, 2, 2)
		require.NoError(t, sampler.Run())
		return en.Calculate()
	}
	assert.Equal(t, run(), run())
}

func TestPerturbChainFragmentStaysInChain(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	beads := make([]model.Bead, 12)
	for i := range beads {
		id := byte('A')
		if i >= 6 {
			id = 'B'
		}
		beads[i] = model.Bead{Pos: r3.Vec{X: float64(i) * 3.8}, ChainID: id, ResidueIndex: i, BeadType: model.BeadC}
	}
	sys := model.NewSystem(beads)
	en := newTetherEnergy(sys, 0.0) // free system, every move accepted

	mover := NewPerturbChainFragment(sys, en, 3, rng)
	mover.SetMoveRange(0.5)
	c := NewMetropolisCriterion(1.0, rng)

	for i := 0; i < 200; i++ {
		before := make([]r3.Vec, sys.Count())
		for j := range before {
			before[j] = sys.Pos(j)
		}
		mover.Move(c)
		touched := map[int]bool{}
		for j := range before {
			if sys.Pos(j) != before[j] {
				touched[sys.ChainForBead(j)] = true
			}
		}
		assert.LessOrEqual(t, len(touched), 1, "move %d touched beads of two chains", i)
	}
	// With a zero force constant everything is downhill-or-flat.
	proposed, accepted := mover.Stats()
	assert.Equal(t, proposed, accepted)
}

func TestMoversSetWeighting(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	sys := chainSystem(8)
	en := newTetherEnergy(sys, 1.0)

	a := NewPerturbResidue(sys, en, rng)
	a.SetMoveRange(0.1)
	b := NewPerturbChainFragment(sys, en, 2, rng)
	b.SetMoveRange(0.1)

	movers := NewMoversSet()
	movers.AddMover(a, 8)
	movers.AddMover(b, 4)
	assert.Equal(t, 12, movers.SweepSize())

	counts := map[string]int{}
	for i := 0; i < 12000; i++ {
		counts[movers.Pick(rng).Name()]++
	}
	ratio := float64(counts["PerturbResidue"]) / float64(counts["PerturbChainFragment"])
	assert.InDelta(t, 2.0, ratio, 0.2)
}

type countObserver struct{ n int }

func (o *countObserver) Observe() error { o.n++; return nil }

type countEvaluator struct{ n int }

func (e *countEvaluator) Name() string      { return "count" }
func (e *countEvaluator) Evaluate() float64 { e.n++; return float64(e.n) }

func TestObserverDispatchCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sys := chainSystem(4)
	en := newTetherEnergy(sys, 1.0)
	mover := NewPerturbResidue(sys, en, rng)
	mover.SetMoveRange(0.1)
	movers := NewMoversSet()
	movers.AddMover(mover, 4)

	sampler := NewIsothermalMC(movers, 1.0, rng)
	sampler.Cycles(3, 5, 1) // 3 inner, 5 outer

	inner := &countObserver{}
	outer := &countObserver{}
	innerEval := &countEvaluator{}
	sampler.InnerCycleObserver(inner)
	sampler.OuterCycleObserver(outer)
	sampler.InnerCycleEvaluator(innerEval)

	require.NoError(t, sampler.Run())
	assert.Equal(t, 15, inner.n)
	assert.Equal(t, 5, outer.n)
	assert.Equal(t, 15, innerEval.n)
}

func TestAnnealingSchedule(t *testing.T) {
	s := AnnealingSchedule(4.0, 1.0, 3)
	require.Len(t, s, 3)
	assert.InDelta(t, 4.0, s[0], 1e-12)
	assert.InDelta(t, 2.0, s[1], 1e-12)
	assert.InDelta(t, 1.0, s[2], 1e-9)

	assert.Equal(t, []float64{2.5}, AnnealingSchedule(2.5, 0.5, 1))
}

func TestSimulatedAnnealingRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sys := chainSystem(10)
	en := newTetherEnergy(sys, 5.0)
	mover := NewPerturbResidue(sys, en, rng)
	mover.SetMoveRange(0.4)
	movers := NewMoversSet()
	movers.AddMover(mover, float64(sys.Count()))

	sampler := NewIsothermalMC(movers, 0, rng)
	sampler.Cycles(2, 2, 1)
	outer := &countObserver{}
	sampler.OuterCycleObserver(outer)

	sa := NewSimulatedAnnealing(sampler, AnnealingSchedule(2.0, 0.5, 4))
	require.NoError(t, sa.Run())

	// Observers fire across all four temperature segments.
	assert.Equal(t, 8, outer.n)
	assert.InDelta(t, 0.5, sampler.Temperature(), 1e-9)
}

func TestReplicaExchangeSwaps(t *testing.T) {
	rng := rand.New(rand.NewSource(77))

	newReplica := func(seed int64) (*IsothermalMC, TotalEnergySource) {
		rrng := rand.New(rand.NewSource(seed))
		sys := chainSystem(10)
		en := newTetherEnergy(sys, 5.0)
		mover := NewPerturbResidue(sys, en, rrng)
		mover.SetMoveRange(0.5)
		movers := NewMoversSet()
		movers.AddMover(mover, float64(sys.Count()))
		s := NewIsothermalMC(movers, 0, rrng)
		s.Cycles(1, 1, 1)
		return s, en
	}

	s0, e0 := newReplica(100)
	s1, e1 := newReplica(200)
	s0.SetTemperature(1.0)
	s1.SetTemperature(1.5)

	remc, err := NewReplicaExchangeMC(
		[]*IsothermalMC{s0, s1}, []TotalEnergySource{e0, e1}, Isotemporal, rng)
	require.NoError(t, err)
	remc.SetExchanges(100)

	flow := &countObserver{}
	remc.ExchangeObserver(flow)
	require.NoError(t, remc.Run())

	assert.Equal(t, 100, flow.n)
	succ := remc.Successes()[0]
	assert.Greater(t, succ, 0)
	assert.LessOrEqual(t, succ, 100)

	// Replica identities are preserved; temperature indices are a permutation.
	tasks := remc.Replicas()
	ids := map[int]bool{tasks[0].ReplicaIndex: true, tasks[1].ReplicaIndex: true}
	assert.Len(t, ids, 2)
	assert.Equal(t, 0, tasks[0].TemperatureIndex)
	assert.Equal(t, 1, tasks[1].TemperatureIndex)
}

// sliceWriter collects written lines into a string slice, standing in for an
// output file in stream-swap tests.
type sliceWriter struct{ rows *[]string }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.rows = append(*w.rows, strings.TrimSpace(string(p)))
	return len(p), nil
}

// tagObserver writes its replica tag to whatever stream it currently holds.
type tagObserver struct {
	tag string
	out io.Writer
}

func (o *tagObserver) Observe() error {
	_, err := o.out.Write([]byte(o.tag))
	return err
}

func (o *tagObserver) Stream() io.Writer     { return o.out }
func (o *tagObserver) SetStream(w io.Writer) { o.out = w }

func TestIsothermalStreamSwap(t *testing.T) {
	// Two replicas at equal energy: the exchange criterion always accepts, so
	// after the first block the observer streams must have swapped under
	// Isothermal mode and stayed put under Isotemporal.
	build := func(mode ObservationMode) ([]string, []string) {
		rng := rand.New(rand.NewSource(5))
		var fileA, fileB []string

		mk := func(seed int64, tag string, sink *[]string) (*IsothermalMC, TotalEnergySource, *tagObserver) {
			rrng := rand.New(rand.NewSource(seed))
			sys := chainSystem(6)
			en := newTetherEnergy(sys, 0.0) // constant zero energy
			mover := NewPerturbResidue(sys, en, rrng)
			mover.SetMoveRange(0.0)
			movers := NewMoversSet()
			movers.AddMover(mover, 1)
			s := NewIsothermalMC(movers, 0, rrng)
			s.Cycles(1, 1, 1)
			obs := &tagObserver{tag: tag, out: &sliceWriter{rows: sink}}
			s.OuterCycleObserver(obs)
			return s, en, obs
		}

		s0, e0, _ := mk(1, "r0", &fileA)
		s1, e1, _ := mk(2, "r1", &fileB)
		s0.SetTemperature(1.0)
		s1.SetTemperature(1.5)

		remc, err := NewReplicaExchangeMC([]*IsothermalMC{s0, s1}, []TotalEnergySource{e0, e1}, mode, rng)
		require.NoError(t, err)
		remc.SetExchanges(2)
		require.NoError(t, remc.Run())
		return fileA, fileB
	}

	a, b := build(Isothermal)
	assert.Equal(t, []string{"r0", "r1"}, a)
	assert.Equal(t, []string{"r1", "r0"}, b)

	a, b = build(Isotemporal)
	assert.Equal(t, []string{"r0", "r0"}, a)
	assert.Equal(t, []string{"r1", "r1"}, b)
}
