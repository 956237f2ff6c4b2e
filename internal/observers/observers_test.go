package observers

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/energy"
	"github.com/sarat-asymmetrica/surpass/internal/model"
	"github.com/sarat-asymmetrica/surpass/internal/sampling"
)

func testSystem(n int) *model.System {
	beads := make([]model.Bead, n)
	for i := range beads {
		beads[i] = model.Bead{Pos: r3.Vec{X: float64(i) * 3.8}, ChainID: 'A', ResidueIndex: i, BeadType: model.BeadH}
	}
	return model.NewSystem(beads)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestRgSquare(t *testing.T) {
	sys := testSystem(2) // beads at x=0 and x=3.8, centroid at 1.9
	rg := NewRgSquare(sys)
	assert.Equal(t, "RgSquare", rg.Name())
	assert.InDelta(t, 1.9*1.9, rg.Evaluate(), 1e-12)
}

func TestKabschRMSD(t *testing.T) {
	p := []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}, {X: -1, Y: -1}}

	// Identity and pure translation superpose exactly.
	assert.InDelta(t, 0.0, KabschRMSD(p, p), 1e-9)
	q := make([]r3.Vec, len(p))
	for i := range p {
		q[i] = r3.Add(p[i], r3.Vec{X: 5, Y: -2, Z: 7})
	}
	assert.InDelta(t, 0.0, KabschRMSD(p, q), 1e-9)

	// A rotation about z by 90 degrees superposes exactly too.
	for i := range p {
		q[i] = r3.Vec{X: -p[i].Y, Y: p[i].X, Z: p[i].Z}
	}
	assert.InDelta(t, 0.0, KabschRMSD(p, q), 1e-9)

	// A genuinely different shape does not.
	q[0] = r3.Vec{X: 3, Y: 3, Z: 3}
	assert.Greater(t, KabschRMSD(p, q), 0.1)
}

func TestCrmsdEvaluator(t *testing.T) {
	sys := testSystem(5)
	ref := SnapshotPositions(sys)
	ev := NewCrmsd(sys, ref)
	assert.InDelta(t, 0.0, ev.Evaluate(), 1e-9)

	sys.SetPos(0, r3.Vec{X: 10, Y: 10})
	assert.Greater(t, ev.Evaluate(), 0.5)
}

func TestPdbObserverFrames(t *testing.T) {
	sys := testSystem(3)
	path := filepath.Join(t.TempDir(), "tra.pdb")
	obs, err := NewPdbObserver(sys, path)
	require.NoError(t, err)

	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	lines := readLines(t, path)
	models := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "MODEL") {
			models++
		}
	}
	assert.Equal(t, 2, models)
	assert.Contains(t, lines[1], "ATOM")
}

func TestPdbObserverTrigger(t *testing.T) {
	sys := testSystem(3)
	path := filepath.Join(t.TempDir(), "min.pdb")
	obs, err := NewPdbObserver(sys, path)
	require.NoError(t, err)

	total := energy.NewTotalEnergy() // always zero
	obs.SetTrigger(NewTriggerLowEnergy(total, -1.0, 0.1))
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, b) // energy 0 never reaches the -1 gate
}

func TestObserveEnergyComponents(t *testing.T) {
	sys := testSystem(8)
	hb := energy.NewHydrogenBond(sys)
	total := energy.NewTotalEnergy()
	total.AddComponent(hb, 1.0)
	total.AddComponent(energy.NewHelixStiffnessEnergy(sys, 2.0, 180.0), 0.5)

	path := filepath.Join(t.TempDir(), "energy.dat")
	obs, err := NewObserveEnergyComponents(total, path)
	require.NoError(t, err)
	require.NoError(t, obs.ObserveHeader())
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.Contains(t, lines[0], "SurpassHydrogenBond")
	assert.Contains(t, lines[0], "TotalEnergy")
	assert.Equal(t, len(strings.Fields(lines[0][1:])), len(strings.Fields(lines[1])))
}

func TestObserveEvaluatorsTable(t *testing.T) {
	sys := testSystem(4)
	path := filepath.Join(t.TempDir(), "observers.dat")
	obs, err := NewObserveEvaluators(path)
	require.NoError(t, err)
	obs.AddEvaluator(NewRgSquare(sys))
	obs.AddEvaluator(NewTimer())

	require.NoError(t, obs.ObserveHeader())
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "RgSquare")
	assert.Contains(t, lines[0], "Timer")
	assert.Len(t, strings.Fields(lines[1]), 2)
}

func TestObserveMoversAcceptance(t *testing.T) {
	sys := testSystem(4)
	rng := rand.New(rand.NewSource(2))
	total := energy.NewTotalEnergy()
	m := sampling.NewPerturbResidue(sys, total, rng)
	m.SetMoveRange(0.3)
	movers := sampling.NewMoversSet()
	movers.AddMover(m, 4)

	// Flat energy: everything accepted.
	c := sampling.NewMetropolisCriterion(1.0, rng)
	movers.Sweep(c, rng)

	path := filepath.Join(t.TempDir(), "movers.dat")
	obs, err := NewObserveMoversAcceptance(movers, path)
	require.NoError(t, err)
	require.NoError(t, obs.ObserveHeader())
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "PerturbResidue")
	assert.InDelta(t, 1.0, mustFloat(t, strings.Fields(lines[1])[0]), 1e-9)
}

func mustFloat(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return v
}

func TestTopologyMatrixObserver(t *testing.T) {
	// Two strands far apart: an all-zero 2x2 matrix.
	beads := make([]model.Bead, 0, 11)
	for i := 0; i < 5; i++ {
		beads = append(beads, model.Bead{Pos: r3.Vec{X: float64(i) * 3.3}, ChainID: 'A', ResidueIndex: i, BeadType: model.BeadE})
	}
	beads = append(beads, model.Bead{Pos: r3.Vec{X: 50}, ChainID: 'A', ResidueIndex: 5, BeadType: model.BeadC})
	for i := 0; i < 5; i++ {
		beads = append(beads, model.Bead{Pos: r3.Vec{X: 100 + float64(i)*3.3}, ChainID: 'A', ResidueIndex: 6 + i, BeadType: model.BeadE})
	}
	sys := model.NewSystem(beads)
	hb := energy.NewHydrogenBond(sys)

	path := filepath.Join(t.TempDir(), "topology.dat")
	obs, err := NewTopologyMatrixObserver(hb, path)
	require.NoError(t, err)
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"0", "0", "0", "0"}, strings.Fields(lines[0]))
}

func TestEndVectorObserver(t *testing.T) {
	sys := testSystem(5) // chain along x, end-to-end 4*3.8
	path := filepath.Join(t.TempDir(), "r_end.dat")
	obs, err := NewEndVectorObserver(sys, path)
	require.NoError(t, err)
	require.NoError(t, obs.Observe())
	require.NoError(t, obs.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	fields := strings.Fields(lines[0])
	require.Len(t, fields, 5)
	assert.Equal(t, "A", fields[0])
	assert.InDelta(t, 4*3.8, mustFloat(t, fields[4]), 1e-6)
}

func TestReplicaFlowObserver(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	mk := func(temp float64) (*sampling.IsothermalMC, sampling.TotalEnergySource) {
		rrng := rand.New(rand.NewSource(int64(temp * 100)))
		sys := testSystem(6)
		total := energy.NewTotalEnergy()
		m := sampling.NewPerturbResidue(sys, total, rrng)
		m.SetMoveRange(0.2)
		movers := sampling.NewMoversSet()
		movers.AddMover(m, 6)
		s := sampling.NewIsothermalMC(movers, temp, rrng)
		s.Cycles(1, 1, 1)
		return s, total
	}
	s0, e0 := mk(1.0)
	s1, e1 := mk(1.5)

	remc, err := sampling.NewReplicaExchangeMC(
		[]*sampling.IsothermalMC{s0, s1}, []sampling.TotalEnergySource{e0, e1},
		sampling.Isotemporal, rng)
	require.NoError(t, err)
	remc.SetExchanges(10)

	path := filepath.Join(t.TempDir(), "replica_flow.dat")
	flow, err := NewReplicaFlowObserver(remc, path)
	require.NoError(t, err)
	remc.ExchangeObserver(flow)

	require.NoError(t, remc.Run())
	require.NoError(t, flow.Close())

	lines := readLines(t, path)
	assert.Len(t, lines, 20) // one row per replica per exchange

	// Rows come in replica-id order per exchange.
	first := strings.Fields(lines[0])
	second := strings.Fields(lines[1])
	assert.Equal(t, "0", first[1])
	assert.Equal(t, "1", second[1])
}

func TestTimerMonotone(t *testing.T) {
	timer := NewTimer()
	a := timer.Evaluate()
	b := timer.Evaluate()
	assert.GreaterOrEqual(t, b, a)
	assert.False(t, math.IsNaN(a))
}
