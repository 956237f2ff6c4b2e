package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeHelixInputs creates a 10-residue ideal alpha helix PDB and an all-H
// SS2 prediction in dir.
func writeHelixInputs(t *testing.T, dir string) (pdb, ss2 string) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 10; i++ {
		phi := float64(i) * 100.0 * math.Pi / 180.0
		x := 2.3 * math.Cos(phi)
		y := 2.3 * math.Sin(phi)
		z := 1.5 * float64(i)
		fmt.Fprintf(&b, "ATOM  %5d  CA  ALA A%4d    %8.3f%8.3f%8.3f  1.00  0.00           C\n",
			i+1, i+1, x, y, z)
	}
	b.WriteString("END\n")
	pdb = filepath.Join(dir, "helix.pdb")
	require.NoError(t, os.WriteFile(pdb, []byte(b.String()), 0o644))

	var s strings.Builder
	s.WriteString("# PSIPRED VFORMAT (PSIPRED V4.0)\n\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&s, "%4d A H   0.010  0.980  0.010\n", i+1)
	}
	ss2 = filepath.Join(dir, "helix.ss2")
	require.NoError(t, os.WriteFile(ss2, []byte(s.String()), 0o644))
	return pdb, ss2
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func baseOptions(pdb, ss2 string) *options {
	return &options{
		InPDB: pdb, InSS2: ss2,
		OutPDB:      "tra.pdb",
		Outer:       1, Inner: 1, CycleSize: 1,
		JumpRanges:  []float64{0.0},
		JumpNRanges: []float64{0.5},
		TBegin:      2.0, TEnd: 0.5, TSteps: 1,
		Exchanges:   5,
		Seed:        42,
		MinFraction: 0.1,
	}
}

func TestAnnealingFrozenMoverKeepsCoordinates(t *testing.T) {
	dir := t.TempDir()
	pdb, ss2 := writeHelixInputs(t, dir)
	chdir(t, dir)

	opts := baseOptions(pdb, ss2)
	require.NoError(t, run(opts))

	// A zero move range means no accepted moves: final.pdb repeats the
	// starting bead coordinates exactly, and the trajectory's only frame
	// matches final.pdb line for line.
	final, err := os.ReadFile("final.pdb")
	require.NoError(t, err)
	tra, err := os.ReadFile("tra.pdb")
	require.NoError(t, err)

	finalAtoms := atomLines(string(final))
	traAtoms := atomLines(string(tra))
	require.Len(t, finalAtoms, 7) // 10 residues -> 7 beads
	assert.Equal(t, finalAtoms, traAtoms)

	// The movers table reports a zero acceptance ratio.
	movers, err := os.ReadFile("movers.dat")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(movers)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "0.0000")

	for _, f := range []string{"energy.dat", "observers.dat", "r_end.dat", "topology.dat"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
}

func atomLines(pdb string) []string {
	var out []string
	for _, l := range strings.Split(pdb, "\n") {
		if strings.HasPrefix(l, "ATOM") {
			out = append(out, l)
		}
	}
	return out
}

func TestReplicaExchangeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	pdb, ss2 := writeHelixInputs(t, dir)
	chdir(t, dir)

	opts := baseOptions(pdb, ss2)
	opts.Replicas = "1.0,1.5"
	opts.JumpRanges = []float64{0.3}
	require.NoError(t, run(opts))

	flow, err := os.ReadFile("replica_flow.dat")
	require.NoError(t, err)
	rows := strings.Split(strings.TrimSpace(string(flow)), "\n")
	assert.Len(t, rows, 10) // 5 exchanges x 2 replicas

	for _, f := range []string{"tra-1.000.pdb", "tra-1.500.pdb", "energy-1.000.dat", "movers-1.500.dat", "final.pdb"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}

	// final.pdb holds one MODEL per replica.
	final, err := os.ReadFile("final.pdb")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(final), "MODEL"))
}

func TestRunMissingInputs(t *testing.T) {
	chdir(t, t.TempDir())
	assert.Error(t, run(&options{}))
	assert.Error(t, run(&options{InSS2: "nope.ss2"}))
}

func TestParseTemperatures(t *testing.T) {
	temps, err := parseTemperatures("1.0, 1.5,2.25")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 1.5, 2.25}, temps)

	_, err = parseTemperatures("1.0")
	assert.Error(t, err)
	_, err = parseTemperatures("1.0,abc")
	assert.Error(t, err)
}

func TestPickCycles(t *testing.T) {
	vals := []float64{0.3, 0.7}
	assert.Equal(t, 0.3, pick(vals, 0))
	assert.Equal(t, 0.7, pick(vals, 1))
	assert.Equal(t, 0.3, pick(vals, 2))
	assert.Equal(t, 0.5, pick(nil, 0))
}
