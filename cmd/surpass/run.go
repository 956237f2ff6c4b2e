package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/sarat-asymmetrica/surpass/internal/energy"
	"github.com/sarat-asymmetrica/surpass/internal/model"
	"github.com/sarat-asymmetrica/surpass/internal/observers"
	"github.com/sarat-asymmetrica/surpass/internal/parser"
	"github.com/sarat-asymmetrica/surpass/internal/sampling"
)

// replicaRNGStride separates the deterministic per-replica random streams
// derived from the master seed.
const replicaRNGStride = 1000

// run dispatches to annealing or replica exchange after loading the inputs.
func run(opts *options) error {
	setupLogger(opts.LogFile)

	if opts.InSS2 == "" {
		slog.Error("secondary structure prediction is required (-in:ss2)")
		return errors.New("missing -in:ss2")
	}
	if opts.InPDB == "" {
		slog.Error("SURPASS requires a starting conformation in PDB format (-in:pdb)")
		return errors.New("missing -in:pdb")
	}

	ss2, err := parser.ParseSS2(opts.InSS2)
	if err != nil {
		slog.Error("reading secondary structure", "error", err)
		return err
	}
	structures, err := parser.ParsePDB(opts.InPDB)
	if err != nil {
		slog.Error("reading starting conformation", "error", err)
		return err
	}

	scoreCfg, err := loadScoreConfig(opts.ScoreConfig)
	if err != nil {
		slog.Error("reading score config", "error", err)
		return err
	}

	if opts.Replicas != "" {
		temps, err := parseTemperatures(opts.Replicas)
		if err != nil {
			slog.Error("parsing replica temperatures", "error", err)
			return err
		}
		return runReplicas(opts, structures, ss2, scoreCfg, temps)
	}
	return runAnnealing(opts, structures[0], ss2, scoreCfg)
}

func loadScoreConfig(path string) (string, error) {
	if path == "" {
		return energy.DefaultWeights(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseTemperatures(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("bad temperature %q: %w", part, err)
		}
		out = append(out, t)
	}
	if len(out) < 2 {
		return nil, errors.New("replica exchange needs at least two temperatures")
	}
	return out, nil
}

// buildReplica assembles the per-replica state: bead store, energy, movers
// and sampler, each drawing from its own deterministic random stream.
type replica struct {
	system  *model.System
	total   *energy.TotalEnergyByResidue
	hb      *energy.HydrogenBond
	movers  *sampling.MoversSet
	sampler *sampling.IsothermalMC
}

func buildReplica(opts *options, structure *parser.Structure, ss2 *parser.SecondaryStructure,
	scoreCfg string, whichReplica int, temperature float64) (*replica, error) {

	system, coarse, warnings, err := model.BuildSystemAndSS(structure, ss2)
	for _, w := range warnings {
		slog.Warn(w)
	}
	if err != nil {
		return nil, err
	}

	factory := &energy.Factory{System: system, Coarse: coarse, DataDir: opts.DataDir}
	total, err := factory.Create(strings.NewReader(scoreCfg))
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed + replicaRNGStride*int64(whichReplica)))
	movers := sampling.NewMoversSet()

	perturb := sampling.NewPerturbResidue(system, total, rng)
	perturb.SetMoveRange(pick(opts.JumpRanges, whichReplica))
	movers.AddMover(perturb, float64(system.Count()))

	if opts.JumpNLen > 0 {
		fragment := sampling.NewPerturbChainFragment(system, total, opts.JumpNLen, rng)
		fragment.SetMoveRange(pick(opts.JumpNRanges, whichReplica))
		movers.AddMover(fragment, float64(system.Count()/opts.JumpNLen))
	}

	sampler := sampling.NewIsothermalMC(movers, temperature, rng)
	return &replica{system: system, total: total, hb: factory.HydrogenBondTerm(), movers: movers, sampler: sampler}, nil
}

// pick cycles a per-replica list when it is shorter than the replica count.
func pick(vals []float64, i int) float64 {
	if len(vals) == 0 {
		return 0.5
	}
	return vals[i%len(vals)]
}

// attachObservers wires the standard observer files onto a sampler. The
// suffix distinguishes per-replica files; an empty suffix yields the plain
// annealing names.
func attachObservers(opts *options, r *replica, suffix string, closers *[]io.Closer) error {
	name := func(base, ext string) string { return base + suffix + ext }

	tra, err := observers.NewPdbObserver(r.system, orDefault(opts.OutPDB, name("tra", ".pdb"), suffix))
	if err != nil {
		return err
	}
	*closers = append(*closers, tra)

	stats, err := observers.NewObserveEvaluators(name("observers", ".dat"))
	if err != nil {
		return err
	}
	*closers = append(*closers, stats)
	stats.AddEvaluator(observers.NewRgSquare(r.system))
	stats.AddEvaluator(observers.NewTimer())
	ref := observers.SnapshotPositions(r.system)
	if opts.InNative != "" {
		native, err := parser.ParsePDB(opts.InNative)
		if err != nil {
			return fmt.Errorf("reading native reference: %w", err)
		}
		nativeSys, _, _, err := model.BuildSystemAndSS(native[0], nil)
		if err == nil {
			ref = observers.SnapshotPositions(nativeSys)
		}
	}
	stats.AddEvaluator(observers.NewCrmsd(r.system, ref))
	if err := stats.ObserveHeader(); err != nil {
		return err
	}

	obsEn, err := observers.NewObserveEnergyComponents(r.total, name("energy", ".dat"))
	if err != nil {
		return err
	}
	*closers = append(*closers, obsEn)
	if err := obsEn.ObserveHeader(); err != nil {
		return err
	}

	obsMv, err := observers.NewObserveMoversAcceptance(r.movers, name("movers", ".dat"))
	if err != nil {
		return err
	}
	*closers = append(*closers, obsMv)
	if err := obsMv.ObserveHeader(); err != nil {
		return err
	}

	rEnd, err := observers.NewEndVectorObserver(r.system, name("r_end", ".dat"))
	if err != nil {
		return err
	}
	*closers = append(*closers, rEnd)

	if r.hb != nil {
		topo, err := observers.NewTopologyMatrixObserver(r.hb, name("topology", ".dat"))
		if err != nil {
			return err
		}
		*closers = append(*closers, topo)
		r.sampler.OuterCycleObserver(topo)
	}

	r.sampler.OuterCycleObserver(stats)
	r.sampler.OuterCycleObserver(obsEn)
	r.sampler.OuterCycleObserver(obsMv)
	r.sampler.OuterCycleObserver(rEnd)
	r.sampler.OuterCycleObserver(tra)

	if suffix == "" && opts.OutPDBMin != "" {
		minTra, err := observers.NewPdbObserver(r.system, opts.OutPDBMin)
		if err != nil {
			return err
		}
		*closers = append(*closers, minTra)
		gate := opts.MinValue
		if gate == 0 {
			gate = r.total.Calculate()
		}
		minTra.SetTrigger(observers.NewTriggerLowEnergy(r.total, gate, opts.MinFraction))
		r.sampler.OuterCycleObserver(minTra)
	}
	return nil
}

// orDefault returns the explicit trajectory name for the annealing run and
// the suffixed per-replica name otherwise.
func orDefault(explicit, suffixed, suffix string) string {
	if suffix == "" && explicit != "" {
		return explicit
	}
	return suffixed
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}

func runAnnealing(opts *options, structure *parser.Structure, ss2 *parser.SecondaryStructure, scoreCfg string) error {
	r, err := buildReplica(opts, structure, ss2, scoreCfg, 0, opts.TBegin)
	if err != nil {
		slog.Error("building system", "error", err)
		return err
	}
	r.sampler.Cycles(opts.Inner, opts.Outer, opts.CycleSize)

	var closers []io.Closer
	defer func() { closeAll(closers) }()
	if err := attachObservers(opts, r, "", &closers); err != nil {
		slog.Error("opening observers", "error", err)
		return err
	}

	slog.Info("starting annealing",
		"beads", r.system.Count(),
		"initial_energy", r.total.Calculate(),
		"t_begin", opts.TBegin, "t_end", opts.TEnd, "t_steps", opts.TSteps)

	sa := sampling.NewSimulatedAnnealing(r.sampler, sampling.AnnealingSchedule(opts.TBegin, opts.TEnd, opts.TSteps))
	if err := sa.Run(); err != nil {
		slog.Error("sampling failed", "error", err)
		return err
	}
	if err := observers.WriteFinalPDB("final.pdb", r.system); err != nil {
		slog.Error("writing final conformation", "error", err)
		return err
	}
	slog.Info("finished", "final_energy", r.total.Calculate())
	return nil
}

func runReplicas(opts *options, structures []*parser.Structure, ss2 *parser.SecondaryStructure,
	scoreCfg string, temps []float64) error {

	// Pad the starting models by reusing the last one, as multi-model input
	// files may carry fewer models than replicas.
	for len(structures) < len(temps) {
		structures = append(structures, structures[len(structures)-1])
	}

	var closers []io.Closer
	defer func() { closeAll(closers) }()

	replicas := make([]*replica, len(temps))
	samplers := make([]*sampling.IsothermalMC, len(temps))
	energies := make([]sampling.TotalEnergySource, len(temps))
	for i, t := range temps {
		r, err := buildReplica(opts, structures[i], ss2, scoreCfg, i, t)
		if err != nil {
			slog.Error("building replica", "replica", i, "error", err)
			return err
		}
		r.sampler.Cycles(opts.Inner, opts.Outer, opts.CycleSize)
		suffix := fmt.Sprintf("-%.3f", t)
		if err := attachObservers(opts, r, suffix, &closers); err != nil {
			slog.Error("opening observers", "replica", i, "error", err)
			return err
		}
		slog.Info("replica ready", "replica", i, "temperature", t,
			"initial_energy", r.total.Calculate(), "jump_range", pick(opts.JumpRanges, i))
		replicas[i] = r
		samplers[i] = r.sampler
		energies[i] = r.total
	}

	mode := sampling.Isothermal
	if opts.ObserveMode == 1 {
		mode = sampling.Isotemporal
	}
	swapRNG := rand.New(rand.NewSource(opts.Seed + 7919))
	remc, err := sampling.NewReplicaExchangeMC(samplers, energies, mode, swapRNG)
	if err != nil {
		slog.Error("building replica exchange driver", "error", err)
		return err
	}
	remc.SetExchanges(opts.Exchanges)

	flow, err := observers.NewReplicaFlowObserver(remc, "replica_flow.dat")
	if err != nil {
		slog.Error("opening replica flow file", "error", err)
		return err
	}
	closers = append(closers, flow)
	remc.ExchangeObserver(flow)

	slog.Info("starting replica exchange", "replicas", len(temps), "exchanges", opts.Exchanges, "mode", mode.String())
	if err := remc.Run(); err != nil {
		slog.Error("replica exchange failed", "error", err)
		return err
	}

	systems := make([]*model.System, len(replicas))
	for i, r := range replicas {
		systems[i] = r.system
	}
	if err := observers.WriteFinalPDB("final.pdb", systems...); err != nil {
		slog.Error("writing final conformation", "error", err)
		return err
	}
	for i := range remc.Successes() {
		slog.Info("exchange statistics", "temperature_index", i, "successes", remc.Successes()[i])
	}
	return nil
}
