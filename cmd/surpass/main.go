// Command surpass runs the SURPASS coarse-grained protein simulator: either
// a single-replica simulated annealing protocol or parallel replica exchange
// Monte Carlo, depending on the -replicas flag.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// options gathers the resolved CLI configuration.
type options struct {
	InPDB       string
	InSS2       string
	InNative    string
	OutPDB      string
	OutPDBMin   string
	MinValue    float64
	MinFraction float64

	Outer     int
	Inner     int
	CycleSize int

	JumpRanges    []float64
	JumpNRanges   []float64
	JumpNLen      int
	TBegin        float64
	TEnd          float64
	TSteps        int
	Replicas      string
	Exchanges     int
	ObserveMode   int
	Seed          int64
	ScoreConfig   string
	DataDir       string
	LogFile       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "surpass",
		Short: "SURPASS coarse-grained protein structure simulator",
		Long: `SURPASS samples coarse-grained protein conformations by Metropolis Monte
Carlo under a knowledge-based force field. One bead represents four
consecutive alpha carbons; beads carry a predicted secondary structure label.

Without -replicas the simulator runs simulated annealing over the -t:begin /
-t:end / -t:steps schedule; with -replicas it runs replica exchange Monte
Carlo, one OS thread per replica.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			fill(opts, v)
			return run(opts)
		},
	}

	fl := cmd.Flags()
	fl.String("in:pdb", "", "starting conformation in PDB format (required)")
	fl.String("in:ss2", "", "per-residue secondary structure prediction, PsiPred SS2 format (required)")
	fl.String("in:pdb:native", "", "reference structure for the RMSD evaluator")
	fl.String("out:pdb", "tra.pdb", "trajectory file")
	fl.String("out:pdb:min", "", "low-energy trajectory file, gated by a trigger")
	fl.Float64("out:pdb:min:value", 0, "initial energy gate for the low-energy trajectory (default: starting energy)")
	fl.Float64("out:pdb:min:fraction", 0.1, "slack fraction of the low-energy gate")
	fl.Int("mc:outer", 200, "number of outer Monte Carlo cycles")
	fl.Int("mc:inner", 200, "number of inner Monte Carlo cycles")
	fl.Int("mc:cycle", 10, "MC sweeps per inner cycle")
	fl.Float64Slice("jump:range", []float64{0.5}, "max single-bead move, per replica (cycled)")
	fl.Float64Slice("jump:n:range", []float64{0.5}, "max fragment move, per replica (cycled)")
	fl.Int("jump:n:len", 0, "fragment length for the chain-fragment mover; 0 disables it")
	fl.Float64("t:begin", 2.0, "annealing start temperature")
	fl.Float64("t:end", 0.5, "annealing end temperature")
	fl.Int("t:steps", 4, "number of annealing temperature steps")
	fl.String("replicas", "", "comma-separated replica temperatures; switches to replica exchange")
	fl.Int("replicas:exchanges", 10, "number of replica exchange attempts")
	fl.Int("replicas:mode", 0, "replica observation mode: 0 isothermal, 1 isotemporal")
	fl.Int64("rnd:seed", 1337, "random seed")
	fl.String("scfx", "", "weighted score config file (default: built-in SURPASS weights)")
	fl.String("data", "", "directory with force field parameter files")
	fl.String("log", "", "log file (rotated); default stderr")
	fl.String("config", "", "optional YAML config file mirroring the flags")

	v.SetEnvPrefix("SURPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(":", "_"))
	v.AutomaticEnv()

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
			v.SetConfigFile(cfg)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
		}
		return nil
	}
	return cmd
}

// fill copies the resolved values (flags, env, config file) into opts.
func fill(o *options, v *viper.Viper) {
	o.InPDB = v.GetString("in:pdb")
	o.InSS2 = v.GetString("in:ss2")
	o.InNative = v.GetString("in:pdb:native")
	o.OutPDB = v.GetString("out:pdb")
	o.OutPDBMin = v.GetString("out:pdb:min")
	o.MinValue = v.GetFloat64("out:pdb:min:value")
	o.MinFraction = v.GetFloat64("out:pdb:min:fraction")
	o.Outer = v.GetInt("mc:outer")
	o.Inner = v.GetInt("mc:inner")
	o.CycleSize = v.GetInt("mc:cycle")
	o.JumpRanges = floatSlice(v, "jump:range", 0.5)
	o.JumpNRanges = floatSlice(v, "jump:n:range", 0.5)
	o.JumpNLen = v.GetInt("jump:n:len")
	o.TBegin = v.GetFloat64("t:begin")
	o.TEnd = v.GetFloat64("t:end")
	o.TSteps = v.GetInt("t:steps")
	o.Replicas = v.GetString("replicas")
	o.Exchanges = v.GetInt("replicas:exchanges")
	o.ObserveMode = v.GetInt("replicas:mode")
	o.Seed = v.GetInt64("rnd:seed")
	o.ScoreConfig = v.GetString("scfx")
	o.DataDir = v.GetString("data")
	o.LogFile = v.GetString("log")
}

func floatSlice(v *viper.Viper, key string, def float64) []float64 {
	vals := v.GetStringSlice(key)
	if len(vals) == 0 {
		return []float64{def}
	}
	out := make([]float64, 0, len(vals))
	for _, s := range vals {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(strings.Trim(part, "[]"))
			if part == "" {
				continue
			}
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				continue
			}
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return []float64{def}
	}
	return out
}

// setupLogger routes slog to stderr or a rotated log file.
func setupLogger(path string) {
	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return
	}
	sink := &lumberjack.Logger{Filename: path, MaxSize: 20, MaxBackups: 3}
	slog.SetDefault(slog.New(slog.NewTextHandler(sink, nil)))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
