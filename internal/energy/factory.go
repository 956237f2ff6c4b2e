package energy

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sarat-asymmetrica/surpass/internal/model"
	"github.com/sarat-asymmetrica/surpass/internal/parser"
)

//go:embed data/forcefield
var defaultData embed.FS

// DefaultWeights returns the embedded default scoring function config.
func DefaultWeights() string {
	b, err := defaultData.ReadFile("data/forcefield/surpass.wghts")
	if err != nil {
		panic(err)
	}
	return string(b)
}

// defaultFiles maps term names to their embedded parameter files.
var defaultFiles = map[string]string{
	"SurpassR12":                   "R12_surpass.dat",
	"SurpassR13":                   "R13_surpass.dat",
	"SurpassR14":                   "R14_surpass.dat",
	"SurpassR15":                   "R15_surpass.dat",
	"SurpassA13":                   "A13_surpass.dat",
	"SurpassCentrosymmetricEnergy": "centrosymmetric_surpass.dat",
	"contact":                      "surpass_contact.dat",
}

// Factory builds a weighted SURPASS energy from a score config. A config line
// reads
//
//	<TermName> <weight> [<positional-arg>...]
//
// with '#' comments and short lines skipped. Parameter files named '-' fall
// back to the embedded defaults; relative names resolve against DataDir when
// it is set.
type Factory struct {
	System *model.System
	Coarse *parser.SecondaryStructure // per-bead secondary structure with class fractions
	// DataDir is the base directory for relative parameter file names given
	// in the config; it does not replace the embedded files picked by '-'.
	DataDir string

	hb    *HydrogenBond
	table *ContactTable
}

// HydrogenBondTerm returns the analyzer shared by the hydrogen-bond and
// contact terms, or nil when no term needed it.
func (f *Factory) HydrogenBondTerm() *HydrogenBond { return f.hb }

// sharedHB lazily builds the one analyzer instance every term shares.
func (f *Factory) sharedHB() *HydrogenBond {
	if f.hb == nil {
		f.hb = NewHydrogenBond(f.System)
	}
	return f.hb
}

// openParams resolves a parameter file argument: '-' or empty picks the
// embedded default for the term.
func (f *Factory) openParams(arg, fallback string) (io.ReadCloser, error) {
	if arg == "" || arg == "-" {
		file, err := defaultData.Open("data/forcefield/" + fallback)
		if err != nil {
			return nil, fmt.Errorf("energy: missing embedded parameter file %s: %w", fallback, err)
		}
		return file, nil
	}
	path := arg
	if f.DataDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.DataDir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("energy: parameter file: %w", err)
	}
	return file, nil
}

// contactTable lazily loads the shared contact distance table.
func (f *Factory) contactTable() (*ContactTable, error) {
	if f.table != nil {
		return f.table, nil
	}
	file, err := f.openParams("-", defaultFiles["contact"])
	if err != nil {
		return nil, err
	}
	defer file.Close()
	t, err := LoadContactTable(file)
	if err != nil {
		return nil, err
	}
	f.table = t
	return t, nil
}

// Create parses the score config and assembles the weighted total energy.
func (f *Factory) Create(cfg io.Reader) (*TotalEnergyByResidue, error) {
	total := NewTotalEnergy()
	scanner := bufio.NewScanner(cfg)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), "\t", " "))
		if len(line) < 5 || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) < 2 {
			continue
		}
		name := tokens[0]
		weight, err := strconv.ParseFloat(tokens[1], 64)
		if err != nil {
			return nil, fmt.Errorf("energy: bad weight for %s: %w", name, err)
		}
		term, err := f.createTerm(name, tokens[2:])
		if err != nil {
			return nil, err
		}
		total.AddComponent(term, weight)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("energy: reading score config: %w", err)
	}
	return total, nil
}

// floatArg parses params[i], or returns def when absent.
func floatArg(params []string, i int, def float64) (float64, error) {
	if i >= len(params) {
		return def, nil
	}
	return strconv.ParseFloat(params[i], 64)
}

func (f *Factory) createTerm(name string, params []string) (ByResidueEnergy, error) {
	switch name {
	case "SurpassHydrogenBond":
		return f.sharedHB(), nil

	case "SurpassContactEnergy":
		high, err := floatArg(params, 0, 2.0)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		low, err := floatArg(params, 1, -2.0)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		shift, err := floatArg(params, 2, 0.2)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		table, err := f.contactTable()
		if err != nil {
			return nil, err
		}
		return NewContactEnergy(f.System, f.sharedHB(), table, high, low, shift), nil

	case "SurpassCentrosymmetricEnergy", "SurpassCentrosymetricEnergy":
		dist, err := f.loadDistributions(params, "SurpassCentrosymmetricEnergy", -1)
		if err != nil {
			return nil, err
		}
		return NewCentrosymmetricEnergy(f.System, dist)

	case "SurpassLocalRepulsionEnergy":
		penalty, err := floatArg(params, 0, 4.0)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		shift, err := floatArg(params, 1, 0.2)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		table, err := f.contactTable()
		if err != nil {
			return nil, err
		}
		return NewLocalRepulsionEnergy(f.System, table, penalty, shift), nil

	case "SurpassHelixStiffnessEnergy", "SurpassHelixStifnessEnergy":
		k, err := floatArg(params, 0, 2.0)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		theta0, err := floatArg(params, 1, 170.0)
		if err != nil {
			return nil, fmt.Errorf("energy: %s params: %w", name, err)
		}
		return NewHelixStiffnessEnergy(f.System, k, theta0), nil

	case "SurpassR12", "SurpassR13", "SurpassR14", "SurpassR15", "SurpassA13":
		dist, err := f.loadDistributions(params, name, -1)
		if err != nil {
			return nil, err
		}
		switch name {
		case "SurpassR12":
			return NewR12(f.System, f.Coarse, dist)
		case "SurpassR13":
			return NewR13(f.System, f.Coarse, dist)
		case "SurpassR14":
			return NewR14(f.System, f.Coarse, dist)
		case "SurpassR15":
			return NewR15(f.System, f.Coarse, dist)
		default:
			return NewA13(f.System, f.Coarse, dist)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTerm, name)
	}
}

// loadDistributions opens the term's parameter file (params[0], '-' for the
// embedded default) with the pseudocount fraction in params[1].
func (f *Factory) loadDistributions(params []string, name string, defPseudo float64) (*Distributions, error) {
	arg := ""
	if len(params) > 0 {
		arg = params[0]
	}
	pseudo, err := floatArg(params, 1, defPseudo)
	if err != nil {
		return nil, fmt.Errorf("energy: %s pseudocounts: %w", name, err)
	}
	file, err := f.openParams(arg, defaultFiles[canonicalTerm(name)])
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadDistributions(file, pseudo)
}

// canonicalTerm folds the historical misspellings onto the canonical names.
func canonicalTerm(name string) string {
	switch name {
	case "SurpassCentrosymetricEnergy":
		return "SurpassCentrosymmetricEnergy"
	case "SurpassHelixStifnessEnergy":
		return "SurpassHelixStiffnessEnergy"
	}
	return name
}
