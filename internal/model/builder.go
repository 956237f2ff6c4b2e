package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/parser"
)

// surpassWindow is the number of consecutive alpha carbons averaged into one bead.
const surpassWindow = 4

// windowSS applies the label rules to the four residue labels of one window.
func windowSS(s0, s1, s2, s3 byte) byte {
	switch {
	case s0 == s1 && s0 == s2 && s0 == s3:
		return s0
	case s0 == 'C' && s1 == s2 && s1 == s3:
		return s1
	case s3 == 'C' && s0 == s1 && s0 == s2:
		return s0
	default:
		return 'C'
	}
}

func beadTypeOf(ss byte) int {
	switch ss {
	case 'H':
		return BeadH
	case 'E':
		return BeadE
	default:
		return BeadC
	}
}

// IsSurpassModel reports whether the structure is already coarse-grained:
// every residue is a single bead named " H  ", " S  " or " C  ".
func IsSurpassModel(s *parser.Structure) bool {
	ok := s.CountResidues() > 0
	s.EachResidue(func(r *parser.Residue) {
		if len(r.Atoms) != 1 {
			ok = false
			return
		}
		switch r.Atoms[0].Name {
		case " H  ", " S  ", " C  ":
		default:
			ok = false
		}
	})
	return ok
}

// BuildSystem converts an atomistic structure and a per-residue secondary
// structure prediction into the SURPASS bead store. Chains shorter than four
// amino acids are dropped with a warning; a structure yielding no beads at
// all is an error.
//
// A structure that is already in SURPASS form is adopted as-is: coordinates
// are taken verbatim and each bead's type is re-derived from its atom name,
// so rebuilding an emitted model reproduces the written coordinates exactly
// (the PDB text itself holds three decimals).
func BuildSystem(s *parser.Structure, ss2 *parser.SecondaryStructure) (*System, []string, error) {
	sys, _, warnings, err := BuildSystemAndSS(s, ss2)
	return sys, warnings, err
}

// BuildSystemAndSS additionally returns the per-bead coarse secondary
// structure with the window probability mixtures, aligned one-to-one with the
// emitted beads (skipped windows are skipped in both).
func BuildSystemAndSS(s *parser.Structure, ss2 *parser.SecondaryStructure) (*System, *parser.SecondaryStructure, []string, error) {
	if IsSurpassModel(s) {
		sys, warnings, err := adoptSurpass(s)
		if err != nil {
			return nil, nil, warnings, err
		}
		return sys, coarseFromBeads(sys), warnings, nil
	}

	assignResidueSS(s, ss2)

	var beads []Bead
	var wins [][4]byte
	var warnings []string
	globalIndex := 0
	for _, chain := range s.Chains {
		n := len(chain.Residues)
		if n < surpassWindow {
			warnings = append(warnings,
				fmt.Sprintf("chain %c has %d residues, shorter than one SURPASS window: dropped", chain.ID, n))
			continue
		}
		for i := 0; i+surpassWindow <= n; i++ {
			w := chain.Residues[i : i+surpassWindow]
			var sum r3.Vec
			var bf float64
			ok := true
			for _, r := range w {
				if r.CA == nil {
					ok = false
					break
				}
				sum = r3.Add(sum, r3.Vec{X: r.CA.X, Y: r.CA.Y, Z: r.CA.Z})
				bf += r.CA.BFactor
			}
			if !ok {
				warnings = append(warnings,
					fmt.Sprintf("chain %c window at residue %d misses a CA atom: bead skipped", chain.ID, w[0].SeqNum))
				continue
			}
			beads = append(beads, Bead{
				Pos:          r3.Scale(1.0/surpassWindow, sum),
				ChainID:      chain.ID,
				ResidueIndex: globalIndex,
				BeadType:     beadTypeOf(windowSS(w[0].SS, w[1].SS, w[2].SS, w[3].SS)),
				ResidueType:  'G',
				BFactor:      bf / surpassWindow,
			})
			wins = append(wins, [4]byte{w[0].SS, w[1].SS, w[2].SS, w[3].SS})
			globalIndex++
		}
	}
	if len(beads) == 0 {
		return nil, nil, warnings, parser.ErrNoUsableBeads
	}
	return NewSystem(beads), coarseFromWindows(wins), warnings, nil
}

// coarseFromWindows assigns each emitted bead its window probability mixture.
func coarseFromWindows(wins [][4]byte) *parser.SecondaryStructure {
	out := parser.NewSecondaryStructure(repeatG(len(wins)), repeatC(len(wins)))
	for i, w := range wins {
		h, e, c := windowFractions(w)
		out.SetFractions(i, h, e, c)
	}
	return out
}

// coarseFromBeads derives hard per-bead fractions for an adopted SURPASS
// structure, whose windows are no longer available.
func coarseFromBeads(sys *System) *parser.SecondaryStructure {
	out := parser.NewSecondaryStructure(repeatG(sys.Count()), repeatC(sys.Count()))
	for i := 0; i < sys.Count(); i++ {
		switch sys.Bead(i).BeadType {
		case BeadH:
			out.SetFractions(i, 1, 0, 0)
		case BeadE:
			out.SetFractions(i, 0, 1, 0)
		default:
			out.SetFractions(i, 0, 0, 1)
		}
	}
	return out
}

func repeatG(n int) string { return strings.Repeat("G", n) }
func repeatC(n int) string { return strings.Repeat("C", n) }

// adoptSurpass wraps an already coarse-grained structure without touching
// its coordinates.
func adoptSurpass(s *parser.Structure) (*System, []string, error) {
	var beads []Bead
	globalIndex := 0
	for _, chain := range s.Chains {
		for _, r := range chain.Residues {
			a := r.Atoms[0]
			ss := byte('C')
			switch a.Name {
			case " H  ":
				ss = 'H'
			case " S  ":
				ss = 'E'
			}
			r.SS = ss
			beads = append(beads, Bead{
				Pos:          r3.Vec{X: a.X, Y: a.Y, Z: a.Z},
				ChainID:      chain.ID,
				ResidueIndex: globalIndex,
				BeadType:     beadTypeOf(ss),
				ResidueType:  'G',
				BFactor:      a.BFactor,
			})
			globalIndex++
		}
	}
	if len(beads) == 0 {
		return nil, nil, parser.ErrNoUsableBeads
	}
	return NewSystem(beads), nil, nil
}

// assignResidueSS stamps the predicted labels onto the structure's residues
// in chain-major order. The prediction must come from the user-supplied SS2
// file, never from the native conformation.
func assignResidueSS(s *parser.Structure, ss2 *parser.SecondaryStructure) {
	i := 0
	s.EachResidue(func(r *parser.Residue) {
		if ss2 != nil && i < ss2.Len() {
			r.SS = ss2.SS[i]
		}
		i++
	})
}

// CoarseSS shortens an N-residue annotation to the per-bead windows of the
// coarse model and assigns each window a probabilistic H/E/C mixture. The
// chain length list must match the annotation; each chain loses its last
// three positions, mirroring the bead layout.
func CoarseSS(aa *parser.SecondaryStructure, chainLengths []int) *parser.SecondaryStructure {
	var seq, ss []byte
	var wins [][4]byte
	off := 0
	for _, n := range chainLengths {
		for i := 0; i+surpassWindow <= n; i++ {
			wins = append(wins, [4]byte{aa.SS[off+i], aa.SS[off+i+1], aa.SS[off+i+2], aa.SS[off+i+3]})
			seq = append(seq, 'G')
			ss = append(ss, 'C')
		}
		off += n
	}
	out := parser.NewSecondaryStructure(string(seq), string(ss))
	for i, w := range wins {
		h, e, c := windowFractions(w)
		out.SetFractions(i, h, e, c)
	}
	return out
}

// windowFractions maps a four-label window to its H/E/C probability mixture.
func windowFractions(w [4]byte) (h, e, c float64) {
	pat := string(w[:])
	switch pat {
	case "HHHH":
		return 1, 0, 0
	case "EEEE":
		return 0, 1, 0
	case "CHHH", "HHHC":
		return 0.75, 0, 0.25
	case "EHHH", "HHHE":
		return 0.75, 0.25, 0
	case "CEEE", "EEEC":
		return 0, 0.75, 0.25
	case "HEEE", "EEEH":
		return 0.25, 0.75, 0
	default:
		return 0, 0, 1
	}
}
