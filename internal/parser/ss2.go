package parser

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SecondaryStructure holds a per-residue secondary structure annotation with
// H/E/C probabilities, as produced by PsiPred.
type SecondaryStructure struct {
	Sequence []byte // one-letter amino acid codes
	SS       []byte // 'H', 'E' or 'C' per position
	// Fractions of each class per position, in H, E, C order. Each row sums
	// to 1 up to rounding in the input file.
	FracH []float64
	FracE []float64
	FracC []float64
}

// Len returns the number of annotated positions.
func (s *SecondaryStructure) Len() int { return len(s.SS) }

// Fractions returns the (H, E, C) probabilities at position i.
func (s *SecondaryStructure) Fractions(i int) (h, e, c float64) {
	return s.FracH[i], s.FracE[i], s.FracC[i]
}

// SetFractions assigns the class probabilities at position i and updates the
// hard label to the most probable class.
func (s *SecondaryStructure) SetFractions(i int, h, e, c float64) {
	s.FracH[i], s.FracE[i], s.FracC[i] = h, e, c
	switch {
	case h >= e && h >= c:
		s.SS[i] = 'H'
	case e >= c:
		s.SS[i] = 'E'
	default:
		s.SS[i] = 'C'
	}
}

// NewSecondaryStructure builds an annotation from hard labels: each position
// gets probability 1 for its label.
func NewSecondaryStructure(sequence, ss string) *SecondaryStructure {
	n := len(ss)
	out := &SecondaryStructure{
		Sequence: []byte(sequence),
		SS:       make([]byte, n),
		FracH:    make([]float64, n),
		FracE:    make([]float64, n),
		FracC:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		switch ss[i] {
		case 'H':
			out.SetFractions(i, 1, 0, 0)
		case 'E':
			out.SetFractions(i, 0, 1, 0)
		default:
			out.SetFractions(i, 0, 0, 1)
		}
	}
	return out
}

// ParseSS2 reads a PsiPred VFORMAT .ss2 file. Each data row is
//
//	<index> <aa> <ss> <coil> <helix> <strand>
//
// Comment lines (leading '#') and blank lines are skipped.
func ParseSS2(filename string) (*SecondaryStructure, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open SS2 file: %w", err)
	}
	defer file.Close()

	out := &SecondaryStructure{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, fmt.Errorf("%s: malformed SS2 row: %q", filename, line)
		}
		pC, err1 := strconv.ParseFloat(fields[3], 64)
		pH, err2 := strconv.ParseFloat(fields[4], 64)
		pE, err3 := strconv.ParseFloat(fields[5], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("%s: malformed SS2 probabilities: %q", filename, line)
		}
		out.Sequence = append(out.Sequence, fields[1][0])
		ss := fields[2][0]
		if ss != 'H' && ss != 'E' {
			ss = 'C'
		}
		out.SS = append(out.SS, ss)
		out.FracH = append(out.FracH, pH)
		out.FracE = append(out.FracE, pE)
		out.FracC = append(out.FracC, pC)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read SS2 file: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%s: no SS2 rows found", filename)
	}
	return out, nil
}
