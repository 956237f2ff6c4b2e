package energy

import (
	"fmt"

	"github.com/sarat-asymmetrica/surpass/internal/geometry"
	"github.com/sarat-asymmetrica/surpass/internal/model"
	"github.com/sarat-asymmetrica/surpass/internal/parser"
)

// ssCodes orders the secondary structure classes the way windows are keyed
// and weighted: H, E, C.
var ssCodes = [3]byte{'H', 'E', 'C'}

// ShortRangeMF is a secondary-structure dependent mean-field term scoring a
// local property of a short sequence window (CABS-like local energy).
//
// At construction, nine spline profiles (one per ss-pair) are cached for each
// window start, so an evaluation is a 3x3 mixture of spline lookups weighted
// by the window's H/E/C probabilities.
type ShortRangeMF struct {
	name      string
	system    *model.System
	coarse    *parser.SecondaryStructure
	firstPos  int // relative index of the first residue the key depends on
	secondPos int // relative index of the second residue the key depends on
	span      int // number of residues in one property measurement
	property  func(i int) float64
	perWindow [][]*Spline // [windowStart][9]; nil row when the window crosses a chain break
}

func newShortRangeMF(name string, system *model.System, coarse *parser.SecondaryStructure,
	dist *Distributions, firstPos, secondPos, span int, property func(i int) float64) (*ShortRangeMF, error) {

	if coarse.Len() != system.Count() {
		return nil, fmt.Errorf("energy: %s: coarse secondary structure has %d positions for %d beads",
			name, coarse.Len(), system.Count())
	}
	t := &ShortRangeMF{
		name: name, system: system, coarse: coarse,
		firstPos: firstPos, secondPos: secondPos, span: span, property: property,
		perWindow: make([][]*Spline, system.Count()),
	}
	key := []byte("__.__")
	for i := 0; i+span <= system.Count(); i++ {
		if system.ChainForBead(i) != system.ChainForBead(i+span-1) {
			continue
		}
		row := make([]*Spline, 9)
		key[0] = coarse.Sequence[i+firstPos]
		key[1] = coarse.Sequence[i+secondPos]
		for j := 0; j < 3; j++ {
			key[3] = ssCodes[j]
			for k := 0; k < 3; k++ {
				key[4] = ssCodes[k]
				s, err := dist.At(string(key))
				if err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
				row[j*3+k] = s
			}
		}
		t.perWindow[i] = row
	}
	return t, nil
}

// Name implements ByResidueEnergy.
func (t *ShortRangeMF) Name() string { return t.name }

// scoreWindow evaluates the window starting at i: the nine ss-pair splines at
// the property value, mixed by the class probabilities at the two key
// positions.
func (t *ShortRangeMF) scoreWindow(i int) float64 {
	row := t.perWindow[i]
	if row == nil {
		return 0
	}
	val := t.property(i)
	h1, e1, c1 := t.coarse.Fractions(i + t.firstPos)
	h2, e2, c2 := t.coarse.Fractions(i + t.secondPos)
	w1 := [3]float64{h1, e1, c1}
	w2 := [3]float64{h2, e2, c2}

	en := 0.0
	for j := 0; j < 3; j++ {
		if w1[j] == 0 {
			continue
		}
		for k := 0; k < 3; k++ {
			if w2[k] == 0 {
				continue
			}
			en += w1[j] * w2[k] * row[j*3+k].At(val)
		}
	}
	return en
}

// CalculateByResidue accumulates the window starting at r and the window
// ending at r, when they exist.
func (t *ShortRangeMF) CalculateByResidue(r int) float64 {
	en := 0.0
	last := t.system.Count() - t.span
	if r <= last {
		en += t.scoreWindow(r)
	}
	if s := r - t.span + 1; s >= 0 && s <= last {
		en += t.scoreWindow(s)
	}
	return en
}

// CalculateByChunk accumulates every window overlapping [from, to].
func (t *ShortRangeMF) CalculateByChunk(from, to int) float64 {
	en := 0.0
	first := from - t.span + 1
	if first < 0 {
		first = 0
	}
	last := t.system.Count() - t.span
	if to < last {
		last = to
	}
	for i := first; i <= last; i++ {
		en += t.scoreWindow(i)
	}
	return en
}

// Calculate accumulates every window.
func (t *ShortRangeMF) Calculate() float64 {
	en := 0.0
	for i := 0; i+t.span <= t.system.Count(); i++ {
		en += t.scoreWindow(i)
	}
	return en
}

// NewR12 scores the distance between sequence neighbors i, i+1.
func NewR12(system *model.System, coarse *parser.SecondaryStructure, dist *Distributions) (*ShortRangeMF, error) {
	return newShortRangeMF("SurpassR12", system, coarse, dist, 0, 1, 2,
		func(i int) float64 { return system.D(i, i+1) })
}

// NewR13 scores the distance between residues i, i+2.
func NewR13(system *model.System, coarse *parser.SecondaryStructure, dist *Distributions) (*ShortRangeMF, error) {
	return newShortRangeMF("SurpassR13", system, coarse, dist, 0, 2, 3,
		func(i int) float64 { return system.D(i, i+2) })
}

// NewR14 scores the distance between residues i, i+3.
func NewR14(system *model.System, coarse *parser.SecondaryStructure, dist *Distributions) (*ShortRangeMF, error) {
	return newShortRangeMF("SurpassR14", system, coarse, dist, 0, 3, 4,
		func(i int) float64 { return system.D(i, i+3) })
}

// NewR15 scores the distance between residues i, i+4.
func NewR15(system *model.System, coarse *parser.SecondaryStructure, dist *Distributions) (*ShortRangeMF, error) {
	return newShortRangeMF("SurpassR15", system, coarse, dist, 0, 4, 5,
		func(i int) float64 { return system.D(i, i+4) })
}

// NewA13 scores the planar angle at residue i+1 through (i, i+1, i+2),
// in radians.
func NewA13(system *model.System, coarse *parser.SecondaryStructure, dist *Distributions) (*ShortRangeMF, error) {
	return newShortRangeMF("SurpassA13", system, coarse, dist, 0, 2, 3,
		func(i int) float64 {
			return geometry.PlanarAngle(system.Pos(i), system.Pos(i+1), system.Pos(i+2))
		})
}
