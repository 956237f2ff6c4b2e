// Package model implements the SURPASS coarse-grained representation: the
// bead store, the builder that derives it from an atomistic structure, and
// the secondary-structure element index consumed by the energy terms.
//
// Each bead represents four consecutive alpha carbons; a chain of N amino
// acids yields N-3 beads.
//
// Citation: Dawid, A. E., Gront, D., Kolinski, A. (2017). "SURPASS low-resolution
// coarse-grained protein modeling." J. Chem. Theory Comput. 13(11): 5766-5779.
package model

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/geometry"
)

// Bead types; the numeric values index the contact parameter table.
const (
	BeadH = 0 // helix
	BeadE = 1 // strand
	BeadC = 2 // coil
)

// ErrOutOfRange reports an index outside the bead store.
var ErrOutOfRange = errors.New("model: bead index out of range")

// Bead is one SURPASS particle.
type Bead struct {
	Pos          r3.Vec
	ChainID      byte
	ResidueIndex int     // zero-based index within the whole system
	BeadType     int     // BeadH, BeadE or BeadC
	ResidueType  byte    // one-letter residue code, opaque to the core
	BFactor      float64 // carried through for output only
}

// SS returns the secondary structure letter of the bead type.
func (b *Bead) SS() byte {
	switch b.BeadType {
	case BeadH:
		return 'H'
	case BeadE:
		return 'E'
	default:
		return 'C'
	}
}

// atomName returns the PDB atom name SURPASS uses for this bead type.
func (b *Bead) atomName() string {
	switch b.BeadType {
	case BeadH:
		return " H  "
	case BeadE:
		return " S  "
	default:
		return " C  "
	}
}

// Range is an inclusive [First, Last] index interval.
type Range struct {
	First, Last int
}

// Size returns the number of indices in the range.
func (r Range) Size() int { return r.Last - r.First + 1 }

// System is the bead store: a fixed-size, chain-major sequence of beads with
// the derived secondary-structure element index. In this representation each
// residue is exactly one bead, so residue and bead indices coincide; the
// residue-level accessors are kept so that energy code reads naturally.
type System struct {
	beads        []Bead
	chainRanges  []Range
	chainForBead []int

	// Secondary-structure element index, filled by assignSSElements.
	SSElementForBead  []int   // element id per bead; 0 means loop
	BetaStrandForBead []int   // ordinal of the bead's strand among all beta elements; -1 for non-beta
	AtomsInBeta       []int   // bead indices of all E beads, ascending
	AtomsInAlfa       []int   // bead indices of all H beads, ascending
	ElementsBeta      []int   // element ids that are strands
	ElementsAlfa      []int   // element ids that are helices
	AlfaRanges        []Range // (first, last) bead index per helix

	pdbFormats []string // per-bead ATOM line with only x/y/z left to substitute

	generation uint64 // bumped on every coordinate write; lets caches detect staleness
}

// NewSystem wires a System from a ready bead slice laid out chain-major.
func NewSystem(beads []Bead) *System {
	s := &System{beads: beads, chainForBead: make([]int, len(beads))}
	for i := range beads {
		if i == 0 || beads[i].ChainID != beads[i-1].ChainID {
			s.chainRanges = append(s.chainRanges, Range{First: i, Last: i})
		} else {
			s.chainRanges[len(s.chainRanges)-1].Last = i
		}
		s.chainForBead[i] = len(s.chainRanges) - 1
	}
	s.assignSSElements()
	s.bakePDBFormats()
	return s
}

// Count returns the number of beads (== residues) in the system.
func (s *System) Count() int { return len(s.beads) }

// CountChains returns the number of chains.
func (s *System) CountChains() int { return len(s.chainRanges) }

// Bead gives mutable access to bead i.
func (s *System) Bead(i int) *Bead {
	if i < 0 || i >= len(s.beads) {
		panic(fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(s.beads)))
	}
	return &s.beads[i]
}

// Pos returns the position of bead i.
func (s *System) Pos(i int) r3.Vec { return s.Bead(i).Pos }

// SetPos moves bead i. Coordinate writes go through here so that caches keyed
// on Generation notice the change.
func (s *System) SetPos(i int, p r3.Vec) {
	s.Bead(i).Pos = p
	s.generation++
}

// Generation returns a counter that changes whenever any bead moves.
func (s *System) Generation() uint64 { return s.generation }

// ChainRange returns the bead range of chain c.
func (s *System) ChainRange(c int) Range { return s.chainRanges[c] }

// ChainForBead returns the chain index owning bead i.
func (s *System) ChainForBead(i int) int {
	if i < 0 || i >= len(s.chainForBead) {
		panic(fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(s.beads)))
	}
	return s.chainForBead[i]
}

// D returns the distance between beads i and j. Open boundary conditions.
func (s *System) D(i, j int) float64 { return geometry.Dist(s.beads[i].Pos, s.beads[j].Pos) }

// D2 returns the squared distance between beads i and j.
func (s *System) D2(i, j int) float64 { return geometry.Dist2(s.beads[i].Pos, s.beads[j].Pos) }

// D2Within accumulates the squared distance one coordinate at a time,
// bailing out as soon as the running sum exceeds cutoff2. The boolean is true
// when the full squared distance is within the cutoff.
func (s *System) D2Within(i, j int, cutoff2 float64) (float64, bool) {
	a, b := &s.beads[i].Pos, &s.beads[j].Pos
	d := a.X - b.X
	r2 := d * d
	if r2 > cutoff2 {
		return r2, false
	}
	d = a.Y - b.Y
	r2 += d * d
	if r2 > cutoff2 {
		return r2, false
	}
	d = a.Z - b.Z
	r2 += d * d
	return r2, r2 <= cutoff2
}

// Centroid returns the center of geometry of all beads.
func (s *System) Centroid() r3.Vec {
	var c r3.Vec
	for i := range s.beads {
		c = r3.Add(c, s.beads[i].Pos)
	}
	return r3.Scale(1/float64(len(s.beads)), c)
}

// bakePDBFormats precomputes one ATOM line per bead with everything but the
// coordinates substituted, so trajectory frames only format three floats.
func (s *System) bakePDBFormats() {
	s.pdbFormats = make([]string, len(s.beads))
	for i := range s.beads {
		b := &s.beads[i]
		s.pdbFormats[i] = fmt.Sprintf("ATOM  %5d %4s GLY %c%4d    ", i+1, b.atomName(), b.ChainID, i+1) +
			"%8.3f%8.3f%8.3f" +
			fmt.Sprintf("  1.00%6.2f\n", b.BFactor)
	}
}

// WritePDB writes the current conformation as one PDB model. When modelID is
// greater than zero the frame is wrapped in MODEL/ENDMDL records.
func (s *System) WritePDB(w io.Writer, modelID int) error {
	if modelID > 0 {
		if _, err := fmt.Fprintf(w, "MODEL    %7d\n", modelID); err != nil {
			return err
		}
	}
	for i := range s.beads {
		p := s.beads[i].Pos
		if _, err := fmt.Fprintf(w, s.pdbFormats[i], p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	if modelID > 0 {
		if _, err := io.WriteString(w, "ENDMDL\n"); err != nil {
			return err
		}
	}
	return nil
}
