package energy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/geometry"
	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// CentrosymmetricEnergy is a weak radial bias pulling beads toward the system
// centroid: a 1-D profile of the distance to the center of geometry, keyed
// only by bead type. The centroid is recomputed once per evaluation pass.
type CentrosymmetricEnergy struct {
	system  *model.System
	splines [3]*Spline // indexed by bead type
}

// NewCentrosymmetricEnergy loads the three per-type profiles from a
// distribution set keyed "H", "E", "C".
func NewCentrosymmetricEnergy(system *model.System, dist *Distributions) (*CentrosymmetricEnergy, error) {
	t := &CentrosymmetricEnergy{system: system}
	for i, key := range []string{"H", "E", "C"} {
		s, err := dist.At(key)
		if err != nil {
			return nil, fmt.Errorf("SurpassCentrosymmetricEnergy: %w", err)
		}
		t.splines[i] = s
	}
	return t, nil
}

// Name implements ByResidueEnergy.
func (t *CentrosymmetricEnergy) Name() string { return "SurpassCentrosymmetricEnergy" }

func (t *CentrosymmetricEnergy) beadEnergy(i int, cm r3.Vec) float64 {
	b := t.system.Bead(i)
	return t.splines[b.BeadType].At(geometry.Dist(b.Pos, cm))
}

func (t *CentrosymmetricEnergy) CalculateByResidue(r int) float64 {
	return t.beadEnergy(r, t.system.Centroid())
}

func (t *CentrosymmetricEnergy) CalculateByChunk(from, to int) float64 {
	cm := t.system.Centroid()
	en := 0.0
	for i := from; i <= to; i++ {
		en += t.beadEnergy(i, cm)
	}
	return en
}

func (t *CentrosymmetricEnergy) Calculate() float64 {
	cm := t.system.Centroid()
	en := 0.0
	for i := 0; i < t.system.Count(); i++ {
		en += t.beadEnergy(i, cm)
	}
	return en
}

// localRepulsionSpan is the sequence window the local repulsion guards: the
// |i-j| range the contact potential leaves unchecked.
const localRepulsionSpan = 4

// LocalRepulsionEnergy applies a hard-core penalty between beads close in
// sequence, preventing collapse where the short-range mean-field terms are
// insufficient. It reuses the contact table's excluded-volume column.
type LocalRepulsionEnergy struct {
	system  *model.System
	table   *ContactTable
	penalty float64
	shift   float64
}

// NewLocalRepulsionEnergy wires the term with the shared contact table.
func NewLocalRepulsionEnergy(system *model.System, table *ContactTable, penalty, shift float64) *LocalRepulsionEnergy {
	return &LocalRepulsionEnergy{system: system, table: table, penalty: penalty, shift: shift}
}

// Name implements ByResidueEnergy.
func (t *LocalRepulsionEnergy) Name() string { return "SurpassLocalRepulsionEnergy" }

// pairEnergy scores one (i, j) pair; both must be in the same chain. The
// excluded-volume floor shrinks with sequence separation: beads one window
// apart overlap by construction and sit far closer than the long-range
// contact distance, so the table minimum is scaled by sep/5, reaching the
// full contact floor just past the window the contact term skips.
func (t *LocalRepulsionEnergy) pairEnergy(i, j int) float64 {
	if t.system.ChainForBead(i) != t.system.ChainForBead(j) {
		return 0
	}
	sep := i - j
	if sep < 0 {
		sep = -sep
	}
	bi, bj := t.system.Bead(i), t.system.Bead(j)
	min := t.shift + t.table.Min[(bi.BeadType<<2)+bj.BeadType]*float64(sep)/5.0
	if r2, _ := t.system.D2Within(i, j, min*min); r2 < min*min {
		return t.penalty
	}
	return 0
}

func (t *LocalRepulsionEnergy) CalculateByResidue(r int) float64 {
	en := 0.0
	n := t.system.Count()
	for j := r - localRepulsionSpan; j <= r+localRepulsionSpan; j++ {
		if j < 0 || j >= n || j == r {
			continue
		}
		en += t.pairEnergy(r, j)
	}
	return en
}

func (t *LocalRepulsionEnergy) CalculateByChunk(from, to int) float64 {
	en := 0.0
	n := t.system.Count()
	for cr := from; cr <= to; cr++ {
		// Upstream and downstream partners outside the chunk.
		for j := cr - localRepulsionSpan; j < from; j++ {
			if j >= 0 {
				en += t.pairEnergy(cr, j)
			}
		}
		for j := to + 1; j <= cr+localRepulsionSpan; j++ {
			if j < n {
				en += t.pairEnergy(cr, j)
			}
		}
	}
	// Pairs internal to the chunk, each counted once.
	for i := from + 1; i <= to; i++ {
		lo := i - localRepulsionSpan
		if lo < from {
			lo = from
		}
		for j := lo; j < i; j++ {
			en += t.pairEnergy(i, j)
		}
	}
	return en
}

func (t *LocalRepulsionEnergy) Calculate() float64 {
	en := 0.0
	n := t.system.Count()
	for i := 1; i < n; i++ {
		lo := i - localRepulsionSpan
		if lo < 0 {
			lo = 0
		}
		for j := lo; j < i; j++ {
			en += t.pairEnergy(i, j)
		}
	}
	return en
}

// HelixStiffnessEnergy penalizes bending of helical elements: a harmonic
// restraint on the planar angle of three consecutive beads for every interior
// bead of every helix. Helical SURPASS beads are nearly collinear, so the
// rest angle sits close to a straight line.
type HelixStiffnessEnergy struct {
	system *model.System
	k      float64 // force constant per angle
	theta0 float64 // rest angle, radians
}

// NewHelixStiffnessEnergy wires the term; theta0 is given in degrees.
func NewHelixStiffnessEnergy(system *model.System, k, theta0Deg float64) *HelixStiffnessEnergy {
	return &HelixStiffnessEnergy{system: system, k: k, theta0: theta0Deg * math.Pi / 180}
}

// Name implements ByResidueEnergy.
func (t *HelixStiffnessEnergy) Name() string { return "SurpassHelixStiffnessEnergy" }

// angleEnergy scores the angle with vertex v, which must be an interior bead
// of a helix range.
func (t *HelixStiffnessEnergy) angleEnergy(v int) float64 {
	theta := geometry.PlanarAngle(t.system.Pos(v-1), t.system.Pos(v), t.system.Pos(v+1))
	d := theta - t.theta0
	return t.k * d * d
}

// interior returns the helix range holding v as an interior bead, if any.
func (t *HelixStiffnessEnergy) interior(v int) (model.Range, bool) {
	for _, rg := range t.system.AlfaRanges {
		if v > rg.First && v < rg.Last {
			return rg, true
		}
	}
	return model.Range{}, false
}

// CalculateByResidue accumulates every helix angle whose triple involves r.
func (t *HelixStiffnessEnergy) CalculateByResidue(r int) float64 {
	en := 0.0
	for v := r - 1; v <= r+1; v++ {
		if v < 1 || v >= t.system.Count()-1 {
			continue
		}
		if _, ok := t.interior(v); ok {
			en += t.angleEnergy(v)
		}
	}
	return en
}

// CalculateByChunk accumulates each helix angle touching [from, to] once.
func (t *HelixStiffnessEnergy) CalculateByChunk(from, to int) float64 {
	en := 0.0
	for _, rg := range t.system.AlfaRanges {
		for v := rg.First + 1; v < rg.Last; v++ {
			if v+1 >= from && v-1 <= to {
				en += t.angleEnergy(v)
			}
		}
	}
	return en
}

func (t *HelixStiffnessEnergy) Calculate() float64 {
	en := 0.0
	for _, rg := range t.system.AlfaRanges {
		for v := rg.First + 1; v < rg.Last; v++ {
			en += t.angleEnergy(v)
		}
	}
	return en
}
