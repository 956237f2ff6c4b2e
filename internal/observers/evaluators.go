// Package observers provides the evaluators (scalar probes) and stream
// observers (tabular and PDB writers) dispatched by the sampling drivers at
// cycle and exchange boundaries.
package observers

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/geometry"
	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// RgSquare evaluates the squared radius of gyration of the bead store.
type RgSquare struct {
	system *model.System
}

// NewRgSquare wires the evaluator.
func NewRgSquare(system *model.System) *RgSquare { return &RgSquare{system: system} }

// Name implements sampling.Evaluator.
func (e *RgSquare) Name() string { return "RgSquare" }

// Evaluate returns sum(|r_i - r_cm|^2) / N.
func (e *RgSquare) Evaluate() float64 {
	cm := e.system.Centroid()
	sum := 0.0
	n := e.system.Count()
	for i := 0; i < n; i++ {
		sum += geometry.Dist2(e.system.Pos(i), cm)
	}
	return sum / float64(n)
}

// Timer evaluates the wall-clock seconds since its construction.
type Timer struct {
	start time.Time
}

// NewTimer starts the clock.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// Name implements sampling.Evaluator.
func (e *Timer) Name() string { return "Timer" }

// Evaluate returns elapsed seconds.
func (e *Timer) Evaluate() float64 { return time.Since(e.start).Seconds() }

// Crmsd evaluates the coordinate RMSD of the bead store against a reference
// conformation after optimal superposition (Kabsch).
type Crmsd struct {
	system    *model.System
	reference []r3.Vec
}

// NewCrmsd snapshots the reference coordinates; the evaluator compares the
// first min(len) beads when the sizes differ.
func NewCrmsd(system *model.System, reference []r3.Vec) *Crmsd {
	ref := make([]r3.Vec, len(reference))
	copy(ref, reference)
	return &Crmsd{system: system, reference: ref}
}

// SnapshotPositions copies the system's current bead positions, e.g. to use
// the starting conformation as the RMSD reference.
func SnapshotPositions(system *model.System) []r3.Vec {
	out := make([]r3.Vec, system.Count())
	for i := range out {
		out[i] = system.Pos(i)
	}
	return out
}

// Name implements sampling.Evaluator.
func (e *Crmsd) Name() string { return "Crmsd" }

// Evaluate returns the superposed RMSD in Angstroms.
func (e *Crmsd) Evaluate() float64 {
	n := e.system.Count()
	if len(e.reference) < n {
		n = len(e.reference)
	}
	if n == 0 {
		return 0
	}
	p := make([]r3.Vec, n)
	for i := 0; i < n; i++ {
		p[i] = e.system.Pos(i)
	}
	return KabschRMSD(p, e.reference[:n])
}

// KabschRMSD superposes p onto q by the optimal rototranslation and returns
// the remaining RMSD. The rotation comes from the SVD of the covariance
// matrix, with the usual determinant correction against improper rotations.
//
// Citation: Kabsch, W. (1976). "A solution for the best rotation to relate
// two sets of vectors." Acta Cryst. A32: 922-923.
func KabschRMSD(p, q []r3.Vec) float64 {
	n := len(p)
	if n == 0 || len(q) != n {
		return 0
	}
	pc := geometry.Centroid(p)
	qc := geometry.Centroid(q)

	// Covariance of the centered point sets.
	c := mat.NewDense(3, 3, nil)
	for i := 0; i < n; i++ {
		a := r3.Sub(p[i], pc)
		b := r3.Sub(q[i], qc)
		av := []float64{a.X, a.Y, a.Z}
		bv := []float64{b.X, b.Y, b.Z}
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				c.Set(row, col, c.At(row, col)+av[row]*bv[col])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(c, mat.SVDFull) {
		return rmsdNoRotation(p, q, pc, qc)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V * diag(1,1,d) * U^T with d correcting a reflection.
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	sign := mat.NewDiagDense(3, []float64{1, 1, d})
	var vs, rot mat.Dense
	vs.Mul(&v, sign)
	rot.Mul(&vs, u.T())

	sum := 0.0
	for i := 0; i < n; i++ {
		a := r3.Sub(p[i], pc)
		b := r3.Sub(q[i], qc)
		// Rotate a by rot; rot maps p-frame onto q-frame.
		ax := rot.At(0, 0)*a.X + rot.At(0, 1)*a.Y + rot.At(0, 2)*a.Z
		ay := rot.At(1, 0)*a.X + rot.At(1, 1)*a.Y + rot.At(1, 2)*a.Z
		az := rot.At(2, 0)*a.X + rot.At(2, 1)*a.Y + rot.At(2, 2)*a.Z
		dx, dy, dz := ax-b.X, ay-b.Y, az-b.Z
		sum += dx*dx + dy*dy + dz*dz
	}
	return math.Sqrt(sum / float64(n))
}

func rmsdNoRotation(p, q []r3.Vec, pc, qc r3.Vec) float64 {
	sum := 0.0
	for i := range p {
		d := r3.Sub(r3.Sub(p[i], pc), r3.Sub(q[i], qc))
		sum += r3.Norm2(d)
	}
	return math.Sqrt(sum / float64(len(p)))
}
