package energy

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sarat-asymmetrica/surpass/internal/algorithms"
	"github.com/sarat-asymmetrica/surpass/internal/geometry"
	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// Geometric cutoffs of the hydrogen-bond detector.
const (
	hbMaxLength  = 6.0  // longest acceptable hydrogen bond, Angstroms
	hbStrandCos  = 0.57 // |cos| between strand direction vectors must exceed this (no braids)
	hbMaxCosDev  = 0.35 // bond must be near-perpendicular to both strands: |cos| <= 0.35, i.e. 70-110 degrees
	hbPairAngle  = 125.0 // two bonds of one donor must spread at least this many degrees
	hbOptLength  = 4.65 // optimal bond length, Angstroms
	hbWellOffset = 0.57 // softening constant of the bond-length well
)

// noPartner marks an empty hydrogen-bond slot.
const noPartner = -1

// HydrogenBond detects, for every beta bead, up to two hydrogen-bond partner
// beads (one per strand), maintains the strand-by-strand bond count matrix,
// gathers strands into sheets with a union-find, derives the beta topology
// matrix, and scores the bond lengths.
//
// The bond list is a per-instance cache rebuilt by Rehash. A rehash is
// idempotent while the system does not move, so the sampler may trigger it
// liberally: by-residue queries rehash when the queried residue is beta,
// by-chunk and total queries rehash unconditionally.
type HydrogenBond struct {
	system *model.System

	partners [][2]int // per beta bead (ordinal into AtomsInBeta): partner bead indices or noPartner
	count    [][]int  // bonds donated from strand a to strand b
	topology [][]int  // 1 direct reciprocal bond, 2 common neighbor strand, 0 otherwise
	sheets   *algorithms.UnionFind

	fresh bool
	gen   uint64
}

// NewHydrogenBond builds the analyzer and runs the first pass.
func NewHydrogenBond(system *model.System) *HydrogenBond {
	k := len(system.ElementsBeta)
	if k == 0 {
		k = 1
	}
	h := &HydrogenBond{
		system:   system,
		partners: make([][2]int, len(system.AtomsInBeta)),
		count:    makeMatrix(k),
		topology: makeMatrix(k),
		sheets:   algorithms.NewUnionFind(k),
	}
	h.Rehash()
	return h
}

func makeMatrix(n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	return m
}

// Name implements ByResidueEnergy.
func (h *HydrogenBond) Name() string { return "SurpassHydrogenBond" }

// Partners returns the bond slots of the beta bead with the given ordinal
// (its index in AtomsInBeta); empty slots hold -1.
func (h *HydrogenBond) Partners(ordinal int) [2]int { return h.partners[ordinal] }

// CountMatrix returns the strand-by-strand donated-bond counts.
func (h *HydrogenBond) CountMatrix() [][]int { return h.count }

// TopologyMatrix returns the strand topology matrix.
func (h *HydrogenBond) TopologyMatrix() [][]int { return h.topology }

// Sheets returns the union-find gathering strands into sheets.
func (h *HydrogenBond) Sheets() *algorithms.UnionFind { return h.sheets }

// SameSheet reports whether two strand ordinals belong to one sheet.
func (h *HydrogenBond) SameSheet(a, b int) bool { return h.sheets.Connected(a, b) }

// Rehash rebuilds the bond list, count matrix, sheet union-find and topology
// matrix. It is a no-op while the system has not moved since the last pass.
func (h *HydrogenBond) Rehash() {
	if h.fresh && h.gen == h.system.Generation() {
		return
	}
	h.findHydrogenBonds()
	h.fresh = true
	h.gen = h.system.Generation()
}

// vecAlong returns the local direction of the strand at bead a: the vector
// from two beads back to one bead ahead, clamped at chain ends. The chain-end
// clamp uses in-chain beads only.
func (h *HydrogenBond) vecAlong(a int) r3.Vec {
	chain := h.system.ChainRange(h.system.ChainForBead(a))
	switch {
	case a+2 <= chain.Last && a-2 < chain.First:
		return r3.Sub(h.system.Pos(a+2), h.system.Pos(a))
	case a+1 > chain.Last && a-2 >= chain.First:
		return r3.Sub(h.system.Pos(a), h.system.Pos(a-2))
	case a-2 >= chain.First:
		return r3.Sub(h.system.Pos(a+1), h.system.Pos(a-2))
	default:
		// Chain shorter than the stencil; best effort.
		return r3.Sub(h.system.Pos(chain.Last), h.system.Pos(chain.First))
	}
}

// findAcceptors selects, for the donor bead y, the best acceptor candidate of
// every other strand: the geometric filter keeps bonds no longer than 6 A,
// between strands that are not mutually warped, and near-perpendicular to
// both strand directions; among survivors the smallest angular deviation
// wins, with the bond length as the running distance bound.
func (h *HydrogenBond) findAcceptors(y int, vy r3.Vec) []int {
	sys := h.system
	elemY := sys.SSElementForBead[y]

	var out []int
	i := 0
	for i < len(sys.AtomsInBeta) {
		elem := sys.SSElementForBead[sys.AtomsInBeta[i]]
		dist, diff := hbMaxLength, hbMaxCosDev
		best := noPartner
		for ; i < len(sys.AtomsInBeta) && sys.SSElementForBead[sys.AtomsInBeta[i]] == elem; i++ {
			j := sys.AtomsInBeta[i]
			if elem == elemY {
				continue
			}
			r := sys.D(y, j)
			if r > dist {
				continue
			}
			h1 := r3.Sub(sys.Pos(j), sys.Pos(y))
			vj := h.vecAlong(j)
			if math.Abs(geometry.CosAngle(vy, vj)) <= hbStrandCos {
				continue
			}
			dev := math.Min(math.Abs(geometry.CosAngle(h1, vy)), math.Abs(geometry.CosAngle(h1, vj)))
			if dev <= diff {
				diff = dev
				dist = r
				best = j
			}
		}
		if best != noPartner {
			out = append(out, best)
		}
	}
	return out
}

// ordinalOf returns the beta ordinal of bead index b, or -1.
func (h *HydrogenBond) ordinalOf(b int) int {
	idx := sort.SearchInts(h.system.AtomsInBeta, b)
	if idx < len(h.system.AtomsInBeta) && h.system.AtomsInBeta[idx] == b {
		return idx
	}
	return -1
}

func (h *HydrogenBond) findHydrogenBonds() {
	sys := h.system
	for i := range h.partners {
		h.partners[i] = [2]int{noPartner, noPartner}
	}
	for i := range h.count {
		for j := range h.count[i] {
			h.count[i][j] = 0
			h.topology[i][j] = 0
		}
	}
	h.sheets.Reset()
	if len(sys.AtomsInBeta) == 0 {
		return
	}

	for yi, y := range sys.AtomsInBeta {
		vy := h.vecAlong(y)
		cands := h.findAcceptors(y, vy)
		sy := sys.BetaStrandForBead[y]

		switch {
		case len(cands) == 0:
			// leave both slots empty
		case len(cands) == 1:
			h.partners[yi][0] = cands[0]
			h.count[sy][sys.BetaStrandForBead[cands[0]]]++
		default:
			h.selectPair(yi, y, sy, cands)
		}
	}

	// Reciprocally bonded strands are sheet mates; a strand pair bonded to a
	// common third strand but not to each other is a second-neighbor contact.
	k := len(sys.ElementsBeta)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			if h.count[a][b] > 0 && h.count[b][a] > 0 {
				h.topology[a][b] = 1
				h.topology[b][a] = 1
				h.sheets.Union(a, b)
			}
		}
	}
	for c := 0; c < k; c++ {
		var direct []int
		for b := 0; b < k; b++ {
			if b != c && h.topology[c][b] == 1 {
				direct = append(direct, b)
			}
		}
		for x := 0; x < len(direct); x++ {
			for y := x + 1; y < len(direct); y++ {
				if h.topology[direct[x]][direct[y]] != 1 {
					h.topology[direct[x]][direct[y]] = 2
					h.topology[direct[y]][direct[x]] = 2
				}
			}
		}
	}
}

// selectPair keeps the two best of several per-strand candidates for donor y.
// The pair spanning the widest angle wins when that angle reaches 125
// degrees; otherwise a single partner survives, chosen by comparing the
// running count-matrix entries of the rival strands against the donor's
// strand (the busier strand pairing wins). A rejected candidate that was
// already processed as a donor loses its reciprocal bond to y.
func (h *HydrogenBond) selectPair(yi, y, sy int, cands []int) {
	sys := h.system

	bestAngle := hbPairAngle
	good := false
	var id2, id3 int
	fallback := noPartner
	var removals []int

	for k := 0; k < len(cands)-1; k++ {
		for l := k + 1; l < len(cands); l++ {
			h1 := r3.Sub(sys.Pos(cands[k]), sys.Pos(y))
			h2 := r3.Sub(sys.Pos(cands[l]), sys.Pos(y))
			cos := geometry.CosAngle(h1, h2)
			if cos > 1 {
				cos = 1
			} else if cos < -1 {
				cos = -1
			}
			angle := math.Acos(cos) * 180.0 / math.Pi
			if angle >= bestAngle {
				good = true
				bestAngle = angle
				id2, id3 = cands[k], cands[l]
				continue
			}
			sk := sys.BetaStrandForBead[cands[k]]
			sl := sys.BetaStrandForBead[cands[l]]
			var loser int
			if h.count[sy][sk] > h.count[sy][sl] {
				fallback, loser = cands[k], cands[l]
			} else {
				fallback, loser = cands[l], cands[k]
			}
			if loser < y {
				removals = append(removals, loser)
			}
		}
	}

	if good {
		h.partners[yi] = [2]int{id2, id3}
		h.count[sy][sys.BetaStrandForBead[id2]]++
		h.count[sy][sys.BetaStrandForBead[id3]]++
		// The chosen partners are immune to removal.
		kept := removals[:0]
		for _, r := range removals {
			if r != id2 && r != id3 {
				kept = append(kept, r)
			}
		}
		removals = kept
	} else if fallback != noPartner {
		h.partners[yi][0] = fallback
		h.count[sy][sys.BetaStrandForBead[fallback]]++
	}

	for _, r := range removals {
		ord := h.ordinalOf(r)
		if ord < 0 {
			continue
		}
		for slot := 0; slot < 2; slot++ {
			if h.partners[ord][slot] == y {
				h.partners[ord][slot] = noPartner
				sr := sys.BetaStrandForBead[r]
				if h.count[sr][sy] > 0 {
					h.count[sr][sy]--
				}
			}
		}
	}
}

// bondEnergy scores one hydrogen bond of length r: a narrow Gaussian well
// around the optimal length, softened and normalized so a bond far from
// optimum contributes zero.
func bondEnergy(r float64) float64 {
	d := r - hbOptLength
	return -math.Log((math.Exp(-d*d) + hbWellOffset) / hbWellOffset)
}

// energyOf returns the bond energy of the beta bead y without rehashing.
func (h *HydrogenBond) energyOf(y int) float64 {
	ord := h.ordinalOf(y)
	if ord < 0 {
		return 0
	}
	en := 0.0
	for slot := 0; slot < 2; slot++ {
		if p := h.partners[ord][slot]; p != noPartner {
			en += bondEnergy(h.system.D(y, p))
		}
	}
	return en
}

// CalculateByResidue rehashes when the residue is beta, then scores its bonds.
func (h *HydrogenBond) CalculateByResidue(r int) float64 {
	if h.system.Bead(r).BeadType == model.BeadE {
		h.Rehash()
	}
	return h.energyOf(r)
}

// CalculateByChunk rehashes, then scores every beta bead in [from, to].
func (h *HydrogenBond) CalculateByChunk(from, to int) float64 {
	h.Rehash()
	en := 0.0
	for r := from; r <= to; r++ {
		en += h.energyOf(r)
	}
	return en
}

// Calculate rehashes, then scores every beta bead.
func (h *HydrogenBond) Calculate() float64 {
	h.Rehash()
	en := 0.0
	for _, y := range h.system.AtomsInBeta {
		en += h.energyOf(y)
	}
	return en
}
