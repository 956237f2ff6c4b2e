package energy

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sarat-asymmetrica/surpass/internal/model"
)

// ContactTable holds the three distance thresholds of the square-well contact
// potential for every ordered bead-type pair, indexed by (typeI<<2)+typeJ.
//
// Loading quantizes the way the parameter files were produced: the minimum
// distance to 0.05 A steps, the premium and maximum distances to whole
// Angstroms.
type ContactTable struct {
	Min [12]float64
	Ave [12]float64
	Max [12]float64
}

// LoadContactTable reads rows of "i j d_min d_premium d_max".
func LoadContactTable(r io.Reader) (*ContactTable, error) {
	out := &ContactTable{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	rows := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 5 {
			return nil, fmt.Errorf("energy: contact table line %d needs 5 columns", lineNo)
		}
		i, err1 := strconv.Atoi(f[0])
		j, err2 := strconv.Atoi(f[1])
		dmin, err3 := strconv.ParseFloat(f[2], 64)
		dave, err4 := strconv.ParseFloat(f[3], 64)
		dmax, err5 := strconv.ParseFloat(f[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("energy: malformed contact table line %d: %q", lineNo, line)
		}
		if i < 0 || i > 2 || j < 0 || j > 2 {
			return nil, fmt.Errorf("energy: contact table line %d: bead type out of range", lineNo)
		}
		id := (i << 2) + j
		out.Min[id] = math.Trunc(dmin*20) / 20
		out.Ave[id] = math.Trunc(dave)
		out.Max[id] = math.Trunc(dmax)
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("energy: reading contact table: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("energy: contact table is empty")
	}
	return out, nil
}

// ContactEnergy is the square-well contact potential: a penalty below the
// excluded-volume distance, a reward in the premium shell for pairs the
// secondary structure deems productive. Strand-strand rewards additionally
// require the two strands to lie in different sheets, which couples this term
// to the hydrogen-bond analyzer.
type ContactEnergy struct {
	longRange
	hb      *HydrogenBond
	table   *ContactTable
	high    float64 // penalty added below the excluded-volume distance
	low     float64 // reward (usually negative) added in the premium shell
	shift   float64 // additive slack on the excluded-volume distance
}

// NewContactEnergy wires the term. The hydrogen-bond analyzer is shared with
// the rest of the force field so both see one sheet assignment.
func NewContactEnergy(system *model.System, hb *HydrogenBond, table *ContactTable,
	high, low, shift float64) *ContactEnergy {

	c := &ContactEnergy{
		hb: hb, table: table,
		high: high, low: low, shift: shift,
	}
	c.longRange = longRange{system: system, offset: 3, kernel: c.kernel}
	return c
}

// Name implements ByResidueEnergy.
func (c *ContactEnergy) Name() string { return "SurpassContactEnergy" }

func (c *ContactEnergy) kernel(i, j int, acc *float64) bool {
	sys := c.system
	// Beads of one secondary structure element never interact here.
	if sys.SSElementForBead[i] == sys.SSElementForBead[j] {
		return true
	}
	if abs(i-j) <= 4 {
		return true
	}
	bi, bj := sys.Bead(i), sys.Bead(j)
	id := (bi.BeadType << 2) + bj.BeadType

	ok := bi.BeadType != model.BeadC && bj.BeadType != model.BeadC
	if bi.BeadType == bj.BeadType {
		switch bi.BeadType {
		case model.BeadH:
			if abs(i-j) <= 5 {
				return true
			}
		case model.BeadE:
			if c.hb.SameSheet(sys.BetaStrandForBead[i], sys.BetaStrandForBead[j]) {
				ok = false
			}
		}
	}

	shortest := c.shift + c.table.Min[id]
	shortest *= shortest
	premium := c.table.Ave[id] * c.table.Ave[id]
	longest := c.table.Max[id] * c.table.Max[id]

	r2, within := sys.D2Within(i, j, longest)
	if !within {
		return true
	}
	if r2 < shortest {
		*acc += c.high
	}
	if r2 > premium && ok {
		*acc += c.low
	}
	return true
}

// The analyzer is rehashed before any full pass so the sheet assignment the
// kernel reads matches the current coordinates.

func (c *ContactEnergy) Calculate() float64 {
	c.hb.Rehash()
	return c.longRange.Calculate()
}

func (c *ContactEnergy) CalculateByResidue(r int) float64 {
	c.hb.Rehash()
	return c.longRange.CalculateByResidue(r)
}

func (c *ContactEnergy) CalculateByChunk(from, to int) float64 {
	c.hb.Rehash()
	return c.longRange.CalculateByChunk(from, to)
}

func (c *ContactEnergy) CalculateOnMap(m *PairEnergyMap) float64 {
	c.hb.Rehash()
	return c.longRange.CalculateOnMap(m)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
