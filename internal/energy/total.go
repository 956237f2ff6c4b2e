package energy

import (
	"fmt"
	"strings"
)

// Display layout of the energy components table.
const (
	totalMinWidth  = 7
	totalPrecision = 2
)

// TotalEnergyByResidue combines energy terms into a weighted sum. It
// implements ByResidueEnergy itself, forwarding each query to every component
// and scaling by the component's weight, and doubles as an evaluator for the
// observer tables.
type TotalEnergyByResidue struct {
	components []ByResidueEnergy
	weights    []float64
	widths     []int
}

// NewTotalEnergy returns an empty weighted sum.
func NewTotalEnergy() *TotalEnergyByResidue { return &TotalEnergyByResidue{} }

// AddComponent registers a term with its weight.
func (t *TotalEnergyByResidue) AddComponent(term ByResidueEnergy, weight float64) {
	t.components = append(t.components, term)
	t.weights = append(t.weights, weight)
	w := totalMinWidth
	if len(term.Name()) > w {
		w = len(term.Name())
	}
	t.widths = append(t.widths, w)
}

// Name implements ByResidueEnergy.
func (t *TotalEnergyByResidue) Name() string { return "TotalEnergy" }

// CountComponents returns the number of registered terms.
func (t *TotalEnergyByResidue) CountComponents() int { return len(t.components) }

// Component returns the i-th registered term.
func (t *TotalEnergyByResidue) Component(i int) ByResidueEnergy { return t.components[i] }

// Weight returns the i-th term's weight.
func (t *TotalEnergyByResidue) Weight(i int) float64 { return t.weights[i] }

// Widths returns the column width for each component in tabular output.
func (t *TotalEnergyByResidue) Widths() []int { return t.widths }

// Precision returns the number of decimals used in tabular output.
func (t *TotalEnergyByResidue) Precision() int { return totalPrecision }

// Calculate returns the weighted total energy.
func (t *TotalEnergyByResidue) Calculate() float64 {
	en := 0.0
	for i, c := range t.components {
		en += t.weights[i] * c.Calculate()
	}
	return en
}

// CalculateComponent returns the unweighted value of one component.
func (t *TotalEnergyByResidue) CalculateComponent(i int) float64 {
	return t.components[i].Calculate()
}

// CalculateByResidue forwards the by-residue query to every component.
func (t *TotalEnergyByResidue) CalculateByResidue(r int) float64 {
	en := 0.0
	for i, c := range t.components {
		en += t.weights[i] * c.CalculateByResidue(r)
	}
	return en
}

// CalculateByChunk forwards the by-chunk query to every component.
func (t *TotalEnergyByResidue) CalculateByChunk(from, to int) float64 {
	en := 0.0
	for i, c := range t.components {
		en += t.weights[i] * c.CalculateByChunk(from, to)
	}
	return en
}

// Evaluate lets the total energy act as an evaluator; it is a synonym for
// Calculate.
func (t *TotalEnergyByResidue) Evaluate() float64 { return t.Calculate() }

// HeaderString returns the header line for the energy components table.
func (t *TotalEnergyByResidue) HeaderString() string {
	var b strings.Builder
	for i, c := range t.components {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%*s", t.widths[i], c.Name())
	}
	fmt.Fprintf(&b, " %*s", len(t.Name()), t.Name())
	return b.String()
}
