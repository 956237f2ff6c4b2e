package model

// assignSSElements scans the bead sequence once and populates the
// secondary-structure element index. Elements are maximal runs of identical
// bead type within a chain; coil runs collapse to the shared loop id 0, all
// other runs are numbered from 1 in order of appearance.
func (s *System) assignSSElements() {
	n := len(s.beads)
	s.SSElementForBead = make([]int, n)
	s.BetaStrandForBead = make([]int, n)

	elementID := 0
	betaOrd, alfaOrd := -1, -1
	helixStart := -1

	closeHelix := func(last int) {
		if helixStart >= 0 {
			s.AlfaRanges = append(s.AlfaRanges, Range{First: helixStart, Last: last})
			helixStart = -1
		}
	}

	for i := 0; i < n; i++ {
		b := &s.beads[i]
		newRun := i == 0 ||
			s.chainForBead[i] != s.chainForBead[i-1] ||
			s.beads[i-1].BeadType != b.BeadType

		if b.BeadType != BeadH && helixStart >= 0 {
			closeHelix(i - 1)
		}
		if b.BeadType == BeadC {
			s.SSElementForBead[i] = 0
			s.BetaStrandForBead[i] = -1
			continue
		}
		if newRun {
			elementID++
		}
		s.SSElementForBead[i] = elementID

		switch b.BeadType {
		case BeadE:
			s.AtomsInBeta = append(s.AtomsInBeta, i)
			if newRun {
				s.ElementsBeta = append(s.ElementsBeta, elementID)
				betaOrd++
			}
			s.BetaStrandForBead[i] = betaOrd
		case BeadH:
			s.AtomsInAlfa = append(s.AtomsInAlfa, i)
			if newRun {
				closeHelix(i - 1)
				s.ElementsAlfa = append(s.ElementsAlfa, elementID)
				alfaOrd++
				helixStart = i
			}
			s.BetaStrandForBead[i] = -1
		}
	}
	closeHelix(n - 1)
}

// CountElements returns the number of non-loop secondary structure elements.
func (s *System) CountElements() int { return len(s.ElementsBeta) + len(s.ElementsAlfa) }
