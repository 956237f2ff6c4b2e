package energy

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// Spline is a 1-D knowledge-based energy profile: a natural cubic spline over
// a uniform grid, clamped to the grid ends outside the tabulated range.
type Spline struct {
	xmin, xmax float64
	cubic      interp.NaturalCubic
}

// NewSpline fits a spline to the given grid. The grid must be strictly
// increasing and hold at least two points.
func NewSpline(xs, ys []float64) (*Spline, error) {
	s := &Spline{xmin: xs[0], xmax: xs[len(xs)-1]}
	if err := s.cubic.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("energy: spline fit: %w", err)
	}
	return s, nil
}

// At evaluates the profile at x, clamping outside the grid.
func (s *Spline) At(x float64) float64 {
	if x < s.xmin {
		x = s.xmin
	} else if x > s.xmax {
		x = s.xmax
	}
	return s.cubic.Predict(x)
}

// Distributions holds the spline profiles of one knowledge-based potential,
// keyed by the tag strings of the parameter file.
type Distributions struct {
	Name string
	ff   map[string]*Spline
}

// Contains reports whether a profile is registered under key.
func (d *Distributions) Contains(key string) bool {
	_, ok := d.ff[key]
	return ok
}

// At returns the profile registered under key. A missing key wraps
// ErrMissingDistribution and lists the known keys.
func (d *Distributions) At(key string) (*Spline, error) {
	s, ok := d.ff[key]
	if !ok {
		known := make([]string, 0, len(d.ff))
		for k := range d.ff {
			known = append(known, k)
		}
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrMissingDistribution, key, strings.Join(known, " "))
	}
	return s, nil
}

// Keys returns all registered keys, unordered.
func (d *Distributions) Keys() []string {
	out := make([]string, 0, len(d.ff))
	for k := range d.ff {
		out = append(out, k)
	}
	return out
}

// LoadDistributions reads a distribution file. The format is line oriented:
//
//	# comment
//	potential R12
//	GG.HH  0.0 0.25  2.31 1.87 1.42 ...
//
// Each record names a key, the grid origin, the grid step, and the tabulated
// values. A non-negative pseudocounts fraction means the values are
// probabilities and are converted to energies on load via
//
//	e = -log((p + a*pm) / ((1+a)*pm))
//
// with pm the mean of the record's values; a negative fraction means the
// values are energies already and are used verbatim.
func LoadDistributions(r io.Reader, pseudocounts float64) (*Distributions, error) {
	out := &Distributions{ff: make(map[string]*Spline)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), "\t", " "))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if strings.EqualFold(fields[0], "potential") {
			if len(fields) > 1 {
				out.Name = fields[1]
			}
			continue
		}
		if len(fields) < 5 {
			return nil, fmt.Errorf("energy: distribution record at line %d needs a key, grid and at least two values", lineNo)
		}
		key := fields[0]
		xmin, err1 := strconv.ParseFloat(fields[1], 64)
		step, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil || step <= 0 {
			return nil, fmt.Errorf("energy: bad grid for key %q at line %d", key, lineNo)
		}
		ys := make([]float64, 0, len(fields)-3)
		for _, f := range fields[3:] {
			y, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("energy: bad value for key %q at line %d: %w", key, lineNo, err)
			}
			ys = append(ys, y)
		}
		if pseudocounts >= 0 {
			convertToEnergy(ys, pseudocounts)
		}
		xs := make([]float64, len(ys))
		for i := range xs {
			xs[i] = xmin + float64(i)*step
		}
		spline, err := NewSpline(xs, ys)
		if err != nil {
			return nil, fmt.Errorf("energy: key %q at line %d: %w", key, lineNo, err)
		}
		out.ff[key] = spline
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("energy: reading distributions: %w", err)
	}
	if len(out.ff) == 0 {
		return nil, fmt.Errorf("energy: no distribution records found")
	}
	return out, nil
}

// convertToEnergy turns a probability profile into a mean-field energy,
// regularized by a pseudocount fraction of the mean probability.
func convertToEnergy(ys []float64, alpha float64) {
	pm := stat.Mean(ys, nil)
	if pm <= 0 {
		pm = math.SmallestNonzeroFloat64
	}
	for i, p := range ys {
		ys[i] = -math.Log((p + alpha*pm) / ((1 + alpha) * pm))
	}
}
