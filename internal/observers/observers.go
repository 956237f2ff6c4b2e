package observers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sarat-asymmetrica/surpass/internal/energy"
	"github.com/sarat-asymmetrica/surpass/internal/model"
	"github.com/sarat-asymmetrica/surpass/internal/sampling"
)

// streamObserver is the shared backbone of all file-writing observers: it
// owns an output stream that the replica exchange driver may swap, guarded
// because swaps happen on the driver goroutine.
type streamObserver struct {
	mu   sync.Mutex
	out  io.Writer
	file *os.File // non-nil when this observer opened the file itself
}

func newStreamObserver(path string) (*streamObserver, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("observers: %w", err)
	}
	return &streamObserver{out: f, file: f}, nil
}

// Stream returns the current output stream.
func (o *streamObserver) Stream() io.Writer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.out
}

// SetStream swaps the output stream; used by the replica exchange driver in
// isothermal observation mode.
func (o *streamObserver) SetStream(w io.Writer) {
	o.mu.Lock()
	o.out = w
	o.mu.Unlock()
}

// Close releases the file handle if this observer owns one.
func (o *streamObserver) Close() error {
	if o.file != nil {
		return o.file.Close()
	}
	return nil
}

func (o *streamObserver) printf(format string, args ...any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := fmt.Fprintf(o.out, format, args...)
	return err
}

// Trigger gates an observer: when set, frames are only written while the
// trigger reports true.
type Trigger interface {
	ShouldObserve() bool
}

// TriggerLowEnergy fires when the total energy drops to the current limit;
// each firing resets the limit to the observed energy plus a slack fraction
// of its magnitude, so a later conformation is kept only while it lies within
// that slack of the last kept one (the limit can rise by the slack).
type TriggerLowEnergy struct {
	energy   *energy.TotalEnergyByResidue
	limit    float64
	fraction float64
}

// NewTriggerLowEnergy gates at maxEnergy with the given slack fraction.
func NewTriggerLowEnergy(total *energy.TotalEnergyByResidue, maxEnergy, fraction float64) *TriggerLowEnergy {
	return &TriggerLowEnergy{energy: total, limit: maxEnergy, fraction: fraction}
}

// ShouldObserve implements Trigger.
func (t *TriggerLowEnergy) ShouldObserve() bool {
	e := t.energy.Calculate()
	if e > t.limit {
		return false
	}
	slack := t.fraction * e
	if slack < 0 {
		slack = -slack
	}
	t.limit = e + slack
	return true
}

// PdbObserver writes one MODEL record per observation using the system's
// pre-baked line templates.
type PdbObserver struct {
	*streamObserver
	system  *model.System
	trigger Trigger
	model   int
}

// NewPdbObserver opens the trajectory file.
func NewPdbObserver(system *model.System, path string) (*PdbObserver, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &PdbObserver{streamObserver: s, system: system}, nil
}

// SetTrigger gates frame writing.
func (o *PdbObserver) SetTrigger(t Trigger) { o.trigger = t }

// Observe writes the next frame.
func (o *PdbObserver) Observe() error {
	if o.trigger != nil && !o.trigger.ShouldObserve() {
		return nil
	}
	o.model++
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.system.WritePDB(o.out, o.model)
}

// WriteFinalPDB dumps the current conformation of one or more systems to a
// standalone file, one MODEL each.
func WriteFinalPDB(path string, systems ...*model.System) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("observers: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for i, s := range systems {
		id := 0
		if len(systems) > 1 {
			id = i + 1
		}
		if err := s.WritePDB(w, id); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ObserveEnergyComponents writes one row per observation with every
// component's unweighted value and the weighted total, column widths matching
// the header.
type ObserveEnergyComponents struct {
	*streamObserver
	total *energy.TotalEnergyByResidue
}

// NewObserveEnergyComponents opens the energy table file.
func NewObserveEnergyComponents(total *energy.TotalEnergyByResidue, path string) (*ObserveEnergyComponents, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &ObserveEnergyComponents{streamObserver: s, total: total}, nil
}

// ObserveHeader writes the column header derived from the component names.
func (o *ObserveEnergyComponents) ObserveHeader() error {
	return o.printf("#%s\n", o.total.HeaderString())
}

// Observe writes one table row.
func (o *ObserveEnergyComponents) Observe() error {
	var b strings.Builder
	widths := o.total.Widths()
	for i := 0; i < o.total.CountComponents(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%*.*f", widths[i], o.total.Precision(), o.total.CalculateComponent(i))
	}
	fmt.Fprintf(&b, " %*.*f", len(o.total.Name()), o.total.Precision(), o.total.Calculate())
	return o.printf(" %s\n", b.String())
}

// ObserveEvaluators writes one row per observation with each registered
// evaluator's scalar.
type ObserveEvaluators struct {
	*streamObserver
	evaluators []sampling.Evaluator
}

// NewObserveEvaluators opens the evaluator table file.
func NewObserveEvaluators(path string) (*ObserveEvaluators, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &ObserveEvaluators{streamObserver: s}, nil
}

// AddEvaluator appends an evaluator; dispatch follows registration order.
func (o *ObserveEvaluators) AddEvaluator(e sampling.Evaluator) {
	o.evaluators = append(o.evaluators, e)
}

// ObserveHeader writes the evaluator names.
func (o *ObserveEvaluators) ObserveHeader() error {
	names := make([]string, len(o.evaluators))
	for i, e := range o.evaluators {
		names[i] = fmt.Sprintf("%12s", e.Name())
	}
	return o.printf("#%s\n", strings.Join(names, " "))
}

// Observe writes one row of scalars.
func (o *ObserveEvaluators) Observe() error {
	vals := make([]string, len(o.evaluators))
	for i, e := range o.evaluators {
		vals[i] = fmt.Sprintf("%12.4f", e.Evaluate())
	}
	return o.printf(" %s\n", strings.Join(vals, " "))
}

// ObserveMoversAcceptance writes each mover's acceptance ratio per
// observation.
type ObserveMoversAcceptance struct {
	*streamObserver
	movers *sampling.MoversSet
}

// NewObserveMoversAcceptance opens the movers table file.
func NewObserveMoversAcceptance(movers *sampling.MoversSet, path string) (*ObserveMoversAcceptance, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &ObserveMoversAcceptance{streamObserver: s, movers: movers}, nil
}

// ObserveHeader writes the mover names with their move ranges.
func (o *ObserveMoversAcceptance) ObserveHeader() error {
	parts := make([]string, 0, len(o.movers.Movers()))
	for _, m := range o.movers.Movers() {
		parts = append(parts, fmt.Sprintf("%20s[%.2f]", m.Name(), m.MoveRange()))
	}
	return o.printf("#%s\n", strings.Join(parts, " "))
}

// Observe writes one row of acceptance ratios.
func (o *ObserveMoversAcceptance) Observe() error {
	parts := make([]string, 0, len(o.movers.Movers()))
	for _, m := range o.movers.Movers() {
		parts = append(parts, fmt.Sprintf("%26.4f", m.SuccessRate()))
	}
	return o.printf(" %s\n", strings.Join(parts, " "))
}

// TopologyMatrixObserver serializes the beta topology matrix, one flattened
// row-major line per observation.
type TopologyMatrixObserver struct {
	*streamObserver
	hb *energy.HydrogenBond
}

// NewTopologyMatrixObserver opens the topology file.
func NewTopologyMatrixObserver(hb *energy.HydrogenBond, path string) (*TopologyMatrixObserver, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &TopologyMatrixObserver{streamObserver: s, hb: hb}, nil
}

// Observe writes the current matrix.
func (o *TopologyMatrixObserver) Observe() error {
	o.hb.Rehash()
	var b strings.Builder
	for _, row := range o.hb.TopologyMatrix() {
		for _, v := range row {
			fmt.Fprintf(&b, " %d", v)
		}
	}
	return o.printf("%s\n", b.String())
}

// EndVectorObserver writes the end-to-end vector of every chain per
// observation: chain id, the three components and the norm.
type EndVectorObserver struct {
	*streamObserver
	system *model.System
}

// NewEndVectorObserver opens the end-vector file.
func NewEndVectorObserver(system *model.System, path string) (*EndVectorObserver, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &EndVectorObserver{streamObserver: s, system: system}, nil
}

// Observe writes one line per chain.
func (o *EndVectorObserver) Observe() error {
	for c := 0; c < o.system.CountChains(); c++ {
		rg := o.system.ChainRange(c)
		first, last := o.system.Pos(rg.First), o.system.Pos(rg.Last)
		dx, dy, dz := last.X-first.X, last.Y-first.Y, last.Z-first.Z
		norm := o.system.D(rg.First, rg.Last)
		if err := o.printf("%c %10.3f %10.3f %10.3f %10.3f\n",
			o.system.Bead(rg.First).ChainID, dx, dy, dz, norm); err != nil {
			return err
		}
	}
	return nil
}

// ReplicaFlowObserver records, per exchange attempt, every replica's current
// temperature index and boundary-hit flag.
type ReplicaFlowObserver struct {
	*streamObserver
	remc     *sampling.ReplicaExchangeMC
	exchange int
}

// NewReplicaFlowObserver opens the replica flow file.
func NewReplicaFlowObserver(remc *sampling.ReplicaExchangeMC, path string) (*ReplicaFlowObserver, error) {
	s, err := newStreamObserver(path)
	if err != nil {
		return nil, err
	}
	return &ReplicaFlowObserver{streamObserver: s, remc: remc}, nil
}

// Observe writes one row per replica, ordered by physical replica id.
func (o *ReplicaFlowObserver) Observe() error {
	o.exchange++
	tasks := make([]*sampling.ReplicaTask, len(o.remc.Replicas()))
	for _, t := range o.remc.Replicas() {
		tasks[t.ReplicaIndex] = t
	}
	for _, t := range tasks {
		if err := o.printf("%6d %4d %4d %2d\n",
			o.exchange, t.ReplicaIndex, t.TemperatureIndex, t.BoundaryFlag); err != nil {
			return err
		}
	}
	return nil
}
