package report

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/stock-data/internal/model"
)

// Sink receives the terminal outcome of each work unit. Implementations must
// be safe for concurrent use.
type Sink interface {
	Record(outcome model.RunOutcome)
}

// Failure summarizes one failed unit.
type Failure struct {
	Symbol   string
	Endpoint model.EndpointKind
	Stage    model.Stage
	Reason   string
}

// Report collects the outcomes of one run.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	mu       sync.Mutex
	outcomes []model.RunOutcome
}

// New starts a report for a run beginning now.
func New() *Report {
	return &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}
}

// Record appends an outcome.
func (r *Report) Record(outcome model.RunOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

// Finish stamps FinishedAt.
func (r *Report) Finish() {
	r.mu.Lock()
	r.FinishedAt = time.Now().UTC()
	r.mu.Unlock()
}

// Duration is the wall time between start and finish.
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcomes returns the outcomes sorted by symbol, then endpoint.
func (r *Report) Outcomes() []model.RunOutcome {
	r.mu.Lock()
	out := make([]model.RunOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Unit, out[j].Unit
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Endpoint < b.Endpoint
	})
	return out
}

// Len returns the number of recorded outcomes.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Succeeded returns the number of successful units.
func (r *Report) Succeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeededLocked()
}

// Failed returns the number of failed units.
func (r *Report) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes) - r.succeededLocked()
}

func (r *Report) succeededLocked() int {
	var n int
	for _, o := range r.outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// RowsWritten sums rows written across all units.
func (r *Report) RowsWritten() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, o := range r.outcomes {
		n += o.RowsWritten
	}
	return n
}

// Failures lists failed units in symbol, endpoint order.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, o := range r.Outcomes() {
		if o.Succeeded() {
			continue
		}
		out = append(out, Failure{
			Symbol:   o.Unit.Symbol,
			Endpoint: o.Unit.Endpoint,
			Stage:    o.Stage,
			Reason:   o.Reason,
		})
	}
	return out
}
