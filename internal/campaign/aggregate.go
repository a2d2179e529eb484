package campaign

import (
	"sync"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// Aggregator collects task outcomes in completion order. Duplicate
// (entity, grade) records are kept; the price upsert resolves them.
type Aggregator struct {
	mu      sync.Mutex
	records []model.ValuationRecord
}

// NewAggregator returns an Aggregator sized for n records.
func NewAggregator(n int) *Aggregator {
	return &Aggregator{records: make([]model.ValuationRecord, 0, n)}
}

// Add appends one outcome.
func (a *Aggregator) Add(rec model.ValuationRecord) {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
}

// Records returns a snapshot of the collected outcomes.
func (a *Aggregator) Records() []model.ValuationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ValuationRecord(nil), a.records...)
}

// Len returns the number of collected outcomes.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Summary counts the collected outcomes by kind.
func (a *Aggregator) Summary() model.Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Summarize(a.records)
}

// Summarize counts records by kind. Written is left to the caller.
func Summarize(records []model.ValuationRecord) model.Tally {
	var t model.Tally
	for _, r := range records {
		switch {
		case r.Kind == model.OutcomeSkipped:
			t.Skipped++
			continue
		case r.Failed():
			t.Failed++
		default:
			t.Succeeded++
		}
		t.Dispatched++
	}
	return t
}
