// Package pricing turns campaign outcomes into price upserts and persists
// them in a single ordered bulk write.
package pricing

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/docstore"
	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// FailurePolicy decides what happens to failed outcomes at write time.
type FailurePolicy string

const (
	// PolicyDrop leaves failed grades untouched in the store.
	PolicyDrop FailurePolicy = "drop"
	// PolicyRecord writes model.ErrorMarker as the price of a failed grade.
	PolicyRecord FailurePolicy = "record"
)

// ParsePolicy validates a configured policy name. Empty means PolicyDrop.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyRecord:
		return PolicyRecord, nil
	}
	return "", eris.Errorf("pricing: unknown failure policy %q", s)
}

// Store persists price upserts.
type Store interface {
	UpsertPrices(ctx context.Context, ups []model.PriceUpsert) (docstore.BulkResult, error)
}

// WriteResult reports what one Write call did.
type WriteResult struct {
	Records  int                 `json:"records"`
	Dropped  int                 `json:"dropped"`
	Bulk     docstore.BulkResult `json:"bulk"`
	Duration time.Duration       `json:"duration"`
}

// Writer persists valuation records under a failure policy.
type Writer struct {
	store  Store
	policy FailurePolicy
}

// NewWriter returns a Writer. An empty policy means PolicyDrop.
func NewWriter(store Store, policy FailurePolicy) *Writer {
	if policy == "" {
		policy = PolicyDrop
	}
	return &Writer{store: store, policy: policy}
}

// Policy returns the active failure policy.
func (w *Writer) Policy() FailurePolicy {
	return w.policy
}

// Write persists records in one ordered bulk write. Nothing is sent when the
// policy leaves no records. On store failure the result is zero and the error
// is a data store error.
func (w *Writer) Write(ctx context.Context, records []model.ValuationRecord) (WriteResult, error) {
	ups, dropped := w.Upserts(records)
	if len(ups) == 0 {
		return WriteResult{Dropped: dropped}, nil
	}

	start := time.Now()
	bulk, err := w.store.UpsertPrices(ctx, ups)
	if err != nil {
		return WriteResult{}, resilience.DataStore("pricing: write", err)
	}

	res := WriteResult{
		Records:  len(ups),
		Dropped:  dropped,
		Bulk:     bulk,
		Duration: time.Since(start),
	}
	zap.L().Info("prices written",
		zap.Int("records", res.Records),
		zap.Int("dropped", res.Dropped),
		zap.Int64("modified", bulk.Modified),
		zap.Int64("upserted", bulk.Upserted),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Upserts applies the failure policy and converts the surviving records.
// Skipped records are never written.
func (w *Writer) Upserts(records []model.ValuationRecord) (ups []model.PriceUpsert, dropped int) {
	ups = make([]model.PriceUpsert, 0, len(records))
	for _, r := range records {
		price := r.Value
		switch {
		case r.Kind == model.OutcomeSkipped:
			dropped++
			continue
		case r.Failed() && w.policy == PolicyDrop:
			dropped++
			continue
		case r.Failed():
			price = model.ErrorMarker
		}
		ups = append(ups, model.PriceUpsert{
			ID:    model.PriceID(r.EntityID),
			Grade: r.Grade,
			Price: price,
		})
	}
	return ups, dropped
}
