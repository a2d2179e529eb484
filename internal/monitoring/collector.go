// Package monitoring watches campaign health in the run ledger and posts
// alerts to a webhook when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/store"
)

// MetricsSnapshot holds a point-in-time view of campaign health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Pair metrics (within lookback window).
	PairsDispatched int     `json:"pairs_dispatched"`
	PairsFailed     int     `json:"pairs_failed"`
	PairsWritten    int     `json:"pairs_written"`
	PairFailRate    float64 `json:"pair_fail_rate"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the part of the run ledger the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.CampaignRun, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	runs RunSource
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunSource) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of campaign metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Runs come back newest first.
	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsActive++
		}
		snap.PairsDispatched += r.Tally.Dispatched
		snap.PairsFailed += r.Tally.Failed
		snap.PairsWritten += r.Tally.Written
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.PairsDispatched > 0 {
		snap.PairFailRate = float64(snap.PairsFailed) / float64(snap.PairsDispatched)
	}

	dlqCount, err := c.runs.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
