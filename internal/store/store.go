// Package store is the run ledger: one row per campaign plus a dead letter
// queue of (player, grade) extractions that failed and may be replayed by a
// later retry campaign.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for campaign runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, spec model.CampaignSpec) (*model.CampaignRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, tally model.Tally, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.CampaignRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.CampaignRun, error)

	// Dead letter queue. Entries are unique per (entity, grade); enqueueing
	// a pair again refreshes its error and run.
	EnqueueDLQ(ctx context.Context, entries []resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = "priceupdate.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, resilience.Configuration("store", eris.Errorf("unsupported store driver: %s", driver))
	}
}
