package resilience

import (
	"time"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// DLQEntry is a failed (player, grade) extraction parked for a later retry
// campaign.
type DLQEntry struct {
	ID           string      `json:"id"`
	RunID        string      `json:"run_id"`
	EntityID     int64       `json:"entity_id"`
	Grade        model.Grade `json:"grade"`
	Error        string      `json:"error"`
	ErrorType    string      `json:"error_type"` // "transient" or "permanent"
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	NextRetryAt  time.Time   `json:"next_retry_at"`
	CreatedAt    time.Time   `json:"created_at"`
	LastFailedAt time.Time   `json:"last_failed_at"`
}

// DLQFilter specifies criteria for reading the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// NewDLQEntry builds an entry for a failed record.
func NewDLQEntry(runID string, rec model.ValuationRecord, maxRetries int, now time.Time) DLQEntry {
	msg := string(rec.Kind)
	if rec.Err != nil {
		msg = rec.Err.Error()
	}
	return DLQEntry{
		RunID:        runID,
		EntityID:     rec.EntityID,
		Grade:        rec.Grade,
		Error:        msg,
		ErrorType:    ClassifyError(rec.Err),
		MaxRetries:   maxRetries,
		NextRetryAt:  now,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}
