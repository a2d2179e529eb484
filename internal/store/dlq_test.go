package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

func dlqEntry(id string, entityID int64, errType string, nextRetry time.Time) resilience.DLQEntry {
	now := time.Now()
	return resilience.DLQEntry{
		ID:           id,
		RunID:        "run-1",
		EntityID:     entityID,
		Grade:        3,
		Error:        "extract: wait for .txt strong[title]: context deadline exceeded",
		ErrorType:    errType,
		MaxRetries:   3,
		NextRetryAt:  nextRetry,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

func TestSQLite_DLQ_EnqueueAndDequeue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{
		dlqEntry("dlq-1", 101000001, "transient", time.Now().Add(-time.Minute)),
	}))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-1", entries[0].ID)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, int64(101000001), entries[0].EntityID)
	assert.Equal(t, 3, int(entries[0].Grade))
	assert.Equal(t, "transient", entries[0].ErrorType)
	assert.Equal(t, 0, entries[0].RetryCount)
}

func TestSQLite_DLQ_EnqueueEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.EnqueueDLQ(context.Background(), nil))
}

func TestSQLite_DLQ_DequeueFiltersErrorType(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{
		dlqEntry("dlq-t", 1, "transient", past),
		dlqEntry("dlq-p", 2, "permanent", past),
	}))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-t", entries[0].ID)
}

func TestSQLite_DLQ_DequeueRespectsNextRetryAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{
		dlqEntry("dlq-future", 1, "transient", time.Now().Add(time.Hour)),
	}))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_DequeueRespectsMaxRetries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	e := dlqEntry("dlq-exhausted", 1, "transient", time.Now().Add(-time.Minute))
	e.RetryCount = 3
	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{e}))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_EnqueueSamePairRefreshes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	first := dlqEntry("dlq-a", 7, "transient", past)
	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{first}))
	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-a", past, "still failing"))

	second := dlqEntry("dlq-b", 7, "permanent", past)
	second.RunID = "run-2"
	second.Error = "extract: read .txt strong: not found"
	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{second}))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-a", entries[0].ID, "the original row is kept")
	assert.Equal(t, "run-2", entries[0].RunID)
	assert.Equal(t, "permanent", entries[0].ErrorType)
	assert.Equal(t, 1, entries[0].RetryCount, "retry bookkeeping survives a refresh")
}

func TestSQLite_DLQ_IncrementRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{
		dlqEntry("dlq-inc", 1, "transient", time.Now().Add(-time.Minute)),
	}))

	next := time.Now().Add(-time.Second)
	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-inc", next, "navigation failed"))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "navigation failed", entries[0].Error)
}

func TestSQLite_DLQ_IncrementRetry_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.IncrementDLQRetry(context.Background(), "missing", time.Now(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq_entry not found")
}

func TestSQLite_DLQ_RemoveAndCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{
		dlqEntry("dlq-1", 1, "transient", past),
		dlqEntry("dlq-2", 2, "transient", past),
	}))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, st.RemoveDLQ(ctx, "dlq-1"))

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_DLQ_DequeueOrdersByNextRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, []resilience.DLQEntry{
		dlqEntry("dlq-late", 1, "transient", time.Now().Add(-time.Minute)),
		dlqEntry("dlq-early", 2, "transient", time.Now().Add(-time.Hour)),
	}))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dlq-early", entries[0].ID)
	assert.Equal(t, "dlq-late", entries[1].ID)
}
