package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.CampaignRun{
		{Status: model.RunStatusComplete, Tally: model.Tally{Written: 16, Failed: 2}, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour + 40*time.Second)},
		{Status: model.RunStatusComplete, Tally: model.Tally{Written: 8}, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2*time.Hour + 20*time.Second)},
		{Status: model.RunStatusFailed, Tally: model.Tally{Failed: 3}, CreatedAt: now.Add(-3 * time.Hour), UpdatedAt: now.Add(-3 * time.Hour)},
		{Status: model.RunStatusExtracting, CreatedAt: now.Add(-10 * time.Minute), UpdatedAt: now},
		{Status: model.RunStatusComplete, Tally: model.Tally{Written: 100}, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now.Add(-47 * time.Hour)},
	}

	s := computeRunStats(runs, 24*time.Hour, now)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, 24, s.Written)
	assert.Equal(t, 5, s.Failures)
	assert.InDelta(t, 30.0, s.AvgDurSecs, 0.001)

	all := computeRunStats(runs, 0, now)
	assert.Equal(t, 5, all.Total)
	assert.Equal(t, 124, all.Written)
}

func TestComputeRunStats_Empty(t *testing.T) {
	s := computeRunStats(nil, time.Hour, time.Now())
	assert.Equal(t, runStats{}, s)
}

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	runs := []model.CampaignRun{
		{
			ID:        "4f1c2a9e-0000-4000-8000-000000000001",
			Spec:      model.CampaignSpec{Seasons: []string{"256", "257"}},
			Status:    model.RunStatusComplete,
			Tally:     model.Tally{Dispatched: 16, Failed: 1, Written: 15},
			CreatedAt: created,
			UpdatedAt: created.Add(90 * time.Second),
		},
		{
			ID:        "short",
			Spec:      model.CampaignSpec{EntityIDs: []int64{1, 2, 3}},
			Status:    model.RunStatusFailed,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "SEASONS")
	assert.Contains(t, out, "4f1c2a9e ")
	assert.NotContains(t, out, "4f1c2a9e-0000")
	assert.Contains(t, out, "[256 257]")
	assert.Contains(t, out, "3 ids")
	assert.Contains(t, out, "2026-03-01 09:30")
	assert.Contains(t, out, "1m30s")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 3, Complete: 2, Failed: 1, Written: 40, Parked: 7, AvgDurSecs: 12.5})
	out := buf.String()

	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "Parked pairs:")
	assert.Contains(t, out, "12.5s")
}

func TestFormatDLQ(t *testing.T) {
	entries := []resilience.DLQEntry{{
		ID:           "abcdef0123456789",
		EntityID:     256000123,
		Grade:        5,
		ErrorType:    "transient",
		Error:        "extract: wait for .txt strong[title]: context deadline exceeded after a very long time",
		RetryCount:   1,
		MaxRetries:   3,
		LastFailedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	formatDLQ(&buf, entries)
	out := buf.String()

	assert.Contains(t, out, "abcdef01")
	assert.Contains(t, out, "256000123")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdef01", truncateID("abcdef0123456789"))
	assert.Equal(t, "abc", truncateID("abc"))
	assert.Equal(t, "", truncateID(""))
}
