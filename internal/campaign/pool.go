package campaign

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zhfmzl/priceUpdate-BTB/internal/exclusion"
	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// WorkItem is one (player, grade) pair to value.
type WorkItem struct {
	EntityID int64       `json:"entity_id"`
	Grade    model.Grade `json:"grade"`
}

// Unit is a run of work items that share one pool slot and execute in order.
type Unit []WorkItem

// TaskFunc values one work item. It must always return a terminal record.
type TaskFunc func(ctx context.Context, item WorkItem) model.ValuationRecord

// Pool runs work items with bounded concurrency. A failing item never
// cancels its siblings.
type Pool struct {
	concurrency int
	exclude     *exclusion.Set
	limiter     *rate.Limiter
}

// NewPool returns a Pool admitting at most concurrency tasks at a time.
// A positive ratePerSec also throttles task starts.
func NewPool(concurrency int, exclude *exclusion.Set, ratePerSec float64) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pool{concurrency: concurrency, exclude: exclude}
	if ratePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return p
}

// Concurrency returns the admission bound.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Dispatchable reports whether any item would be handed to a task, that is
// whether any item's player is outside the exclusion set.
func (p *Pool) Dispatchable(items []WorkItem) bool {
	for _, it := range items {
		if !p.exclude.Contains(it.EntityID) {
			return true
		}
	}
	return false
}

// Run values every item as its own unit.
func (p *Pool) Run(ctx context.Context, items []WorkItem, fn TaskFunc) []model.ValuationRecord {
	units := make([]Unit, len(items))
	for i, it := range items {
		units[i] = Unit{it}
	}
	return p.RunUnits(ctx, units, fn)
}

// RunUnits values every unit and returns once each item has a terminal
// record, in completion order. Excluded players are recorded as skipped
// without taking a slot.
func (p *Pool) RunUnits(ctx context.Context, units []Unit, fn TaskFunc) []model.ValuationRecord {
	total := 0
	for _, u := range units {
		total += len(u)
	}
	agg := NewAggregator(total)

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, unit := range units {
		work := make(Unit, 0, len(unit))
		for _, it := range unit {
			if p.exclude.Contains(it.EntityID) {
				agg.Add(model.ValuationRecord{
					EntityID:   it.EntityID,
					Grade:      it.Grade,
					Kind:       model.OutcomeSkipped,
					FinishedAt: time.Now(),
				})
				continue
			}
			work = append(work, it)
		}
		if len(work) == 0 {
			continue
		}

		g.Go(func() error {
			for _, it := range work {
				agg.Add(p.runOne(ctx, it, fn))
			}
			return nil
		})
	}

	_ = g.Wait()
	return agg.Records()
}

func (p *Pool) runOne(ctx context.Context, it WorkItem, fn TaskFunc) (rec model.ValuationRecord) {
	defer func() {
		if v := recover(); v != nil {
			zap.L().Error("task panicked",
				zap.Int64("entity_id", it.EntityID),
				zap.Int("grade", int(it.Grade)),
				zap.Any("panic", v),
			)
			rec = failedRecord(it, model.OutcomeExtraction, eris.Errorf("campaign: task panicked: %v", v))
		}
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return failedRecord(it, model.OutcomeNavigation, resilience.TransientNetwork("campaign: throttle", err))
		}
	}
	return fn(ctx, it)
}

func failedRecord(it WorkItem, kind model.OutcomeKind, err error) model.ValuationRecord {
	return model.ValuationRecord{
		EntityID:   it.EntityID,
		Grade:      it.Grade,
		Value:      model.ErrorMarker,
		Kind:       kind,
		Err:        err,
		FinishedAt: time.Now(),
	}
}
