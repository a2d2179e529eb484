// Package campaign runs valuation campaigns: it resolves the candidate
// players, values every (player, grade) pair through a bounded task pool, and
// persists the outcomes as price upserts.
package campaign

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/pricing"
	"github.com/zhfmzl/priceUpdate-BTB/internal/query"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// Extractor values one (player, grade) pair.
type Extractor interface {
	Extract(ctx context.Context, entityID int64, grade model.Grade) model.ValuationRecord
}

// Browser hands out an Extractor bound to a fresh browsing context for the
// length of one batch.
type Browser interface {
	Start(ctx context.Context) (Extractor, error)
	Stop() error
}

// Writer persists a batch of outcomes.
type Writer interface {
	Write(ctx context.Context, records []model.ValuationRecord) (pricing.WriteResult, error)
}

// Searcher resolves candidate players.
type Searcher interface {
	Search(ctx context.Context, opts query.Options) ([]model.PlayerReport, error)
}

// Ledger records runs and parks failed pairs for a later retry campaign.
type Ledger interface {
	CreateRun(ctx context.Context, spec model.CampaignSpec) (*model.CampaignRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, tally model.Tally, errMsg string) error
	EnqueueDLQ(ctx context.Context, entries []resilience.DLQEntry) error
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// Options configures a Runner.
type Options struct {
	Grouping      Grouping
	DLQMaxRetries int
	// RetryBackoff delays the next replay of a pair that failed again.
	RetryBackoff time.Duration
}

// Result is the outcome of one campaign.
type Result struct {
	Run     *model.CampaignRun      `json:"run"`
	Records []model.ValuationRecord `json:"records"`
	Writes  []pricing.WriteResult   `json:"writes"`
}

// Runner executes campaigns.
type Runner struct {
	pool     *Pool
	browser  Browser
	writer   Writer
	searcher Searcher
	ledger   Ledger
	opts     Options
}

// NewRunner wires a Runner.
func NewRunner(pool *Pool, browser Browser, writer Writer, searcher Searcher, ledger Ledger, opts Options) *Runner {
	if opts.Grouping == "" {
		opts.Grouping = GroupByGrade
	}
	if opts.DLQMaxRetries <= 0 {
		opts.DLQMaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 15 * time.Minute
	}
	return &Runner{
		pool:     pool,
		browser:  browser,
		writer:   writer,
		searcher: searcher,
		ledger:   ledger,
		opts:     opts,
	}
}

// Run executes a campaign end to end. Explicit entity ids bypass the search.
// Extraction failures never fail the run; a write failure does.
func (r *Runner) Run(ctx context.Context, spec model.CampaignSpec) (*Result, error) {
	if len(spec.Grades) == 0 {
		spec.Grades = model.AllGrades()
	}

	run, err := r.ledger.CreateRun(ctx, spec)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("campaign started",
		zap.Strings("seasons", spec.Seasons),
		zap.Int("min_ovr", spec.MinOvr),
		zap.Int("grades", len(spec.Grades)),
		zap.String("grouping", string(r.opts.Grouping)),
	)

	ids := spec.EntityIDs
	if len(ids) == 0 {
		r.setStatus(ctx, run, model.RunStatusSearching)
		reports, err := r.searcher.Search(ctx, query.Options{Seasons: spec.Seasons, MinOvr: spec.MinOvr})
		if err != nil {
			return r.fail(ctx, run, &Result{Run: run}, eris.Wrap(err, "campaign: search"))
		}
		ids = query.IDs(reports)
	}
	log.Info("candidates resolved", zap.Int("players", len(ids)))

	res, err := r.execute(ctx, run, Items(ids, spec.Grades))
	if err != nil {
		return r.fail(ctx, run, res, err)
	}
	return r.complete(ctx, run, res)
}

// Retry replays parked pairs as a new campaign. Pairs that succeed, or are
// now excluded, leave the queue; pairs that fail again are rescheduled.
func (r *Runner) Retry(ctx context.Context, entries []resilience.DLQEntry) (*Result, error) {
	byKey := make(map[WorkItem]resilience.DLQEntry, len(entries))
	spec := model.CampaignSpec{}
	seenGrade := make(map[model.Grade]bool)
	var items []WorkItem
	for _, e := range entries {
		it := WorkItem{EntityID: e.EntityID, Grade: e.Grade}
		if _, dup := byKey[it]; dup {
			continue
		}
		byKey[it] = e
		items = append(items, it)
		spec.EntityIDs = append(spec.EntityIDs, e.EntityID)
		if !seenGrade[e.Grade] {
			seenGrade[e.Grade] = true
			spec.Grades = append(spec.Grades, e.Grade)
		}
	}

	run, err := r.ledger.CreateRun(ctx, spec)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: create retry run")
	}
	zap.L().Info("retry campaign started", zap.String("run_id", run.ID), zap.Int("pairs", len(items)))

	res, err := r.execute(ctx, run, items)
	if err != nil {
		return r.fail(ctx, run, res, err)
	}

	now := time.Now()
	for _, rec := range res.Records {
		e, ok := byKey[WorkItem{EntityID: rec.EntityID, Grade: rec.Grade}]
		if !ok {
			continue
		}
		if rec.Failed() {
			msg := string(rec.Kind)
			if rec.Err != nil {
				msg = rec.Err.Error()
			}
			if err := r.ledger.IncrementDLQRetry(ctx, e.ID, now.Add(r.opts.RetryBackoff), msg); err != nil {
				zap.L().Warn("campaign: reschedule dlq entry", zap.String("dlq_id", e.ID), zap.Error(err))
			}
			continue
		}
		if err := r.ledger.RemoveDLQ(ctx, e.ID); err != nil {
			zap.L().Warn("campaign: remove dlq entry", zap.String("dlq_id", e.ID), zap.Error(err))
		}
	}
	return r.complete(ctx, run, res)
}

// execute values items batch by batch. Each batch gets its own browsing
// context and its own write.
func (r *Runner) execute(ctx context.Context, run *model.CampaignRun, items []WorkItem) (*Result, error) {
	res := &Result{Run: run}

	for _, batch := range Batches(items, r.opts.Grouping) {
		log := zap.L().With(zap.String("run_id", run.ID), zap.Int64("season", batch.Season))

		r.setStatus(ctx, run, model.RunStatusExtracting)
		records, err := r.extract(ctx, batch.Items)
		if err != nil {
			return res, err
		}
		res.Records = append(res.Records, records...)
		r.park(ctx, run.ID, records)

		r.setStatus(ctx, run, model.RunStatusWriting)
		wr, err := r.writer.Write(ctx, records)
		if err != nil {
			return res, eris.Wrap(err, "campaign: write")
		}
		res.Writes = append(res.Writes, wr)
		run.Tally.Written += wr.Records

		t := Summarize(records)
		log.Info("batch complete",
			zap.Int("dispatched", t.Dispatched),
			zap.Int("succeeded", t.Succeeded),
			zap.Int("failed", t.Failed),
			zap.Int("skipped", t.Skipped),
			zap.Int("written", wr.Records),
		)
	}
	return res, nil
}

func (r *Runner) extract(ctx context.Context, items []WorkItem) ([]model.ValuationRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}
	units := Units(items, r.opts.Grouping)
	if !r.pool.Dispatchable(items) {
		// Every pair is skipped; no task runs, so the browser stays down.
		return r.pool.RunUnits(ctx, units, nil), nil
	}
	ext, err := r.browser.Start(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "campaign: start browser")
	}
	defer func() {
		if err := r.browser.Stop(); err != nil {
			zap.L().Warn("campaign: stop browser", zap.Error(err))
		}
	}()

	return r.pool.RunUnits(ctx, units, func(ctx context.Context, it WorkItem) model.ValuationRecord {
		return ext.Extract(ctx, it.EntityID, it.Grade)
	}), nil
}

// park enqueues the failed pairs of a batch. Ledger trouble is logged only.
func (r *Runner) park(ctx context.Context, runID string, records []model.ValuationRecord) {
	now := time.Now()
	var entries []resilience.DLQEntry
	for _, rec := range records {
		if rec.Failed() {
			entries = append(entries, resilience.NewDLQEntry(runID, rec, r.opts.DLQMaxRetries, now))
		}
	}
	if len(entries) == 0 {
		return
	}
	if err := r.ledger.EnqueueDLQ(ctx, entries); err != nil {
		zap.L().Warn("campaign: enqueue dlq", zap.String("run_id", runID), zap.Int("entries", len(entries)), zap.Error(err))
	}
}

func (r *Runner) setStatus(ctx context.Context, run *model.CampaignRun, status model.RunStatus) {
	if run.Status == status {
		return
	}
	run.Status = status
	if err := r.ledger.UpdateRunStatus(ctx, run.ID, status); err != nil {
		zap.L().Warn("campaign: update run status", zap.String("run_id", run.ID), zap.String("status", string(status)), zap.Error(err))
	}
}

func (r *Runner) complete(ctx context.Context, run *model.CampaignRun, res *Result) (*Result, error) {
	written := run.Tally.Written
	run.Tally = Summarize(res.Records)
	run.Tally.Written = written
	run.Status = model.RunStatusComplete
	run.UpdatedAt = time.Now()

	if err := r.ledger.FinishRun(ctx, run.ID, run.Status, run.Tally, ""); err != nil {
		zap.L().Warn("campaign: finish run", zap.String("run_id", run.ID), zap.Error(err))
	}
	zap.L().Info("campaign complete",
		zap.String("run_id", run.ID),
		zap.Int("dispatched", run.Tally.Dispatched),
		zap.Int("succeeded", run.Tally.Succeeded),
		zap.Int("failed", run.Tally.Failed),
		zap.Int("skipped", run.Tally.Skipped),
		zap.Int("written", run.Tally.Written),
	)
	return res, nil
}

func (r *Runner) fail(ctx context.Context, run *model.CampaignRun, res *Result, cause error) (*Result, error) {
	written := run.Tally.Written
	run.Tally = Summarize(res.Records)
	run.Tally.Written = written
	run.Status = model.RunStatusFailed
	run.Error = cause.Error()
	run.UpdatedAt = time.Now()

	// The run may fail because ctx ended; the ledger still gets the outcome.
	if err := r.ledger.FinishRun(context.WithoutCancel(ctx), run.ID, run.Status, run.Tally, run.Error); err != nil {
		zap.L().Warn("campaign: finish run", zap.String("run_id", run.ID), zap.Error(err))
	}
	zap.L().Error("campaign failed", zap.String("run_id", run.ID), zap.Error(cause))
	return res, cause
}
