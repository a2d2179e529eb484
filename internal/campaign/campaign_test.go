package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhfmzl/priceUpdate-BTB/internal/docstore"
	"github.com/zhfmzl/priceUpdate-BTB/internal/exclusion"
	"github.com/zhfmzl/priceUpdate-BTB/internal/extract"
	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/pricing"
	"github.com/zhfmzl/priceUpdate-BTB/internal/query"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// stubSite serves fake datacenter pages and records every navigation.
type stubSite struct {
	mu        sync.Mutex
	navigated []string
	hang      map[int64]bool
}

func (s *stubSite) Open(context.Context) (extract.Page, error) {
	return &stubPage{site: s}, nil
}

func (s *stubSite) navigationsFor(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.navigated {
		if strings.Contains(u, fmt.Sprintf("spid=%d&", id)) {
			n++
		}
	}
	return n
}

type stubPage struct {
	site *stubSite
	url  string
}

func (p *stubPage) Intercept(extract.RequestFilter) error { return nil }

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.site.mu.Lock()
	p.site.navigated = append(p.site.navigated, url)
	p.site.mu.Unlock()
	p.url = url
	return nil
}

func (p *stubPage) WaitReady(ctx context.Context, _, _ string, timeout time.Duration) error {
	for id := range p.site.hang {
		if strings.Contains(p.url, fmt.Sprintf("spid=%d&", id)) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			<-ctx.Done()
			return ctx.Err()
		}
	}
	return nil
}

func (p *stubPage) Value(context.Context, string, string) (string, error) {
	return "1,000", nil
}

func (p *stubPage) Close() error { return nil }

type stubBrowser struct {
	site   *stubSite
	starts int
	stops  int
	err    error
}

func (b *stubBrowser) Start(context.Context) (Extractor, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.starts++
	return extract.New(b.site, nil, extract.Config{ReadyTimeout: 20 * time.Millisecond}), nil
}

func (b *stubBrowser) Stop() error {
	b.stops++
	return nil
}

type stubSearcher struct {
	reports []model.PlayerReport
	err     error
	got     query.Options
}

func (s *stubSearcher) Search(_ context.Context, opts query.Options) ([]model.PlayerReport, error) {
	s.got = opts
	return s.reports, s.err
}

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu       sync.Mutex
	runs     map[string]*model.CampaignRun
	statuses []model.RunStatus
	dlq      map[string]resilience.DLQEntry
	removed  []string
	bumped   []string
	nextID   int
}

func newMemLedger() *memLedger {
	return &memLedger{runs: map[string]*model.CampaignRun{}, dlq: map[string]resilience.DLQEntry{}}
}

func (l *memLedger) CreateRun(_ context.Context, spec model.CampaignSpec) (*model.CampaignRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	run := &model.CampaignRun{ID: fmt.Sprintf("run-%d", l.nextID), Spec: spec, Status: model.RunStatusQueued}
	cp := *run
	l.runs[run.ID] = &cp
	return run, nil
}

func (l *memLedger) UpdateRunStatus(_ context.Context, id string, status model.RunStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[id].Status = status
	l.statuses = append(l.statuses, status)
	return nil
}

func (l *memLedger) FinishRun(_ context.Context, id string, status model.RunStatus, tally model.Tally, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.runs[id]
	r.Status, r.Tally, r.Error = status, tally, errMsg
	return nil
}

func (l *memLedger) EnqueueDLQ(_ context.Context, entries []resilience.DLQEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		key := fmt.Sprintf("%d/%d", e.EntityID, e.Grade)
		e.ID = key
		l.dlq[key] = e
	}
	return nil
}

func (l *memLedger) IncrementDLQRetry(_ context.Context, id string, _ time.Time, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bumped = append(l.bumped, id)
	return nil
}

func (l *memLedger) RemoveDLQ(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.dlq, id)
	l.removed = append(l.removed, id)
	return nil
}

type fixture struct {
	site     *stubSite
	browser  *stubBrowser
	prices   *docstore.MemoryPrices
	searcher *stubSearcher
	ledger   *memLedger
}

func newFixture(reports ...model.PlayerReport) *fixture {
	site := &stubSite{hang: map[int64]bool{}}
	return &fixture{
		site:     site,
		browser:  &stubBrowser{site: site},
		prices:   docstore.NewMemoryPrices(),
		searcher: &stubSearcher{reports: reports},
		ledger:   newMemLedger(),
	}
}

func (f *fixture) runner(excluded *exclusion.Set, policy pricing.FailurePolicy, g Grouping) *Runner {
	return NewRunner(
		NewPool(3, excluded, 0),
		f.browser,
		pricing.NewWriter(f.prices, policy),
		f.searcher,
		f.ledger,
		Options{Grouping: g},
	)
}

func reports(ids ...int64) []model.PlayerReport {
	out := make([]model.PlayerReport, len(ids))
	for i, id := range ids {
		out[i] = model.PlayerReport{ID: id}
	}
	return out
}

func TestRun_ExcludedPlayersNeverNavigated(t *testing.T) {
	f := newFixture(reports(256000001, 256000002, 256000003)...)
	r := f.runner(exclusion.New(256000002), pricing.PolicyDrop, GroupByGrade)

	res, err := r.Run(context.Background(), model.CampaignSpec{Seasons: []string{"256"}, Grades: []model.Grade{1, 2}})
	require.NoError(t, err)

	assert.Zero(t, f.site.navigationsFor(256000002))
	assert.Equal(t, 2, f.site.navigationsFor(256000001))
	assert.Equal(t, []string{"256"}, f.searcher.got.Seasons)

	tally := res.Run.Tally
	assert.Equal(t, 4, tally.Dispatched)
	assert.Equal(t, 2, tally.Skipped)
	assert.Equal(t, 4, tally.Written)
	assert.Equal(t, model.RunStatusComplete, f.ledger.runs[res.Run.ID].Status)

	doc, err := f.prices.Get(context.Background(), "256000002")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRun_OutcomeCountMatchesDispatched(t *testing.T) {
	f := newFixture()
	f.site.hang[3] = true
	r := f.runner(nil, pricing.PolicyRecord, GroupByGrade)

	spec := model.CampaignSpec{EntityIDs: []int64{1, 2, 3, 4}, Grades: []model.Grade{1, 2, 3}}
	res, err := r.Run(context.Background(), spec)
	require.NoError(t, err)

	assert.Len(t, res.Records, 12)
	assert.Equal(t, 12, res.Run.Tally.Dispatched)
	assert.Equal(t, 3, res.Run.Tally.Failed)
	assert.Equal(t, 9, res.Run.Tally.Succeeded)

	// record policy persists the marker for the timed-out player
	doc, err := f.prices.Get(context.Background(), "3")
	require.NoError(t, err)
	require.NotNil(t, doc)
	price, _ := doc.PriceAt(2)
	assert.Equal(t, model.ErrorMarker, price)

	// failures are parked once each
	assert.Len(t, f.ledger.dlq, 3)
	for _, e := range f.ledger.dlq {
		assert.Equal(t, int64(3), e.EntityID)
		assert.Equal(t, "transient", e.ErrorType)
	}
}

func TestRun_DropPolicyLeavesFailedGradesAlone(t *testing.T) {
	f := newFixture()
	f.site.hang[5] = true
	r := f.runner(nil, pricing.PolicyDrop, GroupByEntity)

	res, err := r.Run(context.Background(), model.CampaignSpec{EntityIDs: []int64{5, 6}, Grades: []model.Grade{1}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Run.Tally.Written)

	doc, err := f.prices.Get(context.Background(), "5")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRun_SeasonGroupingWritesPerSeason(t *testing.T) {
	f := newFixture(reports(256000001, 257000001, 257000002)...)
	r := f.runner(nil, pricing.PolicyDrop, GroupBySeason)

	res, err := r.Run(context.Background(), model.CampaignSpec{Seasons: []string{"256", "257"}, Grades: []model.Grade{1}})
	require.NoError(t, err)

	require.Len(t, res.Writes, 2)
	assert.Equal(t, 1, res.Writes[0].Records)
	assert.Equal(t, 2, res.Writes[1].Records)
	assert.Equal(t, 2, f.browser.starts)
	assert.Equal(t, 2, f.browser.stops)
}

func TestRun_FullyExcludedBatchSkipsBrowser(t *testing.T) {
	f := newFixture(reports(256000001, 257000001, 257000002)...)
	r := f.runner(exclusion.New(256000001), pricing.PolicyDrop, GroupBySeason)

	res, err := r.Run(context.Background(), model.CampaignSpec{Seasons: []string{"256", "257"}, Grades: []model.Grade{1}})
	require.NoError(t, err)

	assert.Equal(t, 1, f.browser.starts)
	assert.Equal(t, 1, f.browser.stops)
	assert.Equal(t, 1, res.Run.Tally.Skipped)
	assert.Equal(t, 2, res.Run.Tally.Written)
	assert.Zero(t, f.site.navigationsFor(256000001))
}

func TestRun_AllExcludedNeverStartsBrowser(t *testing.T) {
	f := newFixture()
	f.browser.err = errors.New("chrome not found")
	r := f.runner(exclusion.New(1, 2), pricing.PolicyDrop, GroupByGrade)

	res, err := r.Run(context.Background(), model.CampaignSpec{EntityIDs: []int64{1, 2}, Grades: []model.Grade{1, 2}})
	require.NoError(t, err)

	assert.Zero(t, f.browser.starts)
	assert.Zero(t, f.browser.stops)
	assert.Len(t, res.Records, 4)
	assert.Equal(t, 4, res.Run.Tally.Skipped)
	assert.Equal(t, model.RunStatusComplete, f.ledger.runs[res.Run.ID].Status)
}

func TestRun_DefaultsToAllGrades(t *testing.T) {
	f := newFixture()
	r := f.runner(nil, pricing.PolicyDrop, GroupByGrade)

	res, err := r.Run(context.Background(), model.CampaignSpec{EntityIDs: []int64{9}})
	require.NoError(t, err)
	assert.Len(t, res.Records, 8)
}

func TestRun_SearchFailureFailsRun(t *testing.T) {
	f := newFixture()
	f.searcher.err = errors.New("server selection timeout")
	r := f.runner(nil, pricing.PolicyDrop, GroupByGrade)

	res, err := r.Run(context.Background(), model.CampaignSpec{Seasons: []string{"256"}})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, model.RunStatusFailed, f.ledger.runs[res.Run.ID].Status)
	assert.Contains(t, f.ledger.runs[res.Run.ID].Error, "campaign: search")
}

func TestRun_WriteFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.prices.FailWith = errors.New("not primary")
	r := f.runner(nil, pricing.PolicyDrop, GroupByGrade)

	res, err := r.Run(context.Background(), model.CampaignSpec{EntityIDs: []int64{1}, Grades: []model.Grade{1}})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindDataStore))
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 0, f.ledger.runs[res.Run.ID].Tally.Written)
	assert.Equal(t, model.RunStatusFailed, f.ledger.runs[res.Run.ID].Status)
}

func TestRun_BrowserStartFailure(t *testing.T) {
	f := newFixture()
	f.browser.err = errors.New("chrome not found")
	r := f.runner(nil, pricing.PolicyDrop, GroupByGrade)

	_, err := r.Run(context.Background(), model.CampaignSpec{EntityIDs: []int64{1}, Grades: []model.Grade{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign: start browser")
}

func TestRun_StatusProgression(t *testing.T) {
	f := newFixture(reports(256000001)...)
	r := f.runner(nil, pricing.PolicyDrop, GroupByGrade)

	_, err := r.Run(context.Background(), model.CampaignSpec{Seasons: []string{"256"}, Grades: []model.Grade{1}})
	require.NoError(t, err)
	assert.Equal(t, []model.RunStatus{
		model.RunStatusSearching,
		model.RunStatusExtracting,
		model.RunStatusWriting,
	}, f.ledger.statuses)
}

func TestRetry_RemovesRecoveredAndReschedulesFailures(t *testing.T) {
	f := newFixture()
	f.site.hang[2] = true
	r := f.runner(exclusion.New(4), pricing.PolicyDrop, GroupByGrade)

	entries := []resilience.DLQEntry{
		{ID: "a", EntityID: 1, Grade: 3},
		{ID: "b", EntityID: 2, Grade: 3},
		{ID: "c", EntityID: 4, Grade: 1},
		{ID: "a-dup", EntityID: 1, Grade: 3},
	}
	res, err := r.Retry(context.Background(), entries)
	require.NoError(t, err)

	assert.Len(t, res.Records, 3)
	assert.ElementsMatch(t, []string{"a", "c"}, f.ledger.removed)
	assert.Equal(t, []string{"b"}, f.ledger.bumped)
	assert.Equal(t, []int64{1, 2, 4}, res.Run.Spec.EntityIDs)

	doc, err := f.prices.Get(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	price, ok := doc.PriceAt(3)
	assert.True(t, ok)
	assert.Equal(t, "1,000", price)
}
