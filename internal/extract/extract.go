// Package extract runs the per-(player, grade) extraction pipeline: one fresh
// page, request filter installed, navigate, poll for readiness, read the
// value, close the page.
package extract

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// Page is a single browser tab used for exactly one work item.
type Page interface {
	// Intercept installs a request filter. Must be called before Navigate.
	Intercept(f RequestFilter) error
	// Navigate loads url and returns once the initial document is parsed.
	Navigate(ctx context.Context, url string) error
	// WaitReady polls until selector exists and carries a non-empty attr,
	// failing with context.DeadlineExceeded after timeout.
	WaitReady(ctx context.Context, selector, attr string, timeout time.Duration) error
	// Value reads attr of selector, or its text content when attr is empty.
	Value(ctx context.Context, selector, attr string) (string, error)
	Close() error
}

// PageOpener opens fresh pages in a shared browsing context.
type PageOpener interface {
	Open(ctx context.Context) (Page, error)
}

// RequestFilter decides whether a subresource request is aborted.
type RequestFilter interface {
	Blocks(resourceType, rawURL string) bool
}

// Config controls where and how values are read.
type Config struct {
	URLTemplate     string
	Selector        string
	ReadyAttr       string
	ValueAttr       string
	ReadyTimeout    time.Duration
	NavigateTimeout time.Duration
}

// DefaultConfig returns the datacenter price page settings.
func DefaultConfig() Config {
	return Config{
		URLTemplate:     "https://fconline.nexon.com/DataCenter/PlayerInfo?spid={id}&n1Strong={grade}",
		Selector:        ".txt strong",
		ReadyAttr:       "title",
		ReadyTimeout:    80 * time.Second,
		NavigateTimeout: 30 * time.Second,
	}
}

// Extractor turns (player, grade) pairs into ValuationRecords.
type Extractor struct {
	opener PageOpener
	filter RequestFilter
	cfg    Config
	now    func() time.Time
}

// New creates an Extractor. A nil filter leaves requests untouched. Zero
// fields of cfg take their defaults.
func New(opener PageOpener, filter RequestFilter, cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = def.URLTemplate
	}
	if cfg.Selector == "" {
		cfg.Selector = def.Selector
	}
	if cfg.ReadyAttr == "" {
		cfg.ReadyAttr = def.ReadyAttr
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = def.NavigateTimeout
	}
	return &Extractor{opener: opener, filter: filter, cfg: cfg, now: time.Now}
}

// URL renders the target URL for a work item.
func (e *Extractor) URL(entityID int64, grade model.Grade) string {
	return strings.NewReplacer(
		"{id}", strconv.FormatInt(entityID, 10),
		"{grade}", strconv.Itoa(int(grade)),
	).Replace(e.cfg.URLTemplate)
}

// Extract runs the pipeline for one work item. It never returns an error:
// failures come back as a record whose Kind says what went wrong and whose
// Value is model.ErrorMarker.
func (e *Extractor) Extract(ctx context.Context, entityID int64, grade model.Grade) model.ValuationRecord {
	rec := model.ValuationRecord{EntityID: entityID, Grade: grade}
	log := zap.L().With(zap.Int64("entity_id", entityID), zap.Int("grade", int(grade)))

	page, err := e.opener.Open(ctx)
	if err != nil {
		return e.fail(log, rec, classify(err, model.OutcomeNavigation), eris.Wrap(err, "open page"))
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Debug("extract: close page failed", zap.Error(cerr))
		}
	}()

	if e.filter != nil {
		if err := page.Intercept(e.filter); err != nil {
			return e.fail(log, rec, model.OutcomeNavigation, eris.Wrap(err, "install filter"))
		}
	}

	target := e.URL(entityID, grade)
	log.Debug("extract: navigating", zap.String("url", target))

	navCtx, cancel := context.WithTimeout(ctx, e.cfg.NavigateTimeout)
	err = page.Navigate(navCtx, target)
	cancel()
	if err != nil {
		return e.fail(log, rec, classify(err, model.OutcomeNavigation), eris.Wrapf(err, "navigate %s", target))
	}

	if err := page.WaitReady(ctx, e.cfg.Selector, e.cfg.ReadyAttr, e.cfg.ReadyTimeout); err != nil {
		return e.fail(log, rec, classify(err, model.OutcomeExtraction), eris.Wrapf(err, "wait for %s[%s]", e.cfg.Selector, e.cfg.ReadyAttr))
	}

	value, err := page.Value(ctx, e.cfg.Selector, e.cfg.ValueAttr)
	if err != nil {
		return e.fail(log, rec, classify(err, model.OutcomeExtraction), eris.Wrapf(err, "read %s", e.cfg.Selector))
	}

	rec.Value = strings.TrimSpace(value)
	rec.Kind = model.OutcomeSuccess
	rec.FinishedAt = e.now()
	log.Info("extract: price collected", zap.String("price", rec.Value))
	return rec
}

func (e *Extractor) fail(log *zap.Logger, rec model.ValuationRecord, kind model.OutcomeKind, err error) model.ValuationRecord {
	rec.Kind = kind
	rec.Value = model.ErrorMarker
	rec.Err = resilience.TransientNetwork("extract", err)
	rec.FinishedAt = e.now()
	log.Warn("extract: work item failed", zap.String("kind", string(kind)), zap.Error(err))
	return rec
}

// classify maps deadline errors to a timeout outcome and everything else to
// fallback.
func classify(err error, fallback model.OutcomeKind) model.OutcomeKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.OutcomeTimeout
	}
	return fallback
}
