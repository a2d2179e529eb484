// Package query builds the candidate player lists a campaign values.
package query

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
)

// DefaultLimit caps the rows returned per season query.
const DefaultLimit = 10000

// minRatingFloor is the rating at or below which no rating clause is added.
const minRatingFloor = 10

// Source reads player reports and resolves their references.
type Source interface {
	Find(ctx context.Context, filter bson.D, sort bson.D, limit int64) ([]model.PlayerReport, error)
	Populate(ctx context.Context, reports []model.PlayerReport) error
}

// Options selects the candidates of one search.
type Options struct {
	Seasons     []string `json:"seasons"`
	MinOvr      int      `json:"min_ovr"`
	NamePattern string   `json:"name,omitempty"`
	Limit       int64    `json:"limit,omitempty"`
}

// Config configures a Builder.
type Config struct {
	Limit int64
	Retry resilience.RetryConfig
}

// Builder runs candidate searches against a Source.
type Builder struct {
	src   Source
	limit int64
	retry resilience.RetryConfig
}

// NewBuilder returns a Builder reading from src.
func NewBuilder(src Source, cfg Config) *Builder {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("query: find")
	}
	return &Builder{src: src, limit: cfg.Limit, retry: cfg.Retry}
}

// SeasonRange returns the inclusive id range owned by a season selector. The
// season number is the numeric value of the selector's last three characters.
func SeasonRange(selector string) (lo, hi int64, err error) {
	s := strings.TrimSpace(selector)
	if r := []rune(s); len(r) > 3 {
		s = string(r[len(r)-3:])
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, 0, eris.Errorf("query: invalid season selector %q", selector)
	}
	lo = n * model.SeasonSpan
	return lo, lo + model.SeasonSpan - 1, nil
}

// Base returns the clauses shared by every query of a search: the name
// pattern and, above the rating floor, the minimum best overall.
func Base(opts Options) (*Predicates, error) {
	pattern := norm.NFC.String(opts.NamePattern)
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, eris.Wrapf(err, "query: invalid name pattern %q", opts.NamePattern)
	}

	p := &Predicates{}
	p.Push(bson.D{{Key: "name", Value: primitive.Regex{Pattern: pattern}}})
	if opts.MinOvr > minRatingFloor {
		p.Push(bson.D{{Key: model.FieldBestOverall, Value: bson.D{{Key: "$gte", Value: opts.MinOvr}}}})
	}
	return p, nil
}

// Search returns the matching reports with their references resolved. With
// seasons, one query per selector runs in order and the results are
// concatenated. A player matched by two selectors appears twice.
func (b *Builder) Search(ctx context.Context, opts Options) ([]model.PlayerReport, error) {
	preds, err := Base(opts)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = b.limit
	}
	sort := bson.D{{Key: model.FieldPositionBestOverall, Value: -1}}

	var out []model.PlayerReport
	if len(opts.Seasons) == 0 {
		out, err = b.find(ctx, preds.Filter(), sort, limit)
		if err != nil {
			return nil, err
		}
	} else {
		for _, sel := range opts.Seasons {
			lo, hi, err := SeasonRange(sel)
			if err != nil {
				return nil, err
			}
			preds.Push(bson.D{{Key: "id", Value: bson.D{
				{Key: "$gte", Value: lo},
				{Key: "$lte", Value: hi},
			}}})
			found, err := b.find(ctx, preds.Filter(), sort, limit)
			preds.Pop()
			if err != nil {
				return nil, eris.Wrapf(err, "query: season %s", sel)
			}
			zap.L().Debug("season query", zap.String("season", sel), zap.Int("rows", len(found)))
			out = append(out, found...)
		}
	}

	if err := resilience.Do(ctx, b.retry, func(ctx context.Context) error {
		return b.src.Populate(ctx, out)
	}); err != nil {
		return nil, eris.Wrap(err, "query: populate")
	}

	zap.L().Info("search complete",
		zap.Strings("seasons", opts.Seasons),
		zap.Int("min_ovr", opts.MinOvr),
		zap.Int("rows", len(out)),
	)
	return out, nil
}

func (b *Builder) find(ctx context.Context, filter, sort bson.D, limit int64) ([]model.PlayerReport, error) {
	return resilience.DoVal(ctx, b.retry, func(ctx context.Context) ([]model.PlayerReport, error) {
		return b.src.Find(ctx, filter, sort, limit)
	})
}

// IDs returns the entity ids of reports in order.
func IDs(reports []model.PlayerReport) []int64 {
	ids := make([]int64, len(reports))
	for i, r := range reports {
		ids[i] = r.ID
	}
	return ids
}
