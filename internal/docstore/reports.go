package docstore

import (
	"context"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// finder is the subset of *mongo.Collection used for reads.
type finder interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// ReportRepo reads player reports and resolves their references.
type ReportRepo struct {
	reports finder
	prices  finder
	seasons finder
	traits  finder
}

// NewReportRepo wraps the report collection and its reference collections.
func NewReportRepo(reports, prices, seasons, traits *mongo.Collection) *ReportRepo {
	return &ReportRepo{reports: reports, prices: prices, seasons: seasons, traits: traits}
}

// Find returns the reports matching filter in sort order. A limit of zero
// means no limit.
func (r *ReportRepo) Find(ctx context.Context, filter bson.D, sort bson.D, limit int64) ([]model.PlayerReport, error) {
	opts := options.Find()
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := r.reports.Find(ctx, filter, opts)
	if err != nil {
		return nil, eris.Wrap(err, "docstore: find reports")
	}
	var out []model.PlayerReport
	if err := cur.All(ctx, &out); err != nil {
		return nil, eris.Wrap(err, "docstore: decode reports")
	}
	return out, nil
}

// Populate resolves the price document, season image and traits of every
// report in place, one $in lookup per reference collection.
func (r *ReportRepo) Populate(ctx context.Context, reports []model.PlayerReport) error {
	if len(reports) == 0 {
		return nil
	}

	var priceRefs, seasonRefs, traitRefs []primitive.ObjectID
	for i := range reports {
		p := &reports[i].Profile
		if !p.PricesRef.IsZero() {
			priceRefs = append(priceRefs, p.PricesRef)
		}
		if !p.SeasonImage.Ref.IsZero() {
			seasonRefs = append(seasonRefs, p.SeasonImage.Ref)
		}
		traitRefs = append(traitRefs, p.TraitRefs...)
	}

	prices, err := lookup[model.PriceDocument](ctx, r.prices, priceRefs, func(d model.PriceDocument) primitive.ObjectID { return d.ObjectID })
	if err != nil {
		return eris.Wrap(err, "docstore: populate prices")
	}
	seasons, err := lookup[model.SeasonImage](ctx, r.seasons, seasonRefs, func(d model.SeasonImage) primitive.ObjectID { return d.ObjectID })
	if err != nil {
		return eris.Wrap(err, "docstore: populate season images")
	}
	traits, err := lookup[model.Trait](ctx, r.traits, traitRefs, func(d model.Trait) primitive.ObjectID { return d.ObjectID })
	if err != nil {
		return eris.Wrap(err, "docstore: populate traits")
	}

	missing := 0
	for i := range reports {
		p := &reports[i].Profile
		if doc, ok := prices[p.PricesRef]; ok {
			p.Prices = &doc
		} else if !p.PricesRef.IsZero() {
			missing++
		}
		if s, ok := seasons[p.SeasonImage.Ref]; ok {
			p.SeasonImage.Season = &s
		}
		p.Traits = p.Traits[:0]
		for _, ref := range p.TraitRefs {
			if t, ok := traits[ref]; ok {
				p.Traits = append(p.Traits, t)
			}
		}
	}
	if missing > 0 {
		zap.L().Debug("price references not found", zap.Int("missing", missing))
	}
	return nil
}

func lookup[T any](ctx context.Context, coll finder, ids []primitive.ObjectID, key func(T) primitive.ObjectID) (map[primitive.ObjectID]T, error) {
	out := make(map[primitive.ObjectID]T)
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, err
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[key(d)] = d
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
