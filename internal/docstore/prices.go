package docstore

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

// BulkResult summarizes one bulk write.
type BulkResult struct {
	Operations int   `json:"operations"`
	Matched    int64 `json:"matched"`
	Modified   int64 `json:"modified"`
	Upserted   int64 `json:"upserted"`
}

// bulkWriter is the subset of *mongo.Collection used by PriceRepo.
type bulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// PriceRepo writes grade prices into the prices collection.
type PriceRepo struct {
	coll bulkWriter
}

// NewPriceRepo wraps the prices collection.
func NewPriceRepo(coll *mongo.Collection) *PriceRepo {
	return &PriceRepo{coll: coll}
}

// UpsertPrices applies every upsert in one ordered bulk write.
func (r *PriceRepo) UpsertPrices(ctx context.Context, ups []model.PriceUpsert) (BulkResult, error) {
	if len(ups) == 0 {
		return BulkResult{}, nil
	}

	models := UpsertModels(ups)
	res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return BulkResult{}, eris.Wrapf(err, "docstore: bulk write %d prices", len(ups))
	}
	return BulkResult{
		Operations: len(models),
		Matched:    res.MatchedCount,
		Modified:   res.ModifiedCount,
		Upserted:   res.UpsertedCount,
	}, nil
}

// Get returns the price document for a player id.
func (r *PriceRepo) Get(ctx context.Context, id string) (*model.PriceDocument, error) {
	var doc model.PriceDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: get price %s", id)
	}
	return &doc, nil
}

// UpsertModels expands each upsert into three ordered operations:
//  1. create {id, prices: []} when no document has the id
//  2. append {grade, price} when the grade is absent
//  3. overwrite the price of the grade in place
//
// Step 2 leaves an existing grade alone and step 3 is a no-op for a grade
// just appended with the same price, so a replay converges to one entry per
// grade.
func UpsertModels(ups []model.PriceUpsert) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(ups)*3)
	for _, u := range ups {
		models = append(models,
			mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "id", Value: u.ID}}).
				SetUpdate(bson.D{{Key: "$setOnInsert", Value: bson.D{
					{Key: "id", Value: u.ID},
					{Key: "prices", Value: bson.A{}},
				}}}).
				SetUpsert(true),
			mongo.NewUpdateOneModel().
				SetFilter(bson.D{
					{Key: "id", Value: u.ID},
					{Key: "prices.grade", Value: bson.D{{Key: "$ne", Value: int(u.Grade)}}},
				}).
				SetUpdate(bson.D{{Key: "$push", Value: bson.D{
					{Key: "prices", Value: bson.D{
						{Key: "grade", Value: int(u.Grade)},
						{Key: "price", Value: u.Price},
					}},
				}}}),
			mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "id", Value: u.ID}}).
				SetUpdate(bson.D{{Key: "$set", Value: bson.D{
					{Key: "prices.$[elem].price", Value: u.Price},
				}}}).
				SetArrayFilters(options.ArrayFilters{
					Filters: []any{bson.D{{Key: "elem.grade", Value: int(u.Grade)}}},
				}),
		)
	}
	return models
}
