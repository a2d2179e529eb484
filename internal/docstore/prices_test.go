package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

func TestUpsertModels_Shape(t *testing.T) {
	models := UpsertModels([]model.PriceUpsert{{ID: "101000001", Grade: 5, Price: "1,200억"}})
	require.Len(t, models, 3)

	ensure, ok := models[0].(*mongo.UpdateOneModel)
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "id", Value: "101000001"}}, ensure.Filter)
	require.NotNil(t, ensure.Upsert)
	assert.True(t, *ensure.Upsert)
	assert.Equal(t, "$setOnInsert", ensure.Update.(bson.D)[0].Key)

	push, ok := models[1].(*mongo.UpdateOneModel)
	require.True(t, ok)
	assert.Nil(t, push.Upsert)
	assert.Equal(t, bson.D{
		{Key: "id", Value: "101000001"},
		{Key: "prices.grade", Value: bson.D{{Key: "$ne", Value: 5}}},
	}, push.Filter)
	assert.Equal(t, "$push", push.Update.(bson.D)[0].Key)

	set, ok := models[2].(*mongo.UpdateOneModel)
	require.True(t, ok)
	assert.Nil(t, set.Upsert)
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "prices.$[elem].price", Value: "1,200억"}}}}, set.Update)
	require.NotNil(t, set.ArrayFilters)
	assert.Equal(t, []any{bson.D{{Key: "elem.grade", Value: 5}}}, set.ArrayFilters.Filters)
}

func TestUpsertModels_PreservesOrder(t *testing.T) {
	models := UpsertModels([]model.PriceUpsert{
		{ID: "1", Grade: 1, Price: "a"},
		{ID: "2", Grade: 2, Price: "b"},
	})
	require.Len(t, models, 6)
	assert.Equal(t, bson.D{{Key: "id", Value: "1"}}, models[0].(*mongo.UpdateOneModel).Filter)
	assert.Equal(t, bson.D{{Key: "id", Value: "2"}}, models[3].(*mongo.UpdateOneModel).Filter)
}

func TestMemoryPrices_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryPrices()
	ups := []model.PriceUpsert{
		{ID: "300000001", Grade: 1, Price: "10"},
		{ID: "300000001", Grade: 2, Price: "20"},
	}

	_, err := m.UpsertPrices(ctx, ups)
	require.NoError(t, err)
	first, err := m.Get(ctx, "300000001")
	require.NoError(t, err)

	res, err := m.UpsertPrices(ctx, ups)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Modified)
	assert.Equal(t, int64(0), res.Upserted)

	second, err := m.Get(ctx, "300000001")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, second.Prices, 2)
}

func TestMemoryPrices_OverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryPrices()

	_, err := m.UpsertPrices(ctx, []model.PriceUpsert{{ID: "7", Grade: 3, Price: "old"}})
	require.NoError(t, err)
	res, err := m.UpsertPrices(ctx, []model.PriceUpsert{{ID: "7", Grade: 3, Price: "new"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Modified)

	doc, err := m.Get(ctx, "7")
	require.NoError(t, err)
	require.Len(t, doc.Prices, 1)
	price, ok := doc.PriceAt(3)
	assert.True(t, ok)
	assert.Equal(t, "new", price)
	assert.Equal(t, []string{"7"}, m.IDs())
}

func TestMemoryPrices_GetMissing(t *testing.T) {
	doc, err := NewMemoryPrices().Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestPriceRepo_UpsertPrices(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 3},
			bson.E{Key: "nModified", Value: 2},
		))

		repo := &PriceRepo{coll: mt.Coll}
		res, err := repo.UpsertPrices(context.Background(), []model.PriceUpsert{{ID: "1", Grade: 1, Price: "5"}})
		require.NoError(mt, err)
		assert.Equal(mt, 3, res.Operations)
		assert.Equal(mt, int64(2), res.Modified)
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		repo := &PriceRepo{coll: mt.Coll}
		res, err := repo.UpsertPrices(context.Background(), []model.PriceUpsert{{ID: "1", Grade: 1, Price: "5"}})
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "docstore: bulk write")
		assert.Equal(mt, BulkResult{}, res)
	})

	mt.Run("empty", func(mt *mtest.T) {
		repo := &PriceRepo{coll: mt.Coll}
		res, err := repo.UpsertPrices(context.Background(), nil)
		require.NoError(mt, err)
		assert.Equal(mt, BulkResult{}, res)
	})
}
