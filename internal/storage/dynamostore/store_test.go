package dynamostore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
)

type fakeAPI struct {
	API

	putErr      error
	puts        []*dynamodb.PutItemInput
	updates     []*dynamodb.UpdateItemInput
	queries     []*dynamodb.QueryInput
	queryOut    *dynamodb.QueryOutput
	batches     []*dynamodb.BatchWriteItemInput
	unprocessed map[string][]types.WriteRequest
	// stuck keeps returning unprocessed on every call.
	stuck    bool
	batchErr error
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	attrs := map[string]types.AttributeValue{}
	for k, v := range in.Key {
		attrs[k] = v
	}
	for placeholder, attr := range in.ExpressionAttributeNames {
		attrs[attr] = in.ExpressionAttributeValues[":"+placeholder[1:]]
	}
	return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	return f.queryOut, nil
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batches = append(f.batches, in)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: f.unprocessed}
	if !f.stuck {
		f.unprocessed = nil
	}
	return out, nil
}

func newTestStore(api API) *Store {
	return New(api, config.Store{Table: "products", MaxRetries: 3})
}

func TestPutItem(t *testing.T) {
	ctx := context.Background()

	t.Run("Should guard the composite key when IfNotExists is set", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestStore(api)

		err := s.PutItem(ctx, model.Product{ProductID: "a", Version: 1, Name: "A"}, storage.PutOptions{IfNotExists: true})
		require.NoError(t, err)
		require.Len(t, api.puts, 1)
		assert.Equal(t, "attribute_not_exists(ProductID) AND attribute_not_exists(Version)", aws.ToString(api.puts[0].ConditionExpression))
		assert.Equal(t, "products", aws.ToString(api.puts[0].TableName))
		assert.NotContains(t, api.puts[0].Item, "ExpiresAt")
	})

	t.Run("Should map conditional check failures", func(t *testing.T) {
		api := &fakeAPI{putErr: &types.ConditionalCheckFailedException{Message: aws.String("exists")}}
		s := newTestStore(api)

		err := s.PutItem(ctx, model.Product{ProductID: "a", Version: 1}, storage.PutOptions{IfNotExists: true})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)
	})

	t.Run("Should surface other errors", func(t *testing.T) {
		api := &fakeAPI{putErr: errors.New("throttled")}
		s := newTestStore(api)

		err := s.PutItem(ctx, model.Product{ProductID: "a", Version: 1}, storage.PutOptions{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, storage.ErrConditionFailed)
		assert.Nil(t, api.puts[0].ConditionExpression)
	})
}

func TestUpdateItem(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(api)

	row, err := s.UpdateItem(context.Background(), model.Key{ProductID: "a", Version: 7}, storage.Update{
		Price:     ptr.New(12.5),
		Stock:     ptr.New(3),
		UpdatedAt: 99,
	})
	require.NoError(t, err)

	require.Len(t, api.updates, 1)
	in := api.updates[0]
	assert.Equal(t, "SET #updatedAt = :updatedAt, #price = :price, #stock = :stock", aws.ToString(in.UpdateExpression))
	assert.Equal(t, types.ReturnValueAllNew, in.ReturnValues)
	assert.NotContains(t, in.ExpressionAttributeNames, "#name")

	assert.Equal(t, model.Product{ProductID: "a", Version: 7, Price: 12.5, Stock: 3, UpdatedAt: 99}, row)
}

func TestQueryByID(t *testing.T) {
	item, err := attributevalue.MarshalMap(model.Product{ProductID: "a", Version: 3, Name: "A"})
	require.NoError(t, err)

	api := &fakeAPI{queryOut: &dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{item},
		LastEvaluatedKey: map[string]types.AttributeValue{"ProductID": &types.AttributeValueMemberS{Value: "a"}},
	}}
	s := newTestStore(api)

	page, err := s.QueryByID(context.Background(), storage.QueryByIDParams{ID: "a", Descending: true, Limit: 1})
	require.NoError(t, err)

	require.Len(t, api.queries, 1)
	assert.False(t, aws.ToBool(api.queries[0].ScanIndexForward))
	assert.Equal(t, int32(1), aws.ToInt32(api.queries[0].Limit))
	assert.True(t, page.HasMore)
	assert.Equal(t, []model.Product{{ProductID: "a", Version: 3, Name: "A"}}, page.Items)
}

func TestQueryByCategoryUsesIndex(t *testing.T) {
	api := &fakeAPI{queryOut: &dynamodb.QueryOutput{}}
	s := newTestStore(api)

	page, err := s.QueryByCategory(context.Background(), storage.QueryByCategoryParams{Category: "tools", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.Equal(t, CategoryIndex, aws.ToString(api.queries[0].IndexName))
}

func TestBatchDelete(t *testing.T) {
	ctx := context.Background()

	keys := make([]model.Key, 60)
	for i := range keys {
		keys[i] = model.Key{ProductID: "a", Version: int64(i)}
	}

	t.Run("Should chunk requests by 25", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestStore(api)

		require.NoError(t, s.BatchDelete(ctx, keys))

		require.Len(t, api.batches, 3)
		assert.Len(t, api.batches[0].RequestItems["products"], 25)
		assert.Len(t, api.batches[1].RequestItems["products"], 25)
		assert.Len(t, api.batches[2].RequestItems["products"], 10)
	})

	t.Run("Should resubmit unprocessed items", func(t *testing.T) {
		leftover := []types.WriteRequest{{DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
			"ProductID": &types.AttributeValueMemberS{Value: "a"},
			"Version":   &types.AttributeValueMemberN{Value: "0"},
		}}}}
		api := &fakeAPI{unprocessed: map[string][]types.WriteRequest{"products": leftover}}
		s := newTestStore(api)

		require.NoError(t, s.BatchDelete(ctx, keys[:1]))

		require.Len(t, api.batches, 2)
		assert.Equal(t, leftover, api.batches[1].RequestItems["products"])
	})

	t.Run("Should give up after the configured retries", func(t *testing.T) {
		leftover := []types.WriteRequest{{DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
			"ProductID": &types.AttributeValueMemberS{Value: "a"},
			"Version":   &types.AttributeValueMemberN{Value: "0"},
		}}}}
		api := &fakeAPI{unprocessed: map[string][]types.WriteRequest{"products": leftover}, stuck: true}
		s := New(api, config.Store{Table: "products", MaxRetries: 2})

		err := s.BatchDelete(ctx, keys[:1])
		require.ErrorIs(t, err, errUnprocessedItems)
		assert.Len(t, api.batches, 3)
	})

	t.Run("Should not resubmit after a request error", func(t *testing.T) {
		api := &fakeAPI{batchErr: errors.New("throttled")}
		s := newTestStore(api)

		err := s.BatchDelete(ctx, keys[:1])
		require.ErrorIs(t, err, api.batchErr)
		assert.Len(t, api.batches, 1)
	})

	t.Run("Should do nothing without keys", func(t *testing.T) {
		api := &fakeAPI{}
		require.NoError(t, newTestStore(api).BatchDelete(ctx, nil))
		assert.Empty(t, api.batches)
	})
}
