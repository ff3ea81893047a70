// Package dynamostore implements the backing store on a DynamoDB table with
// partition key ProductID, sort key Version and a CategoryIndex global
// secondary index. Expiry uses the table's native TTL on ExpiresAt.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v5"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

const (
	// CategoryIndex is the global secondary index keyed by Category.
	CategoryIndex = "CategoryIndex"

	// maxBatchWriteItems is the DynamoDB limit of requests per BatchWriteItem call.
	maxBatchWriteItems = 25
)

var _ storage.Store = (*Store)(nil)

var errUnprocessedItems = errors.New("unprocessed batch items")

// API is the subset of the DynamoDB client used by the store.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type Store struct {
	api        API
	table      string
	maxRetries int
}

// New returns a store over an existing client.
func New(api API, cfg config.Store) *Store {
	return &Store{
		api:        api,
		table:      cfg.Table,
		maxRetries: cfg.MaxRetries,
	}
}

// NewClient builds a DynamoDB client that retries cfg.MaxRetries times and
// bounds connection setup and whole requests by the configured timeouts.
func NewClient(ctx context.Context, cfg config.Store) (*dynamodb.Client, error) {
	httpClient := awshttp.NewBuildableClient().
		WithTimeout(cfg.RequestTimeout).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cfg.ConnectTimeout
		})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries+1),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

func (s *Store) PutItem(ctx context.Context, product model.Product, opts storage.PutOptions) error {
	item, err := attributevalue.MarshalMap(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if opts.IfNotExists {
		input.ConditionExpression = aws.String("attribute_not_exists(ProductID) AND attribute_not_exists(Version)")
	}

	if _, err := s.api.PutItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return storage.ErrConditionFailed
		}
		return fmt.Errorf("put item: %w", err)
	}

	return nil
}

func (s *Store) UpdateItem(ctx context.Context, key model.Key, upd storage.Update) (model.Product, error) {
	keyAttrs, err := attributevalue.MarshalMap(key)
	if err != nil {
		return model.Product{}, fmt.Errorf("marshal key: %w", err)
	}

	expr, names, values, err := updateExpression(upd)
	if err != nil {
		return model.Product{}, err
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyAttrs,
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return model.Product{}, fmt.Errorf("update item: %w", err)
	}

	var product model.Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &product); err != nil {
		return model.Product{}, fmt.Errorf("unmarshal product: %w", err)
	}

	return product, nil
}

func (s *Store) DeleteItem(ctx context.Context, key model.Key) error {
	keyAttrs, err := attributevalue.MarshalMap(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if _, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttrs,
	}); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	return nil
}

func (s *Store) QueryByID(ctx context.Context, params storage.QueryByIDParams) (storage.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("ProductID = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: params.ID},
		},
		ScanIndexForward: aws.Bool(!params.Descending),
	}

	page, err := s.query(ctx, input, params.Limit)
	if err != nil {
		return storage.Page{}, fmt.Errorf("query product versions: %w", err)
	}
	return page, nil
}

func (s *Store) QueryByCategory(ctx context.Context, params storage.QueryByCategoryParams) (storage.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(CategoryIndex),
		KeyConditionExpression: aws.String("Category = :category"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":category": &types.AttributeValueMemberS{Value: params.Category},
		},
	}

	page, err := s.query(ctx, input, params.Limit)
	if err != nil {
		return storage.Page{}, fmt.Errorf("query category index: %w", err)
	}
	return page, nil
}

func (s *Store) Scan(ctx context.Context, params storage.ScanParams) (storage.Page, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	}

	if params.Limit > 0 {
		input.Limit = aws.Int32(int32(params.Limit))
		out, err := s.api.Scan(ctx, input)
		if err != nil {
			return storage.Page{}, fmt.Errorf("scan: %w", err)
		}
		return toPage(out.Items, len(out.LastEvaluatedKey) > 0)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.api, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return storage.Page{}, fmt.Errorf("scan: %w", err)
		}
		items = append(items, out.Items...)
	}
	return toPage(items, false)
}

// BatchDelete issues BatchWriteItem calls of at most 25 keys, resubmitting
// unprocessed items with backoff.
func (s *Store) BatchDelete(ctx context.Context, keys []model.Key) error {
	for start := 0; start < len(keys); start += maxBatchWriteItems {
		end := min(start+maxBatchWriteItems, len(keys))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			keyAttrs, err := attributevalue.MarshalMap(key)
			if err != nil {
				return fmt.Errorf("marshal key: %w", err)
			}
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: keyAttrs},
			})
		}

		pending := map[string][]types.WriteRequest{s.table: requests}
		// Only unprocessed items are resubmitted; the SDK retries transport errors itself.
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			if n := len(out.UnprocessedItems[s.table]); n > 0 {
				pending = out.UnprocessedItems
				return struct{}{}, fmt.Errorf("%d items: %w", n, errUnprocessedItems)
			}
			return struct{}{}, nil
		}, storage.RetryOptions(s.maxRetries)...)
		if err != nil {
			return fmt.Errorf("batch write item: %w", err)
		}
	}

	return nil
}

// query runs a bounded query, or drains every page when limit is zero.
func (s *Store) query(ctx context.Context, input *dynamodb.QueryInput, limit int) (storage.Page, error) {
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
		out, err := s.api.Query(ctx, input)
		if err != nil {
			return storage.Page{}, err
		}
		return toPage(out.Items, len(out.LastEvaluatedKey) > 0)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.api, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return storage.Page{}, err
		}
		items = append(items, out.Items...)
	}
	return toPage(items, false)
}

func toPage(items []map[string]types.AttributeValue, hasMore bool) (storage.Page, error) {
	products := make([]model.Product, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &products); err != nil {
		return storage.Page{}, fmt.Errorf("unmarshal products: %w", err)
	}
	return storage.Page{Items: products, HasMore: hasMore}, nil
}

// updateExpression builds a SET expression touching UpdatedAt and the
// supplied attributes only.
func updateExpression(upd storage.Update) (string, map[string]string, map[string]types.AttributeValue, error) {
	expr := "SET #updatedAt = :updatedAt"
	names := map[string]string{"#updatedAt": "UpdatedAt"}
	values := map[string]types.AttributeValue{
		":updatedAt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", upd.UpdatedAt)},
	}

	fields := []struct {
		placeholder string
		attr        string
		value       any
		set         bool
	}{
		{"name", "Name", upd.Name, upd.Name != nil},
		{"category", "Category", upd.Category, upd.Category != nil},
		{"price", "Price", upd.Price, upd.Price != nil},
		{"description", "Description", upd.Description, upd.Description != nil},
		{"stock", "Stock", upd.Stock, upd.Stock != nil},
	}

	for _, f := range fields {
		if !f.set {
			continue
		}
		av, err := attributevalue.Marshal(f.value)
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal %s: %w", f.attr, err)
		}
		expr += fmt.Sprintf(", #%s = :%s", f.placeholder, f.placeholder)
		names["#"+f.placeholder] = f.attr
		values[":"+f.placeholder] = av
	}

	return expr, names, values, nil
}
