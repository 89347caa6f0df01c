package orderdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/merchant-orderdesk/internal/aws"
	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

// MerchantIndex is the GSI on merchant_id used by both tables.
const MerchantIndex = "merchant_id-index"

// ErrOrderNotFound is returned when a status update targets a missing order.
var ErrOrderNotFound = errors.New("order not found")

// Store reads orders and products from DynamoDB and persists status changes.
type Store struct {
	client        aws.DynamoDBAPI
	ordersTable   string
	productsTable string
	vocabulary    orders.Vocabulary
	nowFunc       func() time.Time
}

// NewStore creates a new DynamoDB-backed order API.
func NewStore(client aws.DynamoDBAPI, ordersTable, productsTable string, vocabulary orders.Vocabulary) *Store {
	if vocabulary == "" {
		vocabulary = orders.VocabularyCanonical
	}
	return &Store{
		client:        client,
		ordersTable:   ordersTable,
		productsTable: productsTable,
		vocabulary:    vocabulary,
		nowFunc:       time.Now,
	}
}

// queryByMerchant pages through the merchant index and returns all items.
func (s *Store) queryByMerchant(ctx context.Context, table, merchantID string) ([]map[string]types.AttributeValue, error) {
	input := &dyn.QueryInput{
		TableName:              &table,
		IndexName:              awsString(MerchantIndex),
		KeyConditionExpression: awsString("merchant_id = :m"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberS{Value: merchantID},
		},
	}
	var items []map[string]types.AttributeValue
	p := dyn.NewQueryPaginator(s.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

// GetMerchantOrders returns every order for merchantID in index order.
func (s *Store) GetMerchantOrders(ctx context.Context, merchantID string) ([]orders.Order, error) {
	items, err := s.queryByMerchant(ctx, s.ordersTable, merchantID)
	if err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0, len(items))
	for _, item := range items {
		var rec OrderRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		out = append(out, rec.toOrder())
	}
	return out, nil
}

// UpdateOrderStatus sets the status of an existing order. Last write wins;
// the only condition is that the order exists.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.ordersTable,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberS{Value: s.vocabulary.Encode(status)},
			":ua":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id)"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		// detect conditional check failing
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// GetProductsByMerchant returns every product for merchantID.
func (s *Store) GetProductsByMerchant(ctx context.Context, merchantID string) ([]orders.Product, error) {
	items, err := s.queryByMerchant(ctx, s.productsTable, merchantID)
	if err != nil {
		return nil, err
	}
	out := make([]orders.Product, 0, len(items))
	for _, item := range items {
		var rec ProductRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal product: %w", err)
		}
		out = append(out, rec.toProduct())
	}
	return out, nil
}

func awsString(s string) *string { return &s }
