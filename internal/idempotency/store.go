package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/merchant-orderdesk/internal/aws"
)

// DefaultTTL is how long a status-change key is remembered.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused means the key was first used for a different order or action.
var ErrKeyReused = errors.New("idempotency key reused for a different request")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store. ttlWindow <= 0 uses DefaultTTL.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	if ttlWindow <= 0 {
		ttlWindow = DefaultTTL
	}
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ScopedKey namespaces a client key by merchant so two merchants sharing
// a table cannot collide.
func ScopedKey(merchantID, key string) string {
	return merchantID + "#" + key
}

// Begin claims key for (orderID, action). It returns (nil, nil) when the
// claim is new and the caller should proceed. Otherwise it returns the
// existing record so the caller can replay or report progress; a record
// for a different request yields ErrKeyReused.
func (s *Store) Begin(ctx context.Context, key, orderID, action string) (*Record, error) {
	created, err := s.CreateIfNotExists(ctx, key, orderID, action)
	if err != nil {
		return nil, err
	}
	if created {
		return nil, nil
	}
	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// expired but not yet swept by TTL
		if err := s.reclaim(ctx, key, orderID, action, "expires_at <= :now", map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.nowFunc().Unix())},
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if rec.OrderID != orderID || rec.Action != action {
		return rec, ErrKeyReused
	}
	if rec.Status == StatusFailed {
		if err := s.Retry(ctx, key, orderID, action); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rec, nil
}

// CreateIfNotExists creates an IN_PROGRESS record if the key does not exist.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if the record already exists (caller should Get to inspect).
func (s *Store) CreateIfNotExists(ctx context.Context, key, orderID, action string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		OrderID:        orderID,
		Action:         action,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Only create when attribute_not_exists(idempotency_key)
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		// detect conditional check failure
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found or expired, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyOf(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	// TTL deletion is lazy in DynamoDB
	if rec.ExpiresAt > 0 && s.nowFunc().Unix() >= rec.ExpiresAt {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the response so a replayed
// request gets the same answer.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	return s.finish(ctx, key, "SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua",
		map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
		})
}

// MarkFailed marks the record FAILED with a note. A failed key may be retried.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.finish(ctx, key, "SET #s = :failed, note = :n, updated_at = :ua",
		map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
		})
}

// Retry reclaims a FAILED key, resetting it to IN_PROGRESS.
func (s *Store) Retry(ctx context.Context, key, orderID, action string) error {
	return s.reclaim(ctx, key, orderID, action, "#s = :failed", map[string]types.AttributeValue{
		":failed": &types.AttributeValueMemberS{Value: StatusFailed},
	})
}

func (s *Store) reclaim(ctx context.Context, key, orderID, action, cond string, values map[string]types.AttributeValue) error {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		OrderID:        orderID,
		Action:         action,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	input := &dyn.PutItemInput{
		TableName:                 &s.tableName,
		Item:                      item,
		ConditionExpression:       &cond,
		ExpressionAttributeValues: values,
	}
	if cond == "#s = :failed" {
		input.ExpressionAttributeNames = map[string]string{"#s": "status"}
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("put item (reclaim): %w", err)
	}
	return nil
}

func (s *Store) finish(ctx context.Context, key, expr string, values map[string]types.AttributeValue) error {
	values[":ua"] = &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       keyOf(key),
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Helpers
func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
