package orderdb

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

// mockDynamo is a simple mock that supports GetItem, PutItem, UpdateItem and
// Query on the merchant index. It stores items per table in a nested map:
// table -> pkValue -> item map. Query pages pageSize items at a time.
type mockDynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int
	queries  int
	queryErr error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables:   map[string]map[string]map[string]types.AttributeValue{},
		pageSize: 2,
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	for _, k := range []string{"order_id", "product_id"} {
		if v, ok := item[k]; ok {
			return v.(*types.AttributeValueMemberS).Value, nil
		}
	}
	return "", errors.New("no primary key")
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	m.tables[table][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.tables[table][pk]
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_exists(order_id)" && !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if !exists {
		item = map[string]types.AttributeValue{}
		for k, v := range params.Key {
			item[k] = v
		}
	}
	if v, ok := params.ExpressionAttributeValues[":new"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	m.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if params.IndexName == nil || *params.IndexName != MerchantIndex {
		return nil, errors.New("expected merchant index")
	}
	merchant := params.ExpressionAttributeValues[":m"].(*types.AttributeValueMemberS).Value

	var keys []string
	for pk, item := range m.tables[*params.TableName] {
		if v, ok := item["merchant_id"].(*types.AttributeValueMemberS); ok && v.Value == merchant {
			keys = append(keys, pk)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(params.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	end := start + m.pageSize
	if end > len(keys) {
		end = len(keys)
	}
	out := &dyn.QueryOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, m.tables[*params.TableName][k])
	}
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	}
	return out, nil
}

func putOrder(t *testing.T, m *mockDynamo, rec OrderRecord) {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m.ensureTable("orders")
	m.tables["orders"][rec.OrderID] = item
}

func TestGetMerchantOrders_PagesAndNormalizes(t *testing.T) {
	mock := newMockDynamo()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	putOrder(t, mock, OrderRecord{OrderID: "o1", MerchantID: "m1", Status: "new", TotalAmount: 10, CreatedAt: now})
	putOrder(t, mock, OrderRecord{OrderID: "o2", MerchantID: "m1", Status: "Out for Delivery",
		Items: []ItemRecord{{Name: "Milk", Quantity: 2, Price: 55}}, TotalAmount: 110})
	putOrder(t, mock, OrderRecord{OrderID: "o3", MerchantID: "m1", Status: "???"})
	putOrder(t, mock, OrderRecord{OrderID: "x1", MerchantID: "m2", Status: "new"})

	s := NewStore(mock, "orders", "products", "")
	got, err := s.GetMerchantOrders(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(got))
	}
	if mock.queries != 2 {
		t.Fatalf("expected 2 pages, got %d", mock.queries)
	}
	if got[1].Status != orders.StatusReady || got[1].Items[0].Name != "Milk" {
		t.Fatalf("unexpected second order %+v", got[1])
	}
	if got[2].Status != orders.StatusNew {
		t.Fatalf("expected unknown status to fall back to new, got %s", got[2].Status)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("expected createdAt parsed")
	}
}

func TestGetMerchantOrders_QueryError(t *testing.T) {
	mock := newMockDynamo()
	mock.queryErr = errors.New("throttled")
	s := NewStore(mock, "orders", "products", orders.VocabularyCanonical)
	if _, err := s.GetMerchantOrders(context.Background(), "m1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdateOrderStatus_SuccessAndMissing(t *testing.T) {
	mock := newMockDynamo()
	putOrder(t, mock, OrderRecord{OrderID: "o1", MerchantID: "m1", Status: "Confirmed"})

	s := NewStore(mock, "orders", "products", orders.VocabularyDisplay)
	fixed := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	if err := s.UpdateOrderStatus(context.Background(), "o1", orders.StatusPacked); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	var rec OrderRecord
	if err := attributevalue.UnmarshalMap(mock.tables["orders"]["o1"], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Status != "Preparing" {
		t.Fatalf("expected display vocabulary Preparing, got %s", rec.Status)
	}
	if rec.UpdatedAt != fixed.Format(time.RFC3339) {
		t.Fatalf("unexpected updated_at %s", rec.UpdatedAt)
	}

	err := s.UpdateOrderStatus(context.Background(), "nope", orders.StatusPacked)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, exists := mock.tables["orders"]["nope"]; exists {
		t.Fatal("update must not create orders")
	}
}

func TestGetProductsByMerchant(t *testing.T) {
	mock := newMockDynamo()
	mock.ensureTable("products")
	for _, p := range []ProductRecord{
		{ProductID: "p1", MerchantID: "m1", Name: "Milk", Stock: 4, IsActive: true},
		{ProductID: "p2", MerchantID: "m1", Name: "Eggs", Stock: 40, IsActive: true},
		{ProductID: "p3", MerchantID: "m1", Name: "Old", Stock: 0, IsActive: false},
	} {
		item, _ := attributevalue.MarshalMap(p)
		mock.tables["products"][p.ProductID] = item
	}

	s := NewStore(mock, "orders", "products", "")
	got, err := s.GetProductsByMerchant(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 products, got %d", len(got))
	}
	low := orders.LowStock(got, orders.DefaultLowStockThreshold)
	if len(low) != 1 || low[0].ID != "p1" {
		t.Fatalf("unexpected low stock %+v", low)
	}
}
