package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo stores items per table in a nested map: table -> pkValue -> item.
// It interprets only the condition expressions this store issues.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func itemPK(item map[string]types.AttributeValue) (string, error) {
	if v, ok := item["order_id"]; ok {
		return v.(*types.AttributeValueMemberS).Value, nil
	}
	if v, ok := item["submission_key"]; ok {
		return v.(*types.AttributeValueMemberS).Value, nil
	}
	return "", errors.New("no primary key in item")
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := itemPK(params.Item)
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
	pk, err := itemPK(params.Key)
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
	pk, err := itemPK(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.tables[table][pk]
	if !exists {
		return nil, errors.New("item not found")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :expected" {
		attr := params.ExpressionAttributeNames["#s"]
		expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value
		curr, ok := item[attr].(*types.AttributeValueMemberN)
		if !ok || curr.Value != expected {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if v, ok := params.ExpressionAttributeValues[":new"]; ok {
		item[params.ExpressionAttributeNames["#s"]] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	m.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	pk, err := itemPK(params.Key)
	if err != nil {
		return nil, err
	}
	delete(m.tables[table], pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	owner := params.ExpressionAttributeValues[":o"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, item := range m.tables[table] {
		if v, ok := item["owner_id"].(*types.AttributeValueMemberS); ok && v.Value == owner {
			out = append(out, item)
		}
	}
	return &dyn.QueryOutput{Items: out}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// First pass: verify condition expressions.
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil || p.ConditionExpression == nil {
			continue
		}
		if *p.ConditionExpression == "attribute_not_exists(submission_key)" {
			table := *p.TableName
			m.ensureTable(table)
			kattr, ok := p.Item["submission_key"].(*types.AttributeValueMemberS)
			if !ok {
				return nil, errors.New("missing submission_key in put")
			}
			if _, exists := m.tables[table][kattr.Value]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	// Second pass: apply all writes.
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := *p.TableName
			m.ensureTable(table)
			pk, err := itemPK(p.Item)
			if err != nil {
				return nil, err
			}
			m.tables[table][pk] = p.Item
		}
		if u := it.Update; u != nil {
			table := *u.TableName
			m.ensureTable(table)
			pk, err := itemPK(u.Key)
			if err != nil {
				return nil, err
			}
			item, exists := m.tables[table][pk]
			if !exists {
				return nil, errors.New("transact update: item not found")
			}
			applyUpdateExpression(item, *u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			m.tables[table][pk] = item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// applyUpdateExpression understands only "SET a = :x, b = :y" forms.
func applyUpdateExpression(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) {
	rest, ok := strings.CutPrefix(expr, "SET ")
	if !ok {
		return
	}
	for _, assign := range strings.Split(rest, ",") {
		attr, val, ok := strings.Cut(assign, "=")
		if !ok {
			continue
		}
		attr = strings.TrimSpace(attr)
		if resolved, ok := names[attr]; ok {
			attr = resolved
		}
		if v, ok := values[strings.TrimSpace(val)]; ok {
			item[attr] = v
		}
	}
}

func seedOrder(m *mockDynamo, table string, o Order) {
	m.ensureTable(table)
	item, _ := attributevalue.MarshalMap(o)
	m.tables[table][o.OrderID] = item
}

func TestCreateWithSubmissionTransaction_Success(t *testing.T) {
	mock := newMockDynamo()
	store := NewStore(mock, "orders")

	now := time.Now()
	subm := map[string]interface{}{
		"submission_key": "key-1",
		"status":         "IN_PROGRESS",
		"created_at":     now.Format(time.RFC3339),
	}
	order := Order{
		OrderID:  "order-1",
		OwnerID:  "cust-1",
		StatusID: StatusPending,
		Amount:   123.45,
		Items:    []OrderItem{{ProductID: "p-1", Name: "Amber Oud 50ml", Quantity: 1, Price: 123.45}},
	}

	err := store.CreateWithSubmissionTransaction(context.Background(), "submissions", subm, order, 48*time.Hour)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if _, ok := mock.tables["submissions"]["key-1"]; !ok {
		t.Fatal("submission item not stored")
	}
	if _, ok := mock.tables["submissions"]["key-1"]["expires_at"]; !ok {
		t.Fatal("TTL not applied to submission item")
	}

	orderItem, ok := mock.tables["orders"]["order-1"]
	if !ok {
		t.Fatal("order item not stored")
	}
	var got Order
	if err := attributevalue.UnmarshalMap(orderItem, &got); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if got.OrderID != order.OrderID || got.StatusID != StatusPending {
		t.Fatalf("stored order mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}
}

func TestCreateWithSubmissionTransaction_DuplicateKey(t *testing.T) {
	mock := newMockDynamo()
	mock.ensureTable("submissions")
	mock.tables["submissions"]["key-2"] = map[string]types.AttributeValue{
		"submission_key": &types.AttributeValueMemberS{Value: "key-2"},
		"status":         &types.AttributeValueMemberS{Value: "DONE"},
	}

	store := NewStore(mock, "orders")
	err := store.CreateWithSubmissionTransaction(context.Background(), "submissions",
		map[string]interface{}{"submission_key": "key-2"},
		Order{OrderID: "order-2", OwnerID: "cust-2", Amount: 10},
		48*time.Hour)
	if err == nil {
		t.Fatal("expected transaction canceled error, got nil")
	}
	if _, ok := mock.tables["orders"]["order-2"]; ok {
		t.Fatal("order must not be written when the submission key exists")
	}
}

func TestUpdateStatus_ConditionSuccessAndFail(t *testing.T) {
	mock := newMockDynamo()
	seedOrder(mock, "orders", Order{OrderID: "order-10", OwnerID: "c10", StatusID: StatusPending, Amount: 1})

	store := NewStore(mock, "orders")

	if err := store.UpdateStatus(context.Background(), "order-10", StatusPending, StatusProcessing); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	err := store.UpdateStatus(context.Background(), "order-10", StatusPending, StatusShipped)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestCancel_PendingAndProcessing(t *testing.T) {
	mock := newMockDynamo()
	seedOrder(mock, "orders", Order{OrderID: "o-pend", OwnerID: "c1", StatusID: StatusPending})
	seedOrder(mock, "orders", Order{OrderID: "o-proc", OwnerID: "c1", StatusID: StatusProcessing})

	store := NewStore(mock, "orders")

	for _, id := range []string{"o-pend", "o-proc"} {
		o, err := store.Cancel(context.Background(), "c1", id)
		if err != nil {
			t.Fatalf("cancel %s: %v", id, err)
		}
		if o.StatusID != StatusCancelled {
			t.Fatalf("expected Cancelled, got %v", o.StatusID)
		}
	}
}

func TestCancel_RejectsFinalStatuses(t *testing.T) {
	mock := newMockDynamo()
	for id, st := range map[string]Status{
		"o-ship": StatusShipped, "o-del": StatusDelivered, "o-canc": StatusCancelled,
	} {
		seedOrder(mock, "orders", Order{OrderID: id, OwnerID: "c1", StatusID: st})
	}

	store := NewStore(mock, "orders")
	for _, id := range []string{"o-ship", "o-del", "o-canc"} {
		_, err := store.Cancel(context.Background(), "c1", id)
		if !errors.Is(err, ErrNotCancellable) {
			t.Fatalf("cancel %s: expected ErrNotCancellable, got %v", id, err)
		}
	}
}

func TestCancel_OwnershipChecks(t *testing.T) {
	mock := newMockDynamo()
	seedOrder(mock, "orders", Order{OrderID: "o-1", OwnerID: "owner-a", StatusID: StatusPending})

	store := NewStore(mock, "orders")

	if _, err := store.Cancel(context.Background(), "owner-b", "o-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := store.Cancel(context.Background(), "owner-a", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByOwner(t *testing.T) {
	mock := newMockDynamo()
	seedOrder(mock, "orders", Order{OrderID: "o-1", OwnerID: "c1", StatusID: StatusPending})
	seedOrder(mock, "orders", Order{OrderID: "o-2", OwnerID: "c1", StatusID: StatusDelivered})
	seedOrder(mock, "orders", Order{OrderID: "o-3", OwnerID: "c2", StatusID: StatusPending})

	store := NewStore(mock, "orders")
	got, err := store.ListByOwner(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(got))
	}
	for _, o := range got {
		if o.OwnerID != "c1" {
			t.Fatalf("foreign order leaked: %+v", o)
		}
	}
}
