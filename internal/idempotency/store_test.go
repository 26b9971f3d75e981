package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a minimal in-memory stand-in for the submission table.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	updateCalls int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{table: map[string]map[string]types.AttributeValue{}}
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	keyAttr := params.Item["submission_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(submission_key)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keyAttr := params.Key["submission_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	item, ok := m.table[keyAttr.(*types.AttributeValueMemberS).Value]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	keyAttr := params.Key["submission_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	if v, ok := params.ExpressionAttributeValues[":done"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":failed"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rb"]; ok {
		item["response_body"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rs"]; ok {
		item["response_status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":n"]; ok {
		item["note"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	return &dyn.DeleteItemOutput{}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return &dyn.QueryOutput{}, nil
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return &dyn.TransactWriteItemsOutput{}, nil
}

func TestCreateIfNotExists_NewKey(t *testing.T) {
	mock := newSimpleMock()
	store := NewStore(mock, "submissions", 48*time.Hour)

	created, err := store.CreateIfNotExists(context.Background(), "key-1", "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for a new key")
	}

	rec, err := store.Get(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS record, got %+v", rec)
	}
	if rec.ExpiresAt == 0 {
		t.Fatal("expected TTL to be set")
	}
}

func TestCreateIfNotExists_DuplicateKey(t *testing.T) {
	mock := newSimpleMock()
	store := NewStore(mock, "submissions", 48*time.Hour)

	if _, err := store.CreateIfNotExists(context.Background(), "key-2", "order-2"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	created, err := store.CreateIfNotExists(context.Background(), "key-2", "order-2b")
	if err != nil {
		t.Fatalf("duplicate create should not error: %v", err)
	}
	if created {
		t.Fatal("expected created=false for an existing key")
	}
}

func TestGet_Missing(t *testing.T) {
	mock := newSimpleMock()
	store := NewStore(mock, "submissions", time.Hour)

	rec, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestMarkDone_StoresResponse(t *testing.T) {
	mock := newSimpleMock()
	store := NewStore(mock, "submissions", time.Hour)

	_, _ = store.CreateIfNotExists(context.Background(), "key-3", "order-3")
	if err := store.MarkDone(context.Background(), "key-3", `{"order_id":"order-3"}`, 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	rec, _ := store.Get(context.Background(), "key-3")
	if rec.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", rec.Status)
	}
	if rec.ResponseBody == "" || rec.ResponseStatus != 201 {
		t.Fatalf("response not stored: %+v", rec)
	}
}

func TestMarkFailed_StoresNote(t *testing.T) {
	mock := newSimpleMock()
	store := NewStore(mock, "submissions", time.Hour)

	_, _ = store.CreateIfNotExists(context.Background(), "key-4", "order-4")
	if err := store.MarkFailed(context.Background(), "key-4", "enqueue failed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rec, _ := store.Get(context.Background(), "key-4")
	if rec.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", rec.Status)
	}
	if rec.Note != "enqueue failed" {
		t.Fatalf("note not stored: %+v", rec)
	}
}
