package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aromabay/storefront/internal/aws"
)

// OwnerIndex is the GSI listing a customer's orders.
const OwnerIndex = "owner_id-index"

var (
	ErrNotFound       = errors.New("order not found")
	ErrForbidden      = errors.New("order belongs to another customer")
	ErrNotCancellable = errors.New("order status does not allow cancellation")
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// CreateWithSubmissionTransaction atomically creates:
//   - the checkout submission record (ConditionExpression attribute_not_exists(submission_key))
//   - the order record in the orders table
//
// submissionItem must serialize with a submission_key attribute present;
// order.OrderID must be set by the caller.
func (s *Store) CreateWithSubmissionTransaction(ctx context.Context, submissionTable string, submissionItem interface{}, order Order, ttlWindow time.Duration) error {
	submMap, err := attributevalue.MarshalMap(submissionItem)
	if err != nil {
		return fmt.Errorf("marshal submission item: %w", err)
	}
	if _, ok := submMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		submMap["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.StatusID == 0 {
		order.StatusID = StatusPending
	}

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &submissionTable,
				Item:                submMap,
				ConditionExpression: awsString("attribute_not_exists(submission_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName: &s.tableName,
				Item:      orderMap,
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely submission key exists): %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetOwned fetches an order and verifies it belongs to ownerID.
// A missing order and a foreign order are distinguishable to callers but
// both map to not_found at the API edge.
func (s *Store) GetOwned(ctx context.Context, ownerID, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	if o.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListByOwner queries the owner GSI, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(OwnerIndex),
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
		ScanIndexForward: awsBool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	orders := make([]Order, 0, len(out.Items))
	for _, item := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// UpdateStatus conditionally moves the order from expected -> newStatus.
// Returns ErrStatusMismatch when the stored status is not expected.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, newStatus Status) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberN{Value: strconv.Itoa(int(newStatus))},
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(int(expected))},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Cancel transitions an owned order to Cancelled. Only Pending and
// Processing orders are cancellable; anything else fails with
// ErrNotCancellable before any write happens.
func (s *Store) Cancel(ctx context.Context, ownerID, orderID string) (*Order, error) {
	o, err := s.GetOwned(ctx, ownerID, orderID)
	if err != nil {
		return nil, err
	}
	if !o.StatusID.Cancellable() {
		return nil, ErrNotCancellable
	}
	if err := s.UpdateStatus(ctx, orderID, o.StatusID, StatusCancelled); err != nil {
		return nil, err
	}
	o.StatusID = StatusCancelled
	o.UpdatedAt = s.nowFunc()
	return o, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
