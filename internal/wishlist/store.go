// Package wishlist persists per-customer wishlist membership. The key is
// composite (owner, product) so toggling is a single conditional write.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/aromabay/storefront/internal/aws"
)

// Item is one wishlisted product.
type Item struct {
	OwnerID   string    `dynamodbav:"owner_id" json:"owner_id"`     // PK
	ProductID string    `dynamodbav:"product_id" json:"product_id"` // SK
	AddedAt   time.Time `dynamodbav:"added_at" json:"added_at"`
}

// Store encapsulates the wishlist table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

func (s *Store) key(ownerID, productID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"owner_id":   &types.AttributeValueMemberS{Value: ownerID},
		"product_id": &types.AttributeValueMemberS{Value: productID},
	}
}

// List returns the owner's wishlist, newest first left to the caller.
func (s *Store) List(ctx context.Context, ownerID string) ([]Item, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query wishlist: %w", err)
	}
	items := make([]Item, 0, len(out.Items))
	for _, it := range out.Items {
		var item Item
		if err := attributevalue.UnmarshalMap(it, &item); err != nil {
			return nil, fmt.Errorf("unmarshal wishlist item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Contains reports current membership.
func (s *Store) Contains(ctx context.Context, ownerID, productID string) (bool, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(ownerID, productID),
	})
	if err != nil {
		return false, fmt.Errorf("get item: %w", err)
	}
	return len(out.Item) > 0, nil
}

// Toggle flips membership and returns the resulting state (true = now on
// the wishlist). Concurrent toggles settle on the conditional writes: the
// loser's condition fails and its outcome is re-derived.
func (s *Store) Toggle(ctx context.Context, ownerID, productID string) (bool, error) {
	item, err := attributevalue.MarshalMap(Item{
		OwnerID:   ownerID,
		ProductID: productID,
		AddedAt:   s.nowFunc(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(owner_id)"),
	})
	if err == nil {
		return true, nil
	}
	var ae smithy.APIError
	if !errors.As(err, &ae) || ae.ErrorCode() != "ConditionalCheckFailedException" {
		return false, fmt.Errorf("put item: %w", err)
	}

	// Already present: remove it.
	_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.key(ownerID, productID),
	})
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	return false, nil
}

func awsString(s string) *string { return &s }
