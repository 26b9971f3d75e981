package addresses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aromabay/storefront/internal/aws"
)

// OwnerIndex is the GSI listing a customer's addresses.
const OwnerIndex = "owner_id-index"

var (
	ErrNotFound  = errors.New("address not found")
	ErrForbidden = errors.New("address belongs to another customer")
)

// Store encapsulates operations on the addresses table and the profile
// table's default-address pointer.
type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	profileTable string
	nowFunc      func() time.Time
}

// NewStore creates a new addresses Store. profileTable holds the customer
// profile rows whose default_address_id pointer is kept in
// step with the addresses themselves.
func NewStore(client aws.DynamoDBAPI, tableName, profileTable string) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		profileTable: profileTable,
		nowFunc:      time.Now,
	}
}

// ListByOwner queries the owner GSI.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Address, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(OwnerIndex),
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	addrs := make([]Address, 0, len(out.Items))
	for _, item := range out.Items {
		var a Address
		if err := attributevalue.UnmarshalMap(item, &a); err != nil {
			return nil, fmt.Errorf("unmarshal address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// Get fetches an address by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, addressID string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"address_id": &types.AttributeValueMemberS{Value: addressID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	return &a, nil
}

// GetOwned fetches an address and verifies ownership.
func (s *Store) GetOwned(ctx context.Context, ownerID, addressID string) (*Address, error) {
	a, err := s.Get(ctx, addressID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return a, nil
}

// Create persists a new address. The owner's first address becomes the
// default and updates the profile pointer in the same transaction.
func (s *Store) Create(ctx context.Context, a Address) (*Address, error) {
	existing, err := s.ListByOwner(ctx, a.OwnerID)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.IsDefault = len(existing) == 0

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}

	if !a.IsDefault {
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName: &s.tableName,
			Item:      item,
		})
		if err != nil {
			return nil, fmt.Errorf("put address: %w", err)
		}
		return &a, nil
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: &s.tableName, Item: item}},
			s.profilePointerUpdate(a.OwnerID, a.AddressID, now),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put first address: %w", err)
	}
	return &a, nil
}

// Update rewrites the mutable fields of an owned address. The default flag
// is managed only through SetDefault.
func (s *Store) Update(ctx context.Context, ownerID string, a Address) (*Address, error) {
	current, err := s.GetOwned(ctx, ownerID, a.AddressID)
	if err != nil {
		return nil, err
	}
	a.OwnerID = current.OwnerID
	a.IsDefault = current.IsDefault
	a.CreatedAt = current.CreatedAt
	a.UpdatedAt = s.nowFunc()

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("put address: %w", err)
	}
	return &a, nil
}

// Delete removes an owned address. Deleting the default promotes the most
// recently updated survivor so the collection never loses its single
// default while it still has members.
func (s *Store) Delete(ctx context.Context, ownerID, addressID string) error {
	target, err := s.GetOwned(ctx, ownerID, addressID)
	if err != nil {
		return err
	}

	if !target.IsDefault {
		_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"address_id": &types.AttributeValueMemberS{Value: addressID},
			},
		})
		if err != nil {
			return fmt.Errorf("delete address: %w", err)
		}
		return nil
	}

	all, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	var successor *Address
	for i := range all {
		a := &all[i]
		if a.AddressID == addressID {
			continue
		}
		if successor == nil || a.UpdatedAt.After(successor.UpdatedAt) {
			successor = a
		}
	}

	now := s.nowFunc()
	items := []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"address_id": &types.AttributeValueMemberS{Value: addressID},
			},
		}},
	}
	if successor != nil {
		items = append(items, s.defaultFlagUpdate(successor.AddressID, true, now))
		items = append(items, s.profilePointerUpdate(ownerID, successor.AddressID, now))
	} else {
		items = append(items, s.profilePointerUpdate(ownerID, "", now))
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("delete default address: %w", err)
	}
	return nil
}

// SetDefault makes the target address the owner's single default. The
// ownership check fails with ErrNotFound/ErrForbidden; a target that is
// already default short-circuits with zero writes. Otherwise one
// transaction clears every defaulted sibling, sets the target, and moves
// the profile pointer, so no reader ever observes two defaults.
func (s *Store) SetDefault(ctx context.Context, ownerID, addressID string) error {
	target, err := s.GetOwned(ctx, ownerID, addressID)
	if err != nil {
		return err
	}
	if target.IsDefault {
		return nil
	}

	all, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	now := s.nowFunc()
	var items []types.TransactWriteItem
	for _, a := range all {
		if a.IsDefault && a.AddressID != addressID {
			items = append(items, s.defaultFlagUpdate(a.AddressID, false, now))
		}
	}
	items = append(items, s.defaultFlagUpdate(addressID, true, now))
	items = append(items, s.profilePointerUpdate(ownerID, addressID, now))

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

func (s *Store) defaultFlagUpdate(addressID string, isDefault bool, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"address_id": &types.AttributeValueMemberS{Value: addressID},
			},
			UpdateExpression: awsString("SET is_default = :d, updated_at = :ua"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d":  &types.AttributeValueMemberBOOL{Value: isDefault},
				":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			},
		},
	}
}

func (s *Store) profilePointerUpdate(ownerID, addressID string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.profileTable,
			Key: map[string]types.AttributeValue{
				"user_id": &types.AttributeValueMemberS{Value: ownerID},
			},
			UpdateExpression: awsString("SET default_address_id = :a, updated_at = :ua"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":a":  &types.AttributeValueMemberS{Value: addressID},
				":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			},
		},
	}
}

func awsString(s string) *string { return &s }
