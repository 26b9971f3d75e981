// Package profile persists customer profiles and their avatar images.
package profile

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aromabay/storefront/internal/aws"
)

// Customer is the profile row.
type Customer struct {
	UserID           string    `dynamodbav:"user_id" json:"user_id"` // PK
	Email            string    `dynamodbav:"email" json:"email"`
	FullName         string    `dynamodbav:"full_name,omitempty" json:"full_name,omitempty"`
	Phone            string    `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	AvatarURL        string    `dynamodbav:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	DefaultAddressID string    `dynamodbav:"default_address_id,omitempty" json:"default_address_id,omitempty"`
	CreatedAt        time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt        time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Store encapsulates the profiles table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Get fetches a profile. Returns (nil, nil) when missing.
func (s *Store) Get(ctx context.Context, userID string) (*Customer, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Customer
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &c, nil
}

// Save writes the profile row, stamping timestamps.
func (s *Store) Save(ctx context.Context, c Customer) (*Customer, error) {
	now := s.nowFunc()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("put profile: %w", err)
	}
	return &c, nil
}

// SetAvatarURL updates only the avatar pointer.
func (s *Store) SetAvatarURL(ctx context.Context, userID, url string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: awsString("SET avatar_url = :u, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":  &types.AttributeValueMemberS{Value: url},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

// AvatarStorage keeps avatar blobs on S3 under avatars/<user id><ext>.
type AvatarStorage struct {
	client    aws.S3API
	bucket    string
	publicURL string // e.g. https://cdn.example.com or the bucket website endpoint
}

func NewAvatarStorage(client aws.S3API, bucket, publicURL string) *AvatarStorage {
	return &AvatarStorage{client: client, bucket: bucket, publicURL: publicURL}
}

func (a *AvatarStorage) objectKey(userID, filename string) string {
	return "avatars/" + userID + path.Ext(filename)
}

// Upload stores the blob and returns its public URL.
func (a *AvatarStorage) Upload(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	key := a.objectKey(userID, filename)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(a.bucket),
		Key:         sdkaws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: sdkaws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put avatar: %w", err)
	}
	return a.publicURL + "/" + key, nil
}

// keyFromURL recovers the object key from a URL this storage issued,
// ignoring any query string appended downstream (cache busting).
func (a *AvatarStorage) keyFromURL(avatarURL string) string {
	key := strings.TrimPrefix(avatarURL, a.publicURL+"/")
	if i := strings.IndexByte(key, '?'); i >= 0 {
		key = key[:i]
	}
	return key
}

// Remove deletes the blob behind a URL returned by Upload.
func (a *AvatarStorage) Remove(ctx context.Context, avatarURL string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: sdkaws.String(a.bucket),
		Key:    sdkaws.String(a.keyFromURL(avatarURL)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete avatar: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
