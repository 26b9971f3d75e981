package profile

import (
	"context"
	"io"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func pk(item map[string]types.AttributeValue) string {
	return item["user_id"].(*types.AttributeValueMemberS).Value
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.items[pk(in.Item)] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	item, ok := m.items[pk(in.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	item, ok := m.items[pk(in.Key)]
	if !ok {
		item = map[string]types.AttributeValue{"user_id": in.Key["user_id"]}
		m.items[pk(in.Key)] = item
	}
	item["avatar_url"] = in.ExpressionAttributeValues[":u"]
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	delete(m.items, pk(in.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return &dyn.QueryOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return &dyn.TransactWriteItemsOutput{}, nil
}

type mockS3 struct {
	objects map[string][]byte
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestSaveAndGetProfile(t *testing.T) {
	store := NewStore(newMockDynamo(), "customers")

	saved, err := store.Save(context.Background(), Customer{
		UserID:   "user-1",
		Email:    "a@example.com",
		FullName: "Nguyen Van A",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be stamped")
	}

	got, err := store.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Email != "a@example.com" {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestGetMissingProfile(t *testing.T) {
	store := NewStore(newMockDynamo(), "customers")
	got, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing profile, got %+v", got)
	}
}

func TestSetAvatarURL(t *testing.T) {
	db := newMockDynamo()
	store := NewStore(db, "customers")
	if _, err := store.Save(context.Background(), Customer{UserID: "user-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.SetAvatarURL(context.Background(), "user-1", "https://cdn.test/avatars/user-1.png"); err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	got, err := store.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AvatarURL != "https://cdn.test/avatars/user-1.png" {
		t.Fatalf("avatar url not updated: %q", got.AvatarURL)
	}
}

func TestAvatarUploadAndRemove(t *testing.T) {
	s3mock := &mockS3{}
	storage := NewAvatarStorage(s3mock, "avatars-bucket", "https://cdn.test")

	url, err := storage.Upload(context.Background(), "user-1", "me.png", "image/png", []byte("pngdata"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.test/avatars/user-1.png" {
		t.Fatalf("unexpected url %q", url)
	}
	if string(s3mock.objects["avatars/user-1.png"]) != "pngdata" {
		t.Fatal("object not stored")
	}

	if err := storage.Remove(context.Background(), url); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s3mock.objects["avatars/user-1.png"]; ok {
		t.Fatal("object not removed")
	}
}

func TestAvatarRemoveIgnoresQueryString(t *testing.T) {
	s3mock := &mockS3{}
	storage := NewAvatarStorage(s3mock, "avatars-bucket", "https://cdn.test")

	url, err := storage.Upload(context.Background(), "user-1", "me.png", "image/png", []byte("pngdata"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := storage.Remove(context.Background(), url+"?v=2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s3mock.objects["avatars/user-1.png"]; ok {
		t.Fatal("object not removed")
	}
}
