package addresses

import "time"

// Address is a customer shipping address. Within one owner's collection
// exactly one address carries is_default whenever the owner has any.
type Address struct {
	AddressID string    `dynamodbav:"address_id" json:"address_id"` // PK
	OwnerID   string    `dynamodbav:"owner_id" json:"owner_id"`     // GSI PK
	FullName  string    `dynamodbav:"full_name" json:"full_name"`
	Phone     string    `dynamodbav:"phone" json:"phone"`
	Street    string    `dynamodbav:"street" json:"street"`
	Ward      string    `dynamodbav:"ward,omitempty" json:"ward,omitempty"`
	District  string    `dynamodbav:"district,omitempty" json:"district,omitempty"`
	City      string    `dynamodbav:"city" json:"city"`
	Label     string    `dynamodbav:"label,omitempty" json:"label,omitempty"`
	IsDefault bool      `dynamodbav:"is_default" json:"is_default"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updated_at"`
}
