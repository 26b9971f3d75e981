package orders

import "time"

// Status ids follow the storefront's order_status lookup table.
type Status int

const (
	StatusPending    Status = 1
	StatusProcessing Status = 2
	StatusShipped    Status = 3
	StatusDelivered  Status = 4
	StatusCancelled  Status = 5
)

var statusLabels = map[Status]string{
	StatusPending:    "Pending",
	StatusProcessing: "Processing",
	StatusShipped:    "Shipped",
	StatusDelivered:  "Delivered",
	StatusCancelled:  "Cancelled",
}

func (s Status) String() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return "Unknown"
}

// Cancellable reports whether a customer may still cancel an order in
// this status. Shipped and later states are final for self-service.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// OrderItem is one purchased line.
type OrderItem struct {
	ProductID string  `dynamodbav:"product_id" json:"product_id"`
	Name      string  `dynamodbav:"name" json:"name"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	Price     float64 `dynamodbav:"price" json:"price"`
}

// Order is the item stored in the orders table.
type Order struct {
	OrderID       string      `dynamodbav:"order_id" json:"order_id"` // PK
	OwnerID       string      `dynamodbav:"owner_id" json:"owner_id"` // customer reference, GSI PK
	StatusID      Status      `dynamodbav:"status_id" json:"status_id"`
	Amount        float64     `dynamodbav:"amount" json:"amount"`
	Items         []OrderItem `dynamodbav:"items,omitempty" json:"items,omitempty"`
	AddressID     string      `dynamodbav:"address_id,omitempty" json:"address_id,omitempty"`
	PaymentMethod string      `dynamodbav:"payment_method,omitempty" json:"payment_method,omitempty"`
	GuestEmail    string      `dynamodbav:"guest_email,omitempty" json:"guest_email,omitempty"`
	CreatedAt     time.Time   `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `dynamodbav:"updated_at" json:"updated_at"`
}
