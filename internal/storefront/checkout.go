package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aromabay/storefront/internal/aws"
	"github.com/aromabay/storefront/internal/cache"
	"github.com/aromabay/storefront/internal/flow"
	"github.com/aromabay/storefront/internal/forms"
	"github.com/aromabay/storefront/internal/idempotency"
	"github.com/aromabay/storefront/internal/identity"
	"github.com/aromabay/storefront/internal/mutation"
	"github.com/aromabay/storefront/internal/orders"
)

// Checkout submission outcomes beyond plain success.
var (
	ErrSubmissionInProgress  = errors.New("submission already in progress")
	ErrPreviousAttemptFailed = errors.New("previous submission attempt failed")
)

// ValidationError carries field-level messages from a rejected submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout data invalid (%d fields)", len(e.Fields))
}

// CheckoutSchema validates the data the checkout flow accumulates.
func CheckoutSchema() *forms.Schema {
	guest := func(data map[string]any) bool {
		auth, _ := data["authenticated"].(bool)
		return !auth
	}
	return forms.NewSchema(map[string]forms.Rule{
		"email":           {RequiredWhen: guest, Tag: "email"},
		"full_name":       {Required: true},
		"phone":           {Required: true, Tag: "vn_phone", Message: "invalid phone number"},
		"street":          {Required: true},
		"city":            {Required: true},
		"delivery_method": {Required: true, Tag: "oneof=delivery pickup"},
		"payment_method":  {Required: true, Tag: "oneof=cod card"},
		"card_number": {
			RequiredWhen: func(data map[string]any) bool {
				return data["payment_method"] == "card"
			},
			Tag: "credit_card",
		},
	})
}

// NewCheckoutController builds the checkout flow for a session: guest-info
// is skipped for signed-in customers.
func NewCheckoutController(session identity.Session) (*flow.Controller, error) {
	steps := []flow.Step{
		{
			ID:     "guest-info",
			Label:  "Contact",
			Fields: []string{"email"},
			SkipWhen: func(data map[string]any) bool {
				auth, _ := data["authenticated"].(bool)
				return auth
			},
		},
		{
			ID:     "address",
			Label:  "Shipping address",
			Fields: []string{"full_name", "phone", "street", "city", "delivery_method"},
		},
		{
			ID:     "payment",
			Label:  "Payment",
			Fields: []string{"payment_method", "card_number"},
		},
		{ID: "review", Label: "Review"},
	}

	ctrl, err := flow.NewController(steps, CheckoutSchema())
	if err != nil {
		return nil, err
	}
	_, authenticated := session.UserID()
	ctrl.UpdateFormData(map[string]any{"authenticated": authenticated})
	return ctrl, nil
}

// Checkout places orders with submission idempotency: the order row and
// the submission record are created in one transaction, and a duplicate
// submission key replays the stored response.
type Checkout struct {
	Session         identity.Session
	Cache           *cache.Layer
	Orders          *orders.Store
	Submissions     *idempotency.Store
	SubmissionTable string
	Publisher       *aws.Publisher
}

// SubmitResult reports a placed order, or the replayed response of an
// earlier submission with the same key.
type SubmitResult struct {
	Order          *orders.Order
	Replayed       bool
	ResponseBody   string
	ResponseStatus int
}

// Submit validates the accumulated flow data and places the order through
// the mutation lifecycle. An empty submission key gets a fresh one.
func (co *Checkout) Submit(ctx context.Context, ctrl *flow.Controller, items []orders.OrderItem, submissionKey string) (*SubmitResult, error) {
	if !ctrl.ValidateAll() {
		return nil, &ValidationError{Fields: ctrl.Errors()}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"items": "cart is empty"}}
	}
	if submissionKey == "" {
		submissionKey = uuid.NewString()
	}

	exec := &mutation.Executor[string, *SubmitResult]{
		Run: func(ctx context.Context, key string) (*SubmitResult, error) {
			return co.place(ctx, ctrl.FormData(), items, key)
		},
		OnMutate: func(ctx context.Context, key string) (any, error) {
			ctrl.SetSubmitting(true)
			return nil, nil
		},
		OnSuccess: func(ctx context.Context, res *SubmitResult, key string) {
			if co.Cache != nil && res.Order != nil {
				co.Cache.Invalidate(ctx, OrdersKey(res.Order.OwnerID))
			}
		},
		OnSettled: func(ctx context.Context, key string) {
			ctrl.SetSubmitting(false)
		},
	}
	return exec.Mutate(ctx, submissionKey)
}

func (co *Checkout) place(ctx context.Context, data map[string]any, items []orders.OrderItem, submissionKey string) (*SubmitResult, error) {
	owner, authenticated := co.Session.UserID()
	guestEmail := ""
	if !authenticated {
		guestEmail, _ = data["email"].(string)
		owner = "guest:" + guestEmail
	}

	orderID := uuid.NewString()
	now := time.Now().UTC()

	var amount float64
	for _, it := range items {
		amount += float64(it.Quantity) * it.Price
	}

	submission := map[string]interface{}{
		"submission_key": submissionKey,
		"status":         idempotency.StatusInProgress,
		"order_id":       orderID,
		"created_at":     now.Format(time.RFC3339),
		"updated_at":     now.Format(time.RFC3339),
	}

	order := orders.Order{
		OrderID:       orderID,
		OwnerID:       owner,
		StatusID:      orders.StatusPending,
		Amount:        amount,
		Items:         items,
		AddressID:     str(data["address_id"]),
		PaymentMethod: str(data["payment_method"]),
		GuestEmail:    guestEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := co.Orders.CreateWithSubmissionTransaction(ctx, co.SubmissionTable, submission, order, 48*time.Hour)
	if err != nil {
		// The transaction most likely lost to an earlier submission with
		// the same key; inspect the record and replay or report.
		rec, getErr := co.Submissions.Get(ctx, submissionKey)
		if getErr != nil {
			return nil, fmt.Errorf("submission check failed: %w", getErr)
		}
		if rec == nil {
			return nil, fmt.Errorf("place order: %w", err)
		}
		switch rec.Status {
		case idempotency.StatusDone:
			return &SubmitResult{
				Replayed:       true,
				ResponseBody:   rec.ResponseBody,
				ResponseStatus: rec.ResponseStatus,
			}, nil
		case idempotency.StatusInProgress:
			return nil, ErrSubmissionInProgress
		case idempotency.StatusFailed:
			return nil, ErrPreviousAttemptFailed
		default:
			return nil, fmt.Errorf("unknown submission status %q", rec.Status)
		}
	}

	// Records are in; hand the order to the fulfilment worker. A failed
	// enqueue marks the submission FAILED so the client can retry.
	if co.Publisher != nil {
		ev := aws.OrderEvent{
			Kind:           aws.EventOrderPlaced,
			OrderID:        orderID,
			OwnerID:        owner,
			IdempotencyKey: submissionKey,
		}
		if err := co.Publisher.PublishOrderEvent(ctx, ev); err != nil {
			_ = co.Submissions.MarkFailed(ctx, submissionKey, fmt.Sprintf("enqueue failed: %v", err))
			return nil, fmt.Errorf("enqueue order: %w", err)
		}
	}

	body, _ := json.Marshal(map[string]any{"order_id": orderID, "status_id": orders.StatusPending})
	_ = co.Submissions.MarkDone(ctx, submissionKey, string(body), http.StatusCreated)

	return &SubmitResult{
		Order:          &order,
		ResponseBody:   string(body),
		ResponseStatus: http.StatusCreated,
	}, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
