package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aromabay/storefront/internal/aws"
	"github.com/aromabay/storefront/internal/idempotency"
	"github.com/aromabay/storefront/internal/identity"
	"github.com/aromabay/storefront/internal/orders"
	"github.com/aromabay/storefront/internal/storefront"
)

// OrderItemRequest is one cart line in a checkout submission.
type OrderItemRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity" validate:"required,gte=1"`
	Price     float64 `json:"price" validate:"required,gte=0"`
}

// PlaceOrderRequest carries the cart plus the checkout form data the
// flow accumulated client-side. The form fields are re-validated here.
type PlaceOrderRequest struct {
	Items    []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	FormData map[string]any     `json:"form_data" validate:"required"`
}

// RegisterOrderRoutes mounts checkout submission and order history.
func RegisterOrderRoutes(r *gin.Engine, cfg Config) {
	ordersStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)
	submissions := idempotency.NewStore(cfg.DynamoDBClient, cfg.SubmissionsTable, cfg.TTLWindow)
	publisher := aws.NewPublisher(cfg.SQSClient, cfg.QueueURL)

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req PlaceOrderRequest
		if err := BindAndValidate(c, &req); err != nil {
			return
		}

		submissionKey := c.GetHeader("Idempotency-Key")
		if submissionKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		var session identity.Session = identity.Guest
		if id, ok := identity.CurrentUserID(c); ok {
			session = identity.StaticSession(id)
		}

		ctrl, err := storefront.NewCheckoutController(session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			return
		}
		ctrl.UpdateFormData(req.FormData)

		items := make([]orders.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, orders.OrderItem{
				ProductID: it.ProductID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				Price:     it.Price,
			})
		}

		co := &storefront.Checkout{
			Session:         session,
			Orders:          ordersStore,
			Submissions:     submissions,
			SubmissionTable: cfg.SubmissionsTable,
			Publisher:       publisher,
		}

		res, err := co.Submit(ctx, ctrl, items, submissionKey)
		if err != nil {
			var verr *storefront.ValidationError
			switch {
			case errors.As(err, &verr):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_data", "fields": verr.Fields})
			case errors.Is(err, storefront.ErrSubmissionInProgress):
				c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
			case errors.Is(err, storefront.ErrPreviousAttemptFailed):
				c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed"})
			default:
				writeStoreError(c, err)
			}
			return
		}

		if res.Replayed {
			c.Data(res.ResponseStatus, "application/json", []byte(res.ResponseBody))
			return
		}
		c.Header("Location", "/orders/"+res.Order.OrderID)
		c.Data(res.ResponseStatus, "application/json", []byte(res.ResponseBody))
	})

	r.GET("/orders", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		list, err := ordersStore.ListByOwner(c.Request.Context(), owner)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		o, err := ordersStore.GetOwned(c.Request.Context(), owner, c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.POST("/orders/:id/cancel", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		o, err := ordersStore.Cancel(c.Request.Context(), owner, c.Param("id"))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		// The cancel is already durable; the event is best effort.
		_ = publisher.PublishOrderEvent(c.Request.Context(), aws.OrderEvent{
			Kind:    aws.EventOrderCancelled,
			OrderID: o.OrderID,
			OwnerID: owner,
		})
		c.JSON(http.StatusOK, o)
	})
}
