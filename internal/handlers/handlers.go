// Package handlers wires the HTTP API: account surfaces (profile,
// addresses, wishlist) and the checkout/order endpoints.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aromabay/storefront/internal/addresses"
	"github.com/aromabay/storefront/internal/aws"
	"github.com/aromabay/storefront/internal/identity"
	"github.com/aromabay/storefront/internal/orders"
)

// Config groups the dependencies and table names the handlers need.
type Config struct {
	DynamoDBClient   aws.DynamoDBAPI
	SQSClient        aws.SQSAPI
	S3Client         aws.S3API
	SubmissionsTable string
	OrdersTable      string
	AddressesTable   string
	WishlistTable    string
	CustomersTable   string
	QueueURL         string
	AvatarBucket     string
	AvatarBaseURL    string
	TTLWindow        time.Duration
}

// Register mounts all API routes on the engine.
func Register(r *gin.Engine, cfg Config) {
	r.Use(identity.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterProfileRoutes(r, cfg)
	RegisterAddressRoutes(r, cfg)
	RegisterOrderRoutes(r, cfg)
	RegisterWishlistRoutes(r, cfg)
}

// requireUser resolves the forwarded user id or writes a 401.
func requireUser(c *gin.Context) (string, bool) {
	id, ok := identity.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return id, true
}

// writeStoreError maps store sentinels to API errors.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, addresses.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, orders.ErrForbidden), errors.Is(err, addresses.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, orders.ErrNotCancellable), errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "detail": err.Error()})
	}
}
