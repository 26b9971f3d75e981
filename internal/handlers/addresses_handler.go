package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aromabay/storefront/internal/addresses"
	"github.com/aromabay/storefront/internal/forms"
)

// AddressRequest is the create/update payload for a shipping address.
type AddressRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Street   string `json:"street" validate:"required"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	City     string `json:"city" validate:"required"`
	Label    string `json:"label"`
}

// RegisterAddressRoutes mounts the address book endpoints. All of them
// require a signed-in customer.
func RegisterAddressRoutes(r *gin.Engine, cfg Config) {
	store := addresses.NewStore(cfg.DynamoDBClient, cfg.AddressesTable, cfg.CustomersTable)

	r.GET("/addresses", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		list, err := store.ListByOwner(c.Request.Context(), owner)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"addresses": list})
	})

	r.POST("/addresses", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		var req AddressRequest
		if err := BindAndValidate(c, &req); err != nil {
			return
		}
		if !forms.ValidPhone(req.Phone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_phone"})
			return
		}

		created, err := store.Create(c.Request.Context(), addresses.Address{
			AddressID: uuid.NewString(),
			OwnerID:   owner,
			FullName:  req.FullName,
			Phone:     req.Phone,
			Street:    req.Street,
			Ward:      req.Ward,
			District:  req.District,
			City:      req.City,
			Label:     req.Label,
		})
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	r.PUT("/addresses/:id", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		var req AddressRequest
		if err := BindAndValidate(c, &req); err != nil {
			return
		}
		if !forms.ValidPhone(req.Phone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_phone"})
			return
		}

		updated, err := store.Update(c.Request.Context(), owner, addresses.Address{
			AddressID: c.Param("id"),
			FullName:  req.FullName,
			Phone:     req.Phone,
			Street:    req.Street,
			Ward:      req.Ward,
			District:  req.District,
			City:      req.City,
			Label:     req.Label,
		})
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	r.DELETE("/addresses/:id", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		if err := store.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/addresses/:id/default", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		if err := store.SetDefault(c.Request.Context(), owner, c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"default_address_id": c.Param("id")})
	})
}
