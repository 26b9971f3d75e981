package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aromabay/storefront/internal/wishlist"
)

// ToggleWishlistRequest names the product to add or remove.
type ToggleWishlistRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// RegisterWishlistRoutes mounts the wishlist endpoints.
func RegisterWishlistRoutes(r *gin.Engine, cfg Config) {
	store := wishlist.NewStore(cfg.DynamoDBClient, cfg.WishlistTable)

	r.GET("/wishlist", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		items, err := store.List(c.Request.Context(), owner)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	})

	r.POST("/wishlist/toggle", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		var req ToggleWishlistRequest
		if err := BindAndValidate(c, &req); err != nil {
			return
		}
		on, err := store.Toggle(c.Request.Context(), owner, req.ProductID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"product_id": req.ProductID, "in_wishlist": on})
	})
}
