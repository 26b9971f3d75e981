package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aromabay/storefront/internal/forms"
	"github.com/aromabay/storefront/internal/profile"
)

// UpdateProfileRequest carries editable customer fields.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone"`
}

const maxAvatarBytes = 2 << 20

// RegisterProfileRoutes mounts the customer profile endpoints,
// including avatar upload to object storage.
func RegisterProfileRoutes(r *gin.Engine, cfg Config) {
	store := profile.NewStore(cfg.DynamoDBClient, cfg.CustomersTable)
	avatars := profile.NewAvatarStorage(cfg.S3Client, cfg.AvatarBucket, cfg.AvatarBaseURL)

	r.GET("/me", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		cust, err := store.Get(c.Request.Context(), owner)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if cust == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, cust)
	})

	r.PUT("/me", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		var req UpdateProfileRequest
		if err := BindAndValidate(c, &req); err != nil {
			return
		}
		if req.Phone != "" && !forms.ValidPhone(req.Phone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_phone"})
			return
		}

		current, err := store.Get(c.Request.Context(), owner)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		next := profile.Customer{UserID: owner}
		if current != nil {
			next = *current
		}
		next.FullName = req.FullName
		next.Phone = req.Phone

		saved, err := store.Save(c.Request.Context(), next)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	})

	r.POST("/me/avatar", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		file, header, err := c.Request.FormFile("avatar")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_data", "detail": "avatar file required"})
			return
		}
		defer file.Close()

		if header.Size > maxAvatarBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" && ext != ".webp" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_file_type"})
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			return
		}

		url, err := avatars.Upload(c.Request.Context(), owner, header.Filename, header.Header.Get("Content-Type"), data)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if err := store.SetAvatarURL(c.Request.Context(), owner, url); err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"avatar_url": url})
	})

	r.DELETE("/me/avatar", func(c *gin.Context) {
		owner, ok := requireUser(c)
		if !ok {
			return
		}
		cust, err := store.Get(c.Request.Context(), owner)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if cust == nil || cust.AvatarURL == "" {
			c.Status(http.StatusNoContent)
			return
		}
		if err := avatars.Remove(c.Request.Context(), cust.AvatarURL); err != nil {
			writeStoreError(c, err)
			return
		}
		if err := store.SetAvatarURL(c.Request.Context(), owner, ""); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
