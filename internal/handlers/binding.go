package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// BindAndValidate binds the JSON body into req and runs struct
// validation. On failure it writes a 400 with per-field messages and
// returns a non-nil error so the handler can bail out.
func BindAndValidate(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_data", "detail": err.Error()})
		return err
	}
	if err := validate.Struct(req); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = "failed " + fe.Tag() + " validation"
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_data", "fields": fields})
		return err
	}
	return nil
}
