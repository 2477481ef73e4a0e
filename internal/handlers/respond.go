package handlers

import (
	"errors"
	"net/http"

	"treasury-backend/internal/errs"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// respondError maps a service error onto the standard response envelope
func respondError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Not found",
			"code":    "NOT_FOUND",
		})
		return
	}
	c.JSON(errs.HTTPStatus(err), gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    errs.Code(err),
	})
}

// respondBadRequest reports a malformed request body or parameter
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    "BAD_REQUEST",
	})
}
