package handlers

import (
	"net/http"

	"treasury-backend/internal/dto"
	"treasury-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// DependencyHandler exposes the transaction dependency graph
type DependencyHandler struct {
	service *services.DependencyService
}

// NewDependencyHandler creates the dependency handler
func NewDependencyHandler(service *services.DependencyService) *DependencyHandler {
	return &DependencyHandler{service: service}
}

// Register declares a prerequisite edge
// POST /api/dependencies
func (h *DependencyHandler) Register(c *gin.Context) {
	var req dto.RegisterDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.service.Register(c.Request.Context(), req.TransactionID, req.DependsOn); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
	})
}

// List returns the declared prerequisites of a transaction
// GET /api/dependencies/:transactionId
func (h *DependencyHandler) List(c *gin.Context) {
	dependencies, err := h.service.Dependencies(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dependencies,
	})
}

// CanExecute re-checks every prerequisite's current status
// GET /api/dependencies/:transactionId/can-execute
func (h *DependencyHandler) CanExecute(c *gin.Context) {
	if err := h.service.CanExecute(c.Request.Context(), c.Param("transactionId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"can_execute": true,
		},
	})
}
