package handlers

import (
	"net/http"
	"time"

	"treasury-backend/internal/dto"
	"treasury-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// LockHandler exposes the exactly-once transaction lock
type LockHandler struct {
	service *services.LockService
}

// NewLockHandler creates the lock handler
func NewLockHandler(service *services.LockService) *LockHandler {
	return &LockHandler{service: service}
}

// Acquire creates a lock over validated transfer parameters
// POST /api/locks
func (h *LockHandler) Acquire(c *gin.Context) {
	var req dto.AcquireLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	ownerID := c.GetString("session_id")
	lock, err := h.service.Acquire(c.Request.Context(), ownerID, req.Parameters,
		time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    lock,
	})
}

// Consume spends the lock if the presented parameters still match
// POST /api/locks/:lockId/consume
func (h *LockHandler) Consume(c *gin.Context) {
	var req dto.ConsumeLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.service.Consume(c.Request.Context(), c.Param("lockId"), req.Parameters); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
