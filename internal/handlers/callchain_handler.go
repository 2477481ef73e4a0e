package handlers

import (
	"net/http"

	"treasury-backend/internal/dto"
	"treasury-backend/internal/models"
	"treasury-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// CallChainHandler exposes the required-step validator
type CallChainHandler struct {
	service *services.CallChainService
}

// NewCallChainHandler creates the call chain handler
func NewCallChainHandler(service *services.CallChainService) *CallChainHandler {
	return &CallChainHandler{service: service}
}

// RecordStep appends a step outcome to an operation's log
// POST /api/callchains/:operationId/steps
func (h *CallChainHandler) RecordStep(c *gin.Context) {
	var req dto.RecordStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	outcome := models.CallChainOutcome(req.Outcome)
	if outcome != models.CallChainOutcomeSuccess && outcome != models.CallChainOutcomeFailure {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "outcome must be success or failure",
			"code":    "BAD_REQUEST",
		})
		return
	}

	if err := h.service.RecordStep(c.Request.Context(), c.Param("operationId"), req.Step, outcome); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
	})
}

// Validate checks an operation's recorded steps against its declared chain
// GET /api/callchains/:operationId/validate?type=executePayment
func (h *CallChainHandler) Validate(c *gin.Context) {
	opType := c.Query("type")
	if opType == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "type query parameter is required",
			"code":    "BAD_REQUEST",
		})
		return
	}

	report, err := h.service.Validate(c.Request.Context(), c.Param("operationId"), opType)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"valid":        report.Valid(),
			"missing":      report.Missing,
			"out_of_order": report.OutOfOrder,
		},
	})
}
