package handlers

import (
	"io"
	"net/http"

	"treasury-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// PaymentHandler proxies fetches of paywalled resources through the
// 402-aware retry client. The paying wallet is the one bound to the
// caller's session.
type PaymentHandler struct {
	service *services.PaymentRetryService
}

// NewPaymentHandler creates the payment handler
func NewPaymentHandler(service *services.PaymentRetryService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Fetch requests a paywalled resource, paying at most once
// POST /api/payments/fetch
func (h *PaymentHandler) Fetch(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	from := c.GetString("wallet_address")
	resp, err := h.service.Fetch(c.Request.Context(), from, req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"status":       resp.StatusCode,
			"content_type": resp.Header.Get("Content-Type"),
			"body":         string(body),
		},
	})
}
