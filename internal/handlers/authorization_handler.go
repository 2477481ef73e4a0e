package handlers

import (
	"math/big"
	"net/http"

	"treasury-backend/internal/dto"
	"treasury-backend/internal/services"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// AuthorizationHandler exposes the transfer authorization codec
type AuthorizationHandler struct {
	service *services.AuthorizationService
}

// NewAuthorizationHandler creates the authorization handler
func NewAuthorizationHandler(service *services.AuthorizationService) *AuthorizationHandler {
	return &AuthorizationHandler{service: service}
}

// SignAuthorization builds and signs a transfer authorization
// POST /api/authorizations/sign
func (h *AuthorizationHandler) SignAuthorization(c *gin.Context) {
	var req dto.SignAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "value must be a decimal wei string",
			"code":    "BAD_REQUEST",
		})
		return
	}

	auth, signature, err := h.service.Sign(c.Request.Context(), req.ChainID, req.From, req.To, value)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"authorization": auth,
			"signature":     hexutil.Encode(signature),
		},
	})
}

// ValidateAuthorization validates an authorization and consumes its nonce.
// The response carries window_suspicious so callers cannot silently accept
// an unusually long validity window.
// POST /api/authorizations/validate
func (h *AuthorizationHandler) ValidateAuthorization(c *gin.Context) {
	var req dto.ValidateAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.service.Validate(c.Request.Context(), &req.Authorization, signature); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"valid":             true,
			"window_suspicious": h.service.WindowSuspicious(&req.Authorization),
		},
	})
}
