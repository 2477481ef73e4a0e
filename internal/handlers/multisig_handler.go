package handlers

import (
	"net/http"
	"strconv"

	"treasury-backend/internal/config"
	"treasury-backend/internal/dto"
	"treasury-backend/internal/services"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

// MultisigHandler exposes the N-of-M consensus lifecycle
type MultisigHandler struct {
	service *services.MultisigService
}

// NewMultisigHandler creates the multisig handler
func NewMultisigHandler(service *services.MultisigService) *MultisigHandler {
	return &MultisigHandler{service: service}
}

// CreateWallet registers an N-of-M wallet
// POST /api/multisig/wallets
func (h *MultisigHandler) CreateWallet(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	wallet, err := h.service.CreateWallet(c.Request.Context(), req.Name, req.ChainID, req.Signers, req.Threshold)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    wallet,
	})
}

// GetWallet returns a wallet with its signer set
// GET /api/multisig/wallets/:walletId
func (h *MultisigHandler) GetWallet(c *gin.Context) {
	wallet, err := h.service.GetWallet(c.Request.Context(), c.Param("walletId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    wallet,
	})
}

// Propose creates a pending transaction under the next sequence number
// POST /api/multisig/transactions
func (h *MultisigHandler) Propose(c *gin.Context) {
	var req dto.ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	transaction, err := h.service.Propose(c.Request.Context(), req.WalletID, req.Target, req.Value, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    transaction,
	})
}

// Confirm records one signer's approval
// POST /api/multisig/transactions/:transactionId/confirm
func (h *MultisigHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	confirmation, err := h.service.Confirm(c.Request.Context(), c.Param("transactionId"), req.Signer, req.Proof)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    confirmation,
	})
}

// Execute broadcasts a confirmed transaction
// POST /api/multisig/transactions/:transactionId/execute
func (h *MultisigHandler) Execute(c *gin.Context) {
	transaction, err := h.service.Execute(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    transaction,
	})
}

// Repropose retries a failed transaction under a new sequence number
// POST /api/multisig/transactions/:transactionId/repropose
func (h *MultisigHandler) Repropose(c *gin.Context) {
	transaction, err := h.service.Repropose(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    transaction,
	})
}

// ListTransactions returns a page of transactions
// GET /api/multisig/transactions
func (h *MultisigHandler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	transactions, total, err := h.service.ListTransactions(c.Request.Context(), page, pageSize,
		c.Query("wallet_id"), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    transactions,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
		},
	})
}

// GetTransaction returns a transaction with its confirmations
// GET /api/multisig/transactions/:transactionId
func (h *MultisigHandler) GetTransaction(c *gin.Context) {
	transaction, confirmations, err := h.service.GetTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"data":          transaction,
		"confirmations": confirmations,
	})
}

// GetSystemStatus returns transaction counts by status
// GET /api/multisig/status
func (h *MultisigHandler) GetSystemStatus(c *gin.Context) {
	status, err := h.service.SystemStatus(c.Request.Context(), c.Query("wallet_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}

// PredictAddress computes the CREATE2 address of an undeployed wallet and
// reports whether a wallet with the expected bytecode already sits there.
// The prediction is provisional until deployed=true.
// POST /api/multisig/predict-address
func (h *MultisigHandler) PredictAddress(c *gin.Context) {
	var req dto.PredictAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	network, ok := config.AppConfig.NetworkByChainID(req.ChainID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "no enabled network for chain",
			"code":    "BAD_REQUEST",
		})
		return
	}

	initializer, err := hexutil.Decode(req.Initializer)
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	initCode, err := hexutil.Decode(req.InitCode)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	address := services.PredictWalletAddress(network.WalletFactory, initializer, req.SaltNonce,
		crypto.Keccak256(initCode))
	deployed, err := h.service.VerifyDeployedWallet(c.Request.Context(), address, network.WalletRuntimeCodeHash)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"address":  address,
			"deployed": deployed,
		},
	})
}
