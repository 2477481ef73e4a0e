package dto

import (
	"treasury-backend/internal/models"
)

// SignAuthorizationRequest request body for POST /api/authorizations/sign
type SignAuthorizationRequest struct {
	ChainID int64  `json:"chain_id" binding:"required"`
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Value   string `json:"value" binding:"required"` // wei, decimal string
}

// ValidateAuthorizationRequest request body for POST /api/authorizations/validate
type ValidateAuthorizationRequest struct {
	Authorization models.TransferAuthorization `json:"authorization" binding:"required"`
	Signature     string                       `json:"signature" binding:"required"` // 0x hex, 65 bytes
}

// CreateWalletRequest request body for POST /api/multisig/wallets
type CreateWalletRequest struct {
	Name      string   `json:"name"`
	ChainID   int64    `json:"chain_id" binding:"required"`
	Signers   []string `json:"signers" binding:"required"`
	Threshold int      `json:"threshold" binding:"required"`
}

// ProposeRequest request body for POST /api/multisig/transactions
type ProposeRequest struct {
	WalletID string `json:"wallet_id" binding:"required"`
	Target   string `json:"target" binding:"required"`
	Value    string `json:"value" binding:"required"` // wei, decimal string
	Payload  string `json:"payload"`                  // calldata, hex
}

// ConfirmRequest request body for POST /api/multisig/transactions/:transactionId/confirm
type ConfirmRequest struct {
	Signer string `json:"signer" binding:"required"`
	Proof  string `json:"proof"`
}

// PredictAddressRequest request body for POST /api/multisig/predict-address
type PredictAddressRequest struct {
	ChainID     int64  `json:"chain_id" binding:"required"`
	Initializer string `json:"initializer" binding:"required"` // hex
	SaltNonce   uint64 `json:"salt_nonce"`
	InitCode    string `json:"init_code" binding:"required"` // hex
}

// RegisterDependencyRequest request body for POST /api/dependencies
type RegisterDependencyRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	DependsOn     string `json:"depends_on" binding:"required"`
}

// AcquireLockRequest request body for POST /api/locks
type AcquireLockRequest struct {
	Parameters map[string]string `json:"parameters" binding:"required"`
	TTLSeconds int               `json:"ttl_seconds"`
}

// ConsumeLockRequest request body for POST /api/locks/:lockId/consume
type ConsumeLockRequest struct {
	Parameters map[string]string `json:"parameters" binding:"required"`
}

// RecordStepRequest request body for POST /api/callchains/:operationId/steps
type RecordStepRequest struct {
	Step    string `json:"step" binding:"required"`
	Outcome string `json:"outcome" binding:"required"` // success | failure
}
