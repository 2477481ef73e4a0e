package models

import (
	"time"
)

// MultisigTransactionStatus multisig transaction lifecycle status
type MultisigTransactionStatus string

const (
	MultisigTransactionStatusPending   MultisigTransactionStatus = "pending"   // collecting confirmations
	MultisigTransactionStatusConfirmed MultisigTransactionStatus = "confirmed" // threshold reached
	MultisigTransactionStatusExecuting MultisigTransactionStatus = "executing" // broadcast in flight
	MultisigTransactionStatusExecuted  MultisigTransactionStatus = "executed"  // broadcast succeeded
	MultisigTransactionStatusFailed    MultisigTransactionStatus = "failed"    // reverted or timed out
)

// MultisigWallet an N-of-M treasury wallet. Threshold never exceeds the
// signer count; CreateWallet enforces it and the column stays immutable
// afterwards.
type MultisigWallet struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"` // UUID
	Name      string `json:"name" gorm:"size:128"`
	ChainID   int64  `json:"chain_id" gorm:"not null;index"`
	Address   string `json:"address" gorm:"size:42;index"` // empty until deployed
	Threshold int    `json:"threshold" gorm:"not null"`

	Signers []MultisigSigner `json:"signers" gorm:"foreignKey:WalletID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (MultisigWallet) TableName() string {
	return "multisig_wallets"
}

// MultisigSigner a registered signer identity on a wallet
type MultisigSigner struct {
	ID       uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	WalletID string `json:"wallet_id" gorm:"size:36;not null;uniqueIndex:idx_wallet_signer"`
	Signer   string `json:"signer" gorm:"size:42;not null;uniqueIndex:idx_wallet_signer"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name
func (MultisigSigner) TableName() string {
	return "multisig_signers"
}

// MultisigTransaction a treasury transaction gated behind collected
// confirmations. The unique index over (wallet_id, sequence_number) makes
// sequence allocation an atomic conditional insert: strictly increasing,
// no gaps, across concurrent proposers.
type MultisigTransaction struct {
	ID             string `json:"id" gorm:"primaryKey;size:36"` // UUID
	WalletID       string `json:"wallet_id" gorm:"size:36;not null;uniqueIndex:idx_wallet_sequence,priority:1;index"`
	SequenceNumber uint64 `json:"sequence_number" gorm:"not null;uniqueIndex:idx_wallet_sequence,priority:2"`

	Target  string `json:"target" gorm:"size:42;not null"`
	Value   string `json:"value" gorm:"not null"`         // wei, decimal string
	Payload string `json:"payload" gorm:"type:text"`      // calldata, hex
	RetryOf string `json:"retry_of" gorm:"size:36;index"` // id of the failed transaction this re-proposes

	Status            MultisigTransactionStatus `json:"status" gorm:"not null;default:'pending';index"`
	ConfirmationCount int                       `json:"confirmation_count" gorm:"default:0"`

	ExecuteTxHash string `json:"execute_tx_hash" gorm:"size:66;index"`
	ErrorReason   string `json:"error_reason" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	ExecutedAt  *time.Time `json:"executed_at"`
}

// TableName specifies the table name
func (MultisigTransaction) TableName() string {
	return "multisig_transactions"
}

// MultisigConfirmation one signer's approval of a transaction. The unique
// index over (transaction_id, signer) enforces at most one confirmation
// per signer; a duplicate insert is the silently-idempotent path.
type MultisigConfirmation struct {
	ID            uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TransactionID string `json:"transaction_id" gorm:"size:36;not null;uniqueIndex:idx_tx_signer"`
	Signer        string `json:"signer" gorm:"size:42;not null;uniqueIndex:idx_tx_signer"`
	Proof         string `json:"proof" gorm:"type:text"`

	ConfirmedAt time.Time `json:"confirmed_at"`
}

// TableName specifies the table name
func (MultisigConfirmation) TableName() string {
	return "multisig_confirmations"
}
