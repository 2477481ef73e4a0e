package models

import (
	"time"
)

// TransactionLock a short-lived exactly-once execution guard. The lock
// pins a keccak256 hash of the parameters that were validated; consume
// rejects if the presented parameters no longer hash-match, closing the
// check-then-act window.
type TransactionLock struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"` // UUID
	OwnerID       string `json:"owner_id" gorm:"size:66;not null;index"`
	ParameterHash string `json:"parameter_hash" gorm:"size:66;not null"`

	Consumed bool `json:"consumed" gorm:"not null;default:false"`

	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"index"`
	ConsumedAt *time.Time `json:"consumed_at"`
}

// TableName specifies the table name
func (TransactionLock) TableName() string {
	return "transaction_locks"
}
