package models

import (
	"time"
)

// TransactionDependency declares that a multisig transaction may only
// execute after another transaction is confirmed. Status is never cached
// here: dependents re-check the dependency's current status at the moment
// of use.
type TransactionDependency struct {
	ID            uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TransactionID string `json:"transaction_id" gorm:"size:36;not null;uniqueIndex:idx_tx_depends"`
	DependsOn     string `json:"depends_on" gorm:"size:36;not null;uniqueIndex:idx_tx_depends"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name
func (TransactionDependency) TableName() string {
	return "transaction_dependencies"
}
