package models

import (
	"time"
)

// CallChainOutcome step outcome
type CallChainOutcome string

const (
	CallChainOutcomeSuccess CallChainOutcome = "success"
	CallChainOutcomeFailure CallChainOutcome = "failure"
)

// CallChainStep one recorded sub-check of a sensitive operation, keyed by
// operation id. The auto-increment id gives the relative order the steps
// were recorded in. Ephemeral: swept by GC past a hard age ceiling.
type CallChainStep struct {
	ID          uint64           `json:"id" gorm:"primaryKey;autoIncrement"`
	OperationID string           `json:"operation_id" gorm:"size:64;not null;index"`
	Step        string           `json:"step" gorm:"size:64;not null"`
	Outcome     CallChainOutcome `json:"outcome" gorm:"size:16;not null"`

	RecordedAt time.Time `json:"recorded_at" gorm:"index"`
}

// TableName specifies the table name
func (CallChainStep) TableName() string {
	return "call_chain_steps"
}
