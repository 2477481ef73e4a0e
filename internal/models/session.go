package models

import (
	"time"
)

// BoundSession one logical session bound to exactly one wallet identity
// for its entire lifetime. SessionID is the primary key, so the first
// bind wins by unique-constraint insert; action_count caps throughput.
type BoundSession struct {
	SessionID      string `json:"session_id" gorm:"primaryKey;size:64"`
	WalletIdentity string `json:"wallet_identity" gorm:"size:42;not null;index"`
	ActionCount    int    `json:"action_count" gorm:"not null;default:0"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index"`
}

// TableName specifies the table name
func (BoundSession) TableName() string {
	return "bound_sessions"
}
