package models

import (
	"time"
)

// AuthorizationDomain EIP-712 signing domain. Binding a signature to this
// tuple is what prevents a nonce signed for one token/chain from being
// replayed against another.
type AuthorizationDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
}

// TransferAuthorization a signed, time-bounded, nonce-scoped transfer
// instruction (EIP-3009 TransferWithAuthorization shape). Transient: owned
// by the single payment attempt that created it.
type TransferAuthorization struct {
	From        string              `json:"from"`
	To          string              `json:"to"`
	Value       string              `json:"value"` // wei, decimal string
	ValidAfter  int64               `json:"valid_after"`
	ValidBefore int64               `json:"valid_before"`
	Nonce       string              `json:"nonce"` // 0x-prefixed 32-byte hex, random
	Domain      AuthorizationDomain `json:"domain"`
}

// ConsumedNonce permanent record of a consumed authorization nonce.
// The unique index over (chain_id, verifying_contract, nonce) is the
// replay-protection invariant: insert succeeds at most once, across all
// instances, forever. Rows are never evicted — the record of consumption
// must outlive the authorization's own validity window so an expired
// authorization cannot be resurrected.
type ConsumedNonce struct {
	ID                uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	ChainID           int64     `json:"chain_id" gorm:"not null;uniqueIndex:idx_domain_nonce"`
	VerifyingContract string    `json:"verifying_contract" gorm:"size:42;not null;uniqueIndex:idx_domain_nonce"`
	Nonce             string    `json:"nonce" gorm:"size:66;not null;uniqueIndex:idx_domain_nonce"`
	ConsumedAt        time.Time `json:"consumed_at"`
}

// TableName specifies the table name
func (ConsumedNonce) TableName() string {
	return "consumed_nonces"
}
