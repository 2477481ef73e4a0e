package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/models"

	"gorm.io/gorm"
)

// NonceRegistry permanently tracks consumed authorization nonces per
// signing domain. Consumption is a single unique-constraint insert, so it
// is atomic across concurrent requests and across instances sharing the
// store. Entries are never evicted.
type NonceRegistry struct {
	db *gorm.DB
}

// NewNonceRegistry creates a nonce registry
func NewNonceRegistry(db *gorm.DB) *NonceRegistry {
	return &NonceRegistry{db: db}
}

// Consume marks (domain, nonce) as used. Returns errs.ErrReplay when the
// pair was already consumed, no matter how long ago.
func (r *NonceRegistry) Consume(ctx context.Context, domain models.AuthorizationDomain, nonce string) error {
	record := models.ConsumedNonce{
		ChainID:           domain.ChainID,
		VerifyingContract: strings.ToLower(domain.VerifyingContract),
		Nonce:             strings.ToLower(nonce),
		ConsumedAt:        time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.ErrReplay
		}
		return fmt.Errorf("failed to record nonce consumption: %w", err)
	}
	return nil
}

// IsConsumed reports whether (domain, nonce) has already been used
func (r *NonceRegistry) IsConsumed(ctx context.Context, domain models.AuthorizationDomain, nonce string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConsumedNonce{}).
		Where("chain_id = ? AND verifying_contract = ? AND nonce = ?",
			domain.ChainID, strings.ToLower(domain.VerifyingContract), strings.ToLower(nonce)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query nonce: %w", err)
	}
	return count > 0, nil
}
