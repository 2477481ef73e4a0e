package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/errs"
	"treasury-backend/internal/metrics"
	"treasury-backend/internal/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
	"gorm.io/gorm"
)

// LockService issues short-lived, exactly-once execution locks that close
// the window between validating transfer parameters and acting on them.
// The lock pins a keccak256 hash of the validated parameters; consuming
// with altered parameters is rejected, never re-validated.
type LockService struct {
	db         *gorm.DB
	defaultTTL time.Duration
}

// NewLockService creates a lock service
func NewLockService(db *gorm.DB, cfg config.LockConfig) *LockService {
	return &LockService{
		db:         db,
		defaultTTL: time.Duration(cfg.DefaultTTLSeconds) * time.Second,
	}
}

// Acquire creates a lock over the given parameters. A non-positive ttl
// falls back to the configured default.
func (s *LockService) Acquire(ctx context.Context, ownerID string, parameters map[string]string, ttl time.Duration) (*models.TransactionLock, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	lock := &models.TransactionLock{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		ParameterHash: HashParameters(parameters),
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(lock).Error; err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	metrics.LocksAcquired.Inc()
	return lock, nil
}

// Consume spends the lock, exactly once, and only if the presented
// parameters still hash-match what was validated at acquire time. The
// consumed flag flips through a conditional UPDATE so two racing consumers
// cannot both succeed.
func (s *LockService) Consume(ctx context.Context, lockID string, parameters map[string]string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lock models.TransactionLock
		if err := tx.Where("id = ?", lockID).First(&lock).Error; err != nil {
			return fmt.Errorf("failed to load lock %s: %w", lockID, err)
		}

		if lock.Consumed {
			return errs.ErrAlreadyConsumed
		}
		if time.Now().After(lock.ExpiresAt) {
			return errs.ErrExpired
		}
		if lock.ParameterHash != HashParameters(parameters) {
			// The parameters changed between check and use. Reject;
			// re-validating against the new parameters would defeat the lock.
			return errs.ErrParameterMismatch
		}

		now := time.Now()
		result := tx.Model(&models.TransactionLock{}).
			Where("id = ? AND consumed = ?", lockID, false).
			Updates(map[string]any{"consumed": true, "consumed_at": now})
		if result.Error != nil {
			return fmt.Errorf("failed to consume lock: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errs.ErrAlreadyConsumed
		}
		return nil
	})
	if err != nil {
		metrics.LockRejections.WithLabelValues(errs.Code(err)).Inc()
		return err
	}
	metrics.LocksConsumed.Inc()
	return nil
}

// HashParameters computes the canonical keccak256 hash of a parameter set.
// json.Marshal sorts map keys, so equal maps always produce equal hashes.
func HashParameters(parameters map[string]string) string {
	data, _ := json.Marshal(parameters)
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hexutil.Encode(hash.Sum(nil))
}
