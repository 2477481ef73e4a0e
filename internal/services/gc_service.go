package services

import (
	"context"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/metrics"
	"treasury-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GCService sweeps short-lived coordination state on a ticker: spent or
// abandoned transaction locks and aged call chain step logs. Consumed
// nonces are permanent replay-protection state and are never swept —
// expiry bounds when an authorization is accepted, not how long its nonce
// is remembered.
type GCService struct {
	db              *gorm.DB
	logger          *logrus.Logger
	interval        time.Duration
	lockHardAge     time.Duration
	callChainMaxAge time.Duration
}

// NewGCService creates the background sweeper
func NewGCService(db *gorm.DB, logger *logrus.Logger, cfg config.GCConfig, lockCfg config.LockConfig) *GCService {
	return &GCService{
		db:              db,
		logger:          logger,
		interval:        time.Duration(cfg.IntervalSeconds) * time.Second,
		lockHardAge:     time.Duration(lockCfg.HardAgeCeilingMins) * time.Minute,
		callChainMaxAge: time.Duration(cfg.CallChainMaxAgeMins) * time.Minute,
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *GCService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval": s.interval,
	}).Info("gc sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("gc sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. A lock is removable once it has expired and was
// either consumed or has passed the hard age ceiling — an expired but
// unconsumed lock lingers for the ceiling so a late consume attempt gets a
// precise ErrExpired rather than a not-found.
func (s *GCService) Sweep(ctx context.Context) {
	metrics.GCSweeps.Inc()
	now := time.Now()

	locks := s.db.WithContext(ctx).
		Where("expires_at < ? AND (consumed = ? OR created_at < ?)", now, true, now.Add(-s.lockHardAge)).
		Delete(&models.TransactionLock{})
	if locks.Error != nil {
		s.logger.WithError(locks.Error).Error("gc failed to sweep transaction locks")
	} else if locks.RowsAffected > 0 {
		metrics.GCRemovedEntries.WithLabelValues("transaction_locks").Add(float64(locks.RowsAffected))
	}

	steps := s.db.WithContext(ctx).
		Where("recorded_at < ?", now.Add(-s.callChainMaxAge)).
		Delete(&models.CallChainStep{})
	if steps.Error != nil {
		s.logger.WithError(steps.Error).Error("gc failed to sweep call chain steps")
	} else if steps.RowsAffected > 0 {
		metrics.GCRemovedEntries.WithLabelValues("call_chain_steps").Add(float64(steps.RowsAffected))
	}

	if locks.RowsAffected > 0 || steps.RowsAffected > 0 {
		s.logger.WithFields(logrus.Fields{
			"locks":            locks.RowsAffected,
			"call_chain_steps": steps.RowsAffected,
		}).Info("gc sweep removed entries")
	}
}
