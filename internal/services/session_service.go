package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/errs"
	"treasury-backend/internal/metrics"
	"treasury-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SessionService binds one logical session to exactly one wallet identity
// and caps its throughput. The first bind wins through the session id
// primary key; re-binding to a different identity is a conflict for the
// session's entire lifetime.
type SessionService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	ttl        time.Duration
	maxActions int
}

// NewSessionService creates a session binder
func NewSessionService(db *gorm.DB, logger *logrus.Logger, cfg config.SessionConfig) *SessionService {
	return &SessionService{
		db:         db,
		logger:     logger,
		ttl:        time.Duration(cfg.TTLMinutes) * time.Minute,
		maxActions: cfg.MaxActions,
	}
}

// Bind binds sessionID to identity. Binding again with the same identity
// is idempotent; a different identity gets ErrBindingConflict.
func (s *SessionService) Bind(ctx context.Context, sessionID, identity string) error {
	now := time.Now()
	session := models.BoundSession{
		SessionID:      sessionID,
		WalletIdentity: normalizeIdentity(identity),
		CreatedAt:      now,
		LastActivity:   now,
		ExpiresAt:      now.Add(s.ttl),
	}
	err := s.db.WithContext(ctx).Create(&session).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to bind session: %w", err)
	}

	// Lost the insert race or the session was bound earlier. Same identity
	// is fine; anything else is a conflict.
	var existing models.BoundSession
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&existing).Error; err != nil {
		return fmt.Errorf("failed to load bound session: %w", err)
	}
	if existing.WalletIdentity != normalizeIdentity(identity) {
		return errs.ErrBindingConflict
	}
	return nil
}

// Verify checks that sessionID is bound to identity, then counts the
// action. A mismatch is surfaced as ErrWalletMismatch — a session-hijack
// signal, logged and metered separately from generic auth failures. The
// quota check and increment are one conditional UPDATE, so concurrent
// verifications cannot push the count past the cap.
func (s *SessionService) Verify(ctx context.Context, sessionID, identity string) error {
	var session models.BoundSession
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrNotBound
		}
		return fmt.Errorf("failed to load bound session: %w", err)
	}

	if session.WalletIdentity != normalizeIdentity(identity) {
		metrics.SessionWalletMismatches.Inc()
		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"bound":      session.WalletIdentity,
			"presented":  normalizeIdentity(identity),
		}).Warn("session presented with a different wallet identity")
		return errs.ErrWalletMismatch
	}

	if time.Now().After(session.ExpiresAt) {
		return errs.ErrSessionExpired
	}

	result := s.db.WithContext(ctx).Model(&models.BoundSession{}).
		Where("session_id = ? AND action_count < ?", sessionID, s.maxActions).
		Updates(map[string]any{
			"action_count":  gorm.Expr("action_count + 1"),
			"last_activity": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to count session action: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.SessionQuotaRejections.Inc()
		return errs.ErrQuotaExceeded
	}
	return nil
}

// normalizeIdentity lower-cases a hex wallet identity for comparison
func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
