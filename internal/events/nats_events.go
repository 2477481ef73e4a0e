package events

import (
	"encoding/json"
	"fmt"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Lifecycle event names published on the internal bus
const (
	EventTransactionProposed  = "proposed"
	EventTransactionConfirmed = "confirmed" // threshold reached, fired exactly once
	EventTransactionExecuting = "executing"
	EventTransactionExecuted  = "executed"
	EventTransactionFailed    = "failed"
	EventReplayRejected       = "replay_rejected"
)

// Publisher publishes multisig lifecycle and replay-rejection events to
// NATS. A nil Publisher is valid and publishes nothing, so the services
// never need to branch on whether the bus is configured.
type Publisher struct {
	conn    *nats.Conn
	prefix  string
	logger  *logrus.Logger
}

// TransactionEvent payload for a multisig lifecycle transition
type TransactionEvent struct {
	Event          string `json:"event"`
	TransactionID  string `json:"transaction_id"`
	WalletID       string `json:"wallet_id"`
	SequenceNumber uint64 `json:"sequence_number"`
	Status         string `json:"status"`
	Timestamp      int64  `json:"timestamp"`
}

// ReplayEvent payload for a rejected authorization replay
type ReplayEvent struct {
	Event             string `json:"event"`
	ChainID           int64  `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
	Nonce             string `json:"nonce"`
	Timestamp         int64  `json:"timestamp"`
}

// NewPublisher connects to NATS when the bus is enabled; returns nil (a
// valid no-op publisher) when it is not.
func NewPublisher(cfg config.NATSConfig, logger *logrus.Logger) (*Publisher, error) {
	if !cfg.Enabled || cfg.URL == "" {
		logger.Info("NATS not configured, lifecycle events disabled")
		return nil, nil
	}

	opts := []nats.Option{
		nats.Timeout(time.Duration(cfg.Timeout) * time.Second),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait) * time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "treasury"
	}

	logger.WithFields(logrus.Fields{
		"url":    cfg.URL,
		"prefix": prefix,
	}).Info("✅ NATS event publisher initialized")

	return &Publisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// PublishTransactionEvent publishes a lifecycle transition. Publishing is
// best-effort: a bus fault is logged, never propagated into the state
// transition that triggered it.
func (p *Publisher) PublishTransactionEvent(event string, tx *models.MultisigTransaction) {
	if p == nil {
		return
	}
	payload := TransactionEvent{
		Event:          event,
		TransactionID:  tx.ID,
		WalletID:       tx.WalletID,
		SequenceNumber: tx.SequenceNumber,
		Status:         string(tx.Status),
		Timestamp:      time.Now().Unix(),
	}
	p.publish(fmt.Sprintf("%s.multisig.%s", p.prefix, event), payload)
}

// PublishReplayRejected publishes a rejected nonce replay
func (p *Publisher) PublishReplayRejected(domain models.AuthorizationDomain, nonce string) {
	if p == nil {
		return
	}
	payload := ReplayEvent{
		Event:             EventReplayRejected,
		ChainID:           domain.ChainID,
		VerifyingContract: domain.VerifyingContract,
		Nonce:             nonce,
		Timestamp:         time.Now().Unix(),
	}
	p.publish(fmt.Sprintf("%s.authorization.%s", p.prefix, EventReplayRejected), payload)
}

func (p *Publisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.WithError(err).Error("failed to marshal event payload")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject": subject,
		}).WithError(err).Warn("failed to publish event")
	}
}

// Close drains the connection
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
