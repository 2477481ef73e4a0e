package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/events"
	"treasury-backend/internal/metrics"
	"treasury-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChainReader reads chain state. It is the only window the consensus
// service has onto the chain; everything chain-specific stays behind it.
type ChainReader interface {
	GetCode(ctx context.Context, address string) ([]byte, error)
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error)
	BalanceOf(ctx context.Context, token, address string) (*big.Int, error)
}

// Broadcaster submits an approved execution to the party holding the
// broadcasting key
type Broadcaster interface {
	Broadcast(ctx context.Context, walletAddress string, sequenceNumber uint64, target, value, payload string) (string, error)
}

// sequenceSelector is the 4-byte selector of the wallet contract's
// nonce() getter, used to re-check the on-chain sequence before broadcast
var sequenceSelector = crypto.Keccak256([]byte("nonce()"))[:4]

// proposeAttempts bounds the sequence-allocation retry loop under
// concurrent proposers
const proposeAttempts = 5

// MultisigService drives the lifecycle of treasury transactions gated
// behind N-of-M signer consensus:
//
//	pending → confirmed → executing → executed | failed
//
// failed → pending exists only as re-proposal under a fresh sequence
// number. Every mutation is a unique-constraint insert or a conditional
// UPDATE, so retried and racing callers cannot double-count a signer,
// re-fire the threshold transition, or tear a sequence.
type MultisigService struct {
	db          *gorm.DB
	reader      ChainReader
	broadcaster Broadcaster
	publisher   *events.Publisher
	logger      *logrus.Logger
}

// NewMultisigService creates the consensus service
func NewMultisigService(db *gorm.DB, reader ChainReader, broadcaster Broadcaster, publisher *events.Publisher, logger *logrus.Logger) *MultisigService {
	return &MultisigService{
		db:          db,
		reader:      reader,
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      logger,
	}
}

// CreateWallet registers an N-of-M wallet. The threshold must lie in
// [1, signer count]; signer addresses are checksummed and deduplicated.
func (s *MultisigService) CreateWallet(ctx context.Context, name string, chainID int64, signers []string, threshold int) (*models.MultisigWallet, error) {
	unique := make([]string, 0, len(signers))
	seen := make(map[string]bool, len(signers))
	for _, signer := range signers {
		addr := common.HexToAddress(signer).Hex()
		if !seen[addr] {
			seen[addr] = true
			unique = append(unique, addr)
		}
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("wallet needs at least one signer")
	}
	if threshold < 1 || threshold > len(unique) {
		return nil, fmt.Errorf("threshold %d out of range [1, %d]", threshold, len(unique))
	}

	wallet := &models.MultisigWallet{
		ID:        uuid.New().String(),
		Name:      name,
		ChainID:   chainID,
		Threshold: threshold,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(wallet).Error; err != nil {
			return err
		}
		for _, signer := range unique {
			if err := tx.Create(&models.MultisigSigner{WalletID: wallet.ID, Signer: signer}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"wallet_id": wallet.ID,
		"signers":   len(unique),
		"threshold": threshold,
		"chain_id":  chainID,
	}).Info("multisig wallet registered")

	wallet.Signers = nil
	return s.GetWallet(ctx, wallet.ID)
}

// GetWallet loads a wallet with its signer set
func (s *MultisigService) GetWallet(ctx context.Context, walletID string) (*models.MultisigWallet, error) {
	var wallet models.MultisigWallet
	err := s.db.WithContext(ctx).Preload("Signers").Where("id = ?", walletID).First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Propose creates a pending transaction under the next sequence number for
// the wallet. Allocation is an insert against the (wallet, sequence)
// unique index: read the current maximum, attempt max+1, retry on a
// duplicate. The resulting numbers are strictly increasing with no gaps
// across all successfully proposed transactions.
func (s *MultisigService) Propose(ctx context.Context, walletID, target, value, payload string) (*models.MultisigTransaction, error) {
	return s.propose(ctx, walletID, target, value, payload, "")
}

// Repropose retries a failed transaction as a fresh proposal. The old
// transaction stays failed; the replacement starts over at pending under a
// new sequence number — the old number is never reused.
func (s *MultisigService) Repropose(ctx context.Context, transactionID string) (*models.MultisigTransaction, error) {
	var old models.MultisigTransaction
	if err := s.db.WithContext(ctx).Where("id = ?", transactionID).First(&old).Error; err != nil {
		return nil, err
	}
	if old.Status != models.MultisigTransactionStatusFailed {
		return nil, fmt.Errorf("%w: re-proposal requires failed status, got %s", errs.ErrInvalidTransition, old.Status)
	}
	return s.propose(ctx, old.WalletID, old.Target, old.Value, old.Payload, old.ID)
}

func (s *MultisigService) propose(ctx context.Context, walletID, target, value, payload, retryOf string) (*models.MultisigTransaction, error) {
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return nil, fmt.Errorf("failed to load wallet %s: %w", walletID, err)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid transaction value %q", value)
	}

	var lastErr error
	for attempt := 0; attempt < proposeAttempts; attempt++ {
		var maxSequence uint64
		row := s.db.WithContext(ctx).Model(&models.MultisigTransaction{}).
			Where("wallet_id = ?", walletID).
			Select("COALESCE(MAX(sequence_number), 0)")
		if err := row.Scan(&maxSequence).Error; err != nil {
			return nil, fmt.Errorf("failed to read last sequence: %w", err)
		}

		transaction := &models.MultisigTransaction{
			ID:             uuid.New().String(),
			WalletID:       walletID,
			SequenceNumber: maxSequence + 1,
			Target:         common.HexToAddress(target).Hex(),
			Value:          amount.String(),
			Payload:        payload,
			RetryOf:        retryOf,
			Status:         models.MultisigTransactionStatusPending,
		}
		err := s.db.WithContext(ctx).Create(transaction).Error
		if err == nil {
			metrics.ProposalsCreated.Inc()
			s.publisher.PublishTransactionEvent(events.EventTransactionProposed, transaction)
			s.logger.WithFields(logrus.Fields{
				"transaction_id": transaction.ID,
				"wallet_id":      walletID,
				"sequence":       transaction.SequenceNumber,
			}).Info("multisig transaction proposed")
			return transaction, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent proposer took this sequence number
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil, fmt.Errorf("sequence allocation contention on wallet %s: %w", walletID, lastErr)
}

// Confirm records one signer's approval. A signer outside the wallet's
// signer set is rejected; a duplicate confirmation from the same signer is
// silently idempotent — no error and no double count. When the distinct
// confirmation count reaches the wallet threshold, the transaction moves
// to confirmed through a conditional UPDATE that can only ever fire once;
// confirmations past the threshold are recorded but do not re-fire it.
func (s *MultisigService) Confirm(ctx context.Context, transactionID, signer, proof string) (*models.MultisigConfirmation, error) {
	signerAddr := common.HexToAddress(signer).Hex()

	var confirmation *models.MultisigConfirmation
	thresholdFired := false
	var transaction models.MultisigTransaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE: concurrent confirms on the same
		// transaction serialize here, so the count below always sees
		// every committed confirmation. The sqlite driver drops the
		// locking clause; its writers serialize anyway.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", transactionID).First(&transaction).Error; err != nil {
			return err
		}
		if transaction.Status != models.MultisigTransactionStatusPending &&
			transaction.Status != models.MultisigTransactionStatusConfirmed {
			return fmt.Errorf("%w: cannot confirm from %s", errs.ErrInvalidTransition, transaction.Status)
		}

		var membership int64
		if err := tx.Model(&models.MultisigSigner{}).
			Where("wallet_id = ? AND signer = ?", transaction.WalletID, signerAddr).
			Count(&membership).Error; err != nil {
			return fmt.Errorf("failed to check signer membership: %w", err)
		}
		if membership == 0 {
			return fmt.Errorf("%w: %s on wallet %s", errs.ErrUnknownSigner, signerAddr, transaction.WalletID)
		}

		record := &models.MultisigConfirmation{
			TransactionID: transactionID,
			Signer:        signerAddr,
			Proof:         proof,
			ConfirmedAt:   time.Now(),
		}
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Same signer confirming again: return the existing record
				var existing models.MultisigConfirmation
				if err := tx.Where("transaction_id = ? AND signer = ?", transactionID, signerAddr).
					First(&existing).Error; err != nil {
					return fmt.Errorf("failed to load existing confirmation: %w", err)
				}
				confirmation = &existing
				return nil
			}
			return fmt.Errorf("failed to record confirmation: %w", err)
		}
		confirmation = record
		metrics.ConfirmationsRecorded.Inc()

		var wallet models.MultisigWallet
		if err := tx.Where("id = ?", transaction.WalletID).First(&wallet).Error; err != nil {
			return fmt.Errorf("failed to load wallet: %w", err)
		}

		var count int64
		if err := tx.Model(&models.MultisigConfirmation{}).
			Where("transaction_id = ?", transactionID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count confirmations: %w", err)
		}
		if err := tx.Model(&models.MultisigTransaction{}).
			Where("id = ?", transactionID).
			Update("confirmation_count", count).Error; err != nil {
			return fmt.Errorf("failed to update confirmation count: %w", err)
		}

		if int(count) >= wallet.Threshold {
			now := time.Now()
			result := tx.Model(&models.MultisigTransaction{}).
				Where("id = ? AND status = ?", transactionID, models.MultisigTransactionStatusPending).
				Updates(map[string]any{
					"status":       models.MultisigTransactionStatusConfirmed,
					"confirmed_at": now,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to transition to confirmed: %w", result.Error)
			}
			// RowsAffected == 0 means a concurrent confirmation already
			// fired the transition; it fires exactly once either way.
			thresholdFired = result.RowsAffected > 0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if thresholdFired {
		metrics.ThresholdReached.Inc()
		transaction.Status = models.MultisigTransactionStatusConfirmed
		s.publisher.PublishTransactionEvent(events.EventTransactionConfirmed, &transaction)
		s.logger.WithFields(logrus.Fields{
			"transaction_id": transactionID,
		}).Info("confirmation threshold reached")
	}
	return confirmation, nil
}

// Execute broadcasts a confirmed transaction. The move to executing is a
// conditional UPDATE legal only from confirmed; the on-chain sequence is
// re-checked after that commit — with no lock held across the chain call —
// so a retried local failure can never double-submit an already-landed
// sequence number.
func (s *MultisigService) Execute(ctx context.Context, transactionID string) (*models.MultisigTransaction, error) {
	result := s.db.WithContext(ctx).Model(&models.MultisigTransaction{}).
		Where("id = ? AND status = ?", transactionID, models.MultisigTransactionStatusConfirmed).
		Update("status", models.MultisigTransactionStatusExecuting)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to transition to executing: %w", result.Error)
	}

	// Read after the conditional UPDATE so a rejection is labelled from
	// the row as it stands now, not a snapshot a racing confirm or
	// executor may have outdated
	var transaction models.MultisigTransaction
	if err := s.db.WithContext(ctx).Where("id = ?", transactionID).First(&transaction).Error; err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		if transaction.Status == models.MultisigTransactionStatusPending {
			return nil, fmt.Errorf("%w: %d confirmations recorded", errs.ErrThresholdNotMet, transaction.ConfirmationCount)
		}
		return nil, fmt.Errorf("%w: cannot execute from %s", errs.ErrInvalidTransition, transaction.Status)
	}
	s.publisher.PublishTransactionEvent(events.EventTransactionExecuting, &transaction)

	wallet, err := s.GetWallet(ctx, transaction.WalletID)
	if err != nil {
		return nil, s.markFailed(ctx, &transaction, fmt.Sprintf("failed to load wallet: %v", err))
	}

	// Re-check the wallet's on-chain sequence before broadcasting
	if wallet.Address != "" && s.reader != nil {
		onchain, err := s.onchainSequence(ctx, wallet.Address)
		if err != nil {
			return nil, s.markFailed(ctx, &transaction, fmt.Sprintf("sequence re-check failed: %v", err))
		}
		if onchain >= transaction.SequenceNumber {
			return nil, s.markFailed(ctx, &transaction,
				fmt.Sprintf("sequence %d already consumed on-chain (current %d)", transaction.SequenceNumber, onchain))
		}
	}

	txHash, err := s.broadcaster.Broadcast(ctx, wallet.Address, transaction.SequenceNumber,
		transaction.Target, transaction.Value, transaction.Payload)
	if err != nil {
		return nil, s.markFailed(ctx, &transaction, err.Error())
	}

	now := time.Now()
	update := s.db.WithContext(ctx).Model(&models.MultisigTransaction{}).
		Where("id = ? AND status = ?", transactionID, models.MultisigTransactionStatusExecuting).
		Updates(map[string]any{
			"status":          models.MultisigTransactionStatusExecuted,
			"execute_tx_hash": txHash,
			"executed_at":     now,
		})
	if update.Error != nil {
		return nil, fmt.Errorf("failed to record execution: %w", update.Error)
	}

	transaction.Status = models.MultisigTransactionStatusExecuted
	transaction.ExecuteTxHash = txHash
	transaction.ExecutedAt = &now
	metrics.Executions.WithLabelValues("executed").Inc()
	s.publisher.PublishTransactionEvent(events.EventTransactionExecuted, &transaction)
	s.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"tx_hash":        txHash,
	}).Info("multisig transaction executed")
	return &transaction, nil
}

// markFailed records the failure reason and returns an error describing it
func (s *MultisigService) markFailed(ctx context.Context, transaction *models.MultisigTransaction, reason string) error {
	result := s.db.WithContext(ctx).Model(&models.MultisigTransaction{}).
		Where("id = ? AND status = ?", transaction.ID, models.MultisigTransactionStatusExecuting).
		Updates(map[string]any{
			"status":       models.MultisigTransactionStatusFailed,
			"error_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record execution failure: %w", result.Error)
	}
	transaction.Status = models.MultisigTransactionStatusFailed
	transaction.ErrorReason = reason
	metrics.Executions.WithLabelValues("failed").Inc()
	s.publisher.PublishTransactionEvent(events.EventTransactionFailed, transaction)
	s.logger.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"reason":         reason,
	}).Warn("multisig execution failed")
	return fmt.Errorf("execution failed: %s", reason)
}

// onchainSequence reads the wallet contract's executed-transaction counter
func (s *MultisigService) onchainSequence(ctx context.Context, walletAddress string) (uint64, error) {
	out, err := s.reader.Call(ctx, walletAddress, sequenceSelector)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("wallet %s returned no sequence data", walletAddress)
	}
	return new(big.Int).SetBytes(out).Uint64(), nil
}

// GetTransaction loads a transaction with its confirmations
func (s *MultisigService) GetTransaction(ctx context.Context, transactionID string) (*models.MultisigTransaction, []models.MultisigConfirmation, error) {
	var transaction models.MultisigTransaction
	if err := s.db.WithContext(ctx).Where("id = ?", transactionID).First(&transaction).Error; err != nil {
		return nil, nil, err
	}
	var confirmations []models.MultisigConfirmation
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("confirmed_at ASC").
		Find(&confirmations).Error; err != nil {
		return nil, nil, err
	}
	return &transaction, confirmations, nil
}

// ListTransactions returns a page of transactions, optionally filtered by
// wallet and status
func (s *MultisigService) ListTransactions(ctx context.Context, page, pageSize int, walletID, status string) ([]models.MultisigTransaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.MultisigTransaction{})
	if walletID != "" {
		query = query.Where("wallet_id = ?", walletID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transactions []models.MultisigTransaction
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&transactions).Error; err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// SystemStatus returns transaction counts by status
func (s *MultisigService) SystemStatus(ctx context.Context, walletID string) (map[string]int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.MultisigTransaction{})
		if walletID != "" {
			q = q.Where("wallet_id = ?", walletID)
		}
		return q
	}

	status := make(map[string]int64, 6)
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	status["total"] = total
	for _, st := range []models.MultisigTransactionStatus{
		models.MultisigTransactionStatusPending,
		models.MultisigTransactionStatusConfirmed,
		models.MultisigTransactionStatusExecuting,
		models.MultisigTransactionStatusExecuted,
		models.MultisigTransactionStatusFailed,
	} {
		var count int64
		if err := base().Where("status = ?", st).Count(&count).Error; err != nil {
			return nil, err
		}
		status[string(st)] = count
	}
	return status, nil
}

// PredictWalletAddress computes the CREATE2 address a factory would deploy
// an undeployed wallet at: salt = keccak256(keccak256(initializer) ‖
// saltNonce). The result is provisional — callers must re-verify the
// deployed bytecode through VerifyDeployedWallet before trusting it.
func PredictWalletAddress(factory string, initializer []byte, saltNonce uint64, initCodeHash []byte) string {
	salt := crypto.Keccak256(
		crypto.Keccak256(initializer),
		common.LeftPadBytes(new(big.Int).SetUint64(saltNonce).Bytes(), 32),
	)
	address := crypto.CreateAddress2(common.HexToAddress(factory), common.BytesToHash(salt), initCodeHash)
	return address.Hex()
}

// VerifyDeployedWallet checks that a predicted address now holds deployed
// bytecode, and that the bytecode matches expectedCodeHash when one is
// configured. Until this returns true the predicted address is not final.
func (s *MultisigService) VerifyDeployedWallet(ctx context.Context, address, expectedCodeHash string) (bool, error) {
	if s.reader == nil {
		return false, fmt.Errorf("no chain reader configured")
	}
	code, err := s.reader.GetCode(ctx, address)
	if err != nil {
		return false, fmt.Errorf("failed to read code at %s: %w", address, err)
	}
	if len(code) == 0 {
		return false, nil
	}
	if expectedCodeHash != "" {
		actual := common.BytesToHash(crypto.Keccak256(code)).Hex()
		if !strings.EqualFold(actual, expectedCodeHash) {
			return false, nil
		}
	}
	return true, nil
}
