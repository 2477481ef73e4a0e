package services

import (
	"context"
	"errors"
	"fmt"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DependencyService gates transaction execution on declared prerequisites.
// The graph is pull-based: nothing is pushed to dependents when a
// prerequisite changes state — a dependent re-reads its prerequisites'
// current status at the moment it asks to execute, so a prerequisite that
// failed after being registered is caught rather than served from a stale
// snapshot.
type DependencyService struct {
	db *gorm.DB
}

// NewDependencyService creates the dependency graph service
func NewDependencyService(db *gorm.DB) *DependencyService {
	return &DependencyService{db: db}
}

// Register declares that transactionID must not execute before dependsOn
// has executed. The prerequisite must exist and must not already be
// failed; registering the same edge twice is idempotent.
func (s *DependencyService) Register(ctx context.Context, transactionID, dependsOn string) error {
	if transactionID == dependsOn {
		return fmt.Errorf("%w: transaction cannot depend on itself", errs.ErrUnknownDependency)
	}

	var prerequisite models.MultisigTransaction
	if err := s.db.WithContext(ctx).Where("id = ?", dependsOn).First(&prerequisite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", errs.ErrUnknownDependency, dependsOn)
		}
		return fmt.Errorf("failed to load dependency %s: %w", dependsOn, err)
	}
	if prerequisite.Status == models.MultisigTransactionStatusFailed {
		return fmt.Errorf("%w: %s", errs.ErrDependencyFailed, dependsOn)
	}

	edge := models.TransactionDependency{
		TransactionID: transactionID,
		DependsOn:     dependsOn,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edge).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to register dependency: %w", err)
	}
	return nil
}

// Dependencies returns the prerequisite ids declared for a transaction
func (s *DependencyService) Dependencies(ctx context.Context, transactionID string) ([]string, error) {
	var edges []models.TransactionDependency
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("failed to load dependencies: %w", err)
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.DependsOn)
	}
	return ids, nil
}

// CanExecute re-reads every prerequisite's current status and reports
// whether the transaction may proceed. A prerequisite that has failed is a
// hard stop (ErrDependencyFailed); one still collecting confirmations
// returns ErrDependencyNotReady. A prerequisite that has reached its
// threshold — confirmed, executing, or executed — satisfies the gate.
func (s *DependencyService) CanExecute(ctx context.Context, transactionID string) error {
	ids, err := s.Dependencies(ctx, transactionID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		var prerequisite models.MultisigTransaction
		if err := s.db.WithContext(ctx).Where("id = ?", id).First(&prerequisite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", errs.ErrUnknownDependency, id)
			}
			return fmt.Errorf("failed to load dependency %s: %w", id, err)
		}
		switch prerequisite.Status {
		case models.MultisigTransactionStatusConfirmed,
			models.MultisigTransactionStatusExecuting,
			models.MultisigTransactionStatusExecuted:
			// satisfied
		case models.MultisigTransactionStatusFailed:
			return fmt.Errorf("%w: %s", errs.ErrDependencyFailed, id)
		default:
			return fmt.Errorf("%w: %s is %s", errs.ErrDependencyNotReady, id, prerequisite.Status)
		}
	}
	return nil
}
