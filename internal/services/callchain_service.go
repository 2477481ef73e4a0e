package services

import (
	"context"
	"fmt"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/models"

	"gorm.io/gorm"
)

// defaultCallChains built-in required step lists per sensitive operation
// type. Config may add operation types or override these lists.
var defaultCallChains = map[string][]string{
	"executePayment": {
		"validateAddress",
		"validateAmount",
		"checkRateLimit",
		"verifyBalance",
		"createAuditLog",
	},
	"executeMultisig": {
		"verifyThreshold",
		"checkDependencies",
		"recheckSequence",
		"createAuditLog",
	},
}

// CallChainReport the result of validating an operation's recorded steps
// against its declared chain. The operation passes only when both lists
// are empty.
type CallChainReport struct {
	Missing    []string `json:"missing"`
	OutOfOrder []string `json:"out_of_order"`
}

// Valid reports whether the operation executed its full chain in order
func (r *CallChainReport) Valid() bool {
	return len(r.Missing) == 0 && len(r.OutOfOrder) == 0
}

// CallChainService verifies that a multi-step sensitive operation actually
// executed its declared sub-checks, in the declared relative order. This
// is a structural gate against code paths that skip a precondition, not a
// performance check.
type CallChainService struct {
	db     *gorm.DB
	chains map[string][]string
}

// NewCallChainService creates a call chain validator with the built-in
// chains plus any configured overrides
func NewCallChainService(db *gorm.DB, cfg config.CallChainConfig) *CallChainService {
	chains := make(map[string][]string, len(defaultCallChains))
	for opType, steps := range defaultCallChains {
		chains[opType] = steps
	}
	for opType, steps := range cfg.Operations {
		chains[opType] = steps
	}
	return &CallChainService{db: db, chains: chains}
}

// RecordStep appends a step outcome to the operation's log
func (s *CallChainService) RecordStep(ctx context.Context, operationID, step string, outcome models.CallChainOutcome) error {
	record := models.CallChainStep{
		OperationID: operationID,
		Step:        step,
		Outcome:     outcome,
		RecordedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record call chain step: %w", err)
	}
	return nil
}

// Validate checks the operation's recorded steps against the declared
// chain for opType. A required step with no successful record is missing.
// A step is out of order when its first success precedes the first success
// of a step declared before it — even when both eventually succeeded.
func (s *CallChainService) Validate(ctx context.Context, operationID, opType string) (*CallChainReport, error) {
	required, ok := s.chains[opType]
	if !ok {
		return nil, fmt.Errorf("no call chain declared for operation type %q", opType)
	}

	var steps []models.CallChainStep
	if err := s.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("id ASC").
		Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to load call chain steps: %w", err)
	}

	// Index of each required step's first success in the recorded log
	firstSuccess := make(map[string]int, len(required))
	for i, step := range steps {
		if step.Outcome != models.CallChainOutcomeSuccess {
			continue
		}
		if _, seen := firstSuccess[step.Step]; !seen {
			firstSuccess[step.Step] = i
		}
	}

	report := &CallChainReport{Missing: []string{}, OutOfOrder: []string{}}
	highWater := -1
	for _, step := range required {
		idx, ok := firstSuccess[step]
		if !ok {
			report.Missing = append(report.Missing, step)
			continue
		}
		if idx < highWater {
			report.OutOfOrder = append(report.OutOfOrder, step)
			continue
		}
		highWater = idx
	}

	return report, nil
}
