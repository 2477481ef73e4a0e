package services

import (
	"context"
	"testing"

	"treasury-backend/internal/config"
	"treasury-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallChainService(t *testing.T) *CallChainService {
	t.Helper()
	return NewCallChainService(newTestDB(t), config.CallChainConfig{})
}

func recordAll(t *testing.T, service *CallChainService, operationID string, steps []string) {
	t.Helper()
	for _, step := range steps {
		require.NoError(t, service.RecordStep(context.Background(), operationID, step, models.CallChainOutcomeSuccess))
	}
}

func TestCallChainCompleteInOrder(t *testing.T) {
	service := newCallChainService(t)
	recordAll(t, service, "op-1", []string{
		"validateAddress", "validateAmount", "checkRateLimit", "verifyBalance", "createAuditLog",
	})

	report, err := service.Validate(context.Background(), "op-1", "executePayment")
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.OutOfOrder)
}

func TestCallChainMissingStep(t *testing.T) {
	service := newCallChainService(t)
	recordAll(t, service, "op-2", []string{
		"validateAddress", "validateAmount", "verifyBalance", "createAuditLog",
	})

	report, err := service.Validate(context.Background(), "op-2", "executePayment")
	require.NoError(t, err)
	assert.False(t, report.Valid())
	assert.Equal(t, []string{"checkRateLimit"}, report.Missing)
}

func TestCallChainOutOfOrder(t *testing.T) {
	service := newCallChainService(t)
	// createAuditLog ran before verifyBalance; all steps present
	recordAll(t, service, "op-3", []string{
		"validateAddress", "validateAmount", "checkRateLimit", "createAuditLog", "verifyBalance",
	})

	report, err := service.Validate(context.Background(), "op-3", "executePayment")
	require.NoError(t, err)
	assert.False(t, report.Valid())
	assert.Empty(t, report.Missing)
	assert.Equal(t, []string{"createAuditLog"}, report.OutOfOrder)
}

func TestCallChainIgnoresFailedAttemptsBeforeSuccess(t *testing.T) {
	service := newCallChainService(t)
	ctx := context.Background()

	require.NoError(t, service.RecordStep(ctx, "op-4", "validateAddress", models.CallChainOutcomeFailure))
	recordAll(t, service, "op-4", []string{
		"validateAddress", "validateAmount", "checkRateLimit", "verifyBalance", "createAuditLog",
	})

	report, err := service.Validate(ctx, "op-4", "executePayment")
	require.NoError(t, err)
	assert.True(t, report.Valid())
}

func TestCallChainUnknownOperationType(t *testing.T) {
	service := newCallChainService(t)
	_, err := service.Validate(context.Background(), "op-5", "mintUnicorns")
	assert.Error(t, err)
}

func TestCallChainConfigOverride(t *testing.T) {
	service := NewCallChainService(newTestDB(t), config.CallChainConfig{
		Operations: map[string][]string{
			"rotateKeys": {"freezeSessions", "rotate", "createAuditLog"},
		},
	})
	recordAll(t, service, "op-6", []string{"freezeSessions", "rotate", "createAuditLog"})

	report, err := service.Validate(context.Background(), "op-6", "rotateKeys")
	require.NoError(t, err)
	assert.True(t, report.Valid())
}
