package services

import (
	"context"
	"testing"

	"treasury-backend/internal/config"
	"treasury-backend/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletOne = "0x742d35Cc6634C0532925a3b0F26750C66d78EB66"
	walletTwo = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func newSessionService(t *testing.T, maxActions int) *SessionService {
	t.Helper()
	return NewSessionService(newTestDB(t), newTestLogger(), config.SessionConfig{
		TTLMinutes: 60,
		MaxActions: maxActions,
	})
}

func TestSessionFirstBindWins(t *testing.T) {
	service := newSessionService(t, 100)
	ctx := context.Background()

	require.NoError(t, service.Bind(ctx, "s1", walletOne))

	// Re-binding the same identity is idempotent
	require.NoError(t, service.Bind(ctx, "s1", walletOne))

	// A different wallet on the same session is refused for the session's
	// lifetime
	err := service.Bind(ctx, "s1", walletTwo)
	assert.ErrorIs(t, err, errs.ErrBindingConflict)
}

func TestSessionVerifyMismatchIsHijackSignal(t *testing.T) {
	service := newSessionService(t, 100)
	ctx := context.Background()

	require.NoError(t, service.Bind(ctx, "s1", walletOne))
	require.NoError(t, service.Verify(ctx, "s1", walletOne))

	// W2 presented on a session bound to W1
	err := service.Verify(ctx, "s1", walletTwo)
	assert.ErrorIs(t, err, errs.ErrWalletMismatch)
}

func TestSessionVerifyUnbound(t *testing.T) {
	service := newSessionService(t, 100)
	err := service.Verify(context.Background(), "never-bound", walletOne)
	assert.ErrorIs(t, err, errs.ErrNotBound)
}

func TestSessionQuota(t *testing.T) {
	service := newSessionService(t, 3)
	ctx := context.Background()

	require.NoError(t, service.Bind(ctx, "s1", walletOne))
	for i := 0; i < 3; i++ {
		require.NoError(t, service.Verify(ctx, "s1", walletOne))
	}

	err := service.Verify(ctx, "s1", walletOne)
	assert.ErrorIs(t, err, errs.ErrQuotaExceeded)
}

func TestSessionIdentityNormalization(t *testing.T) {
	service := newSessionService(t, 100)
	ctx := context.Background()

	require.NoError(t, service.Bind(ctx, "s1", walletOne))

	// Case-only differences are the same identity
	require.NoError(t, service.Verify(ctx, "s1", "0x742D35CC6634C0532925A3B0F26750C66D78EB66"))
}
