package services

import (
	"context"
	"testing"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceRegistryConsumeOnce(t *testing.T) {
	registry := NewNonceRegistry(newTestDB(t))
	ctx := context.Background()

	domain := models.AuthorizationDomain{
		ChainID:           1,
		VerifyingContract: testTokenContract,
	}

	require.NoError(t, registry.Consume(ctx, domain, "0xaa11"))

	// Identical pair is a replay forever
	err := registry.Consume(ctx, domain, "0xaa11")
	assert.ErrorIs(t, err, errs.ErrReplay)

	consumed, err := registry.IsConsumed(ctx, domain, "0xaa11")
	require.NoError(t, err)
	assert.True(t, consumed)
}

func TestNonceRegistryScopedByDomain(t *testing.T) {
	registry := NewNonceRegistry(newTestDB(t))
	ctx := context.Background()

	mainnet := models.AuthorizationDomain{ChainID: 1, VerifyingContract: testTokenContract}
	base := models.AuthorizationDomain{ChainID: 8453, VerifyingContract: testTokenContract}
	otherToken := models.AuthorizationDomain{ChainID: 1, VerifyingContract: "0x1111111111111111111111111111111111111111"}

	require.NoError(t, registry.Consume(ctx, mainnet, "0xbb22"))

	// Same nonce under a different chain or contract is a distinct pair
	require.NoError(t, registry.Consume(ctx, base, "0xbb22"))
	require.NoError(t, registry.Consume(ctx, otherToken, "0xbb22"))
}

func TestNonceRegistryCaseInsensitive(t *testing.T) {
	registry := NewNonceRegistry(newTestDB(t))
	ctx := context.Background()

	domain := models.AuthorizationDomain{ChainID: 1, VerifyingContract: testTokenContract}
	require.NoError(t, registry.Consume(ctx, domain, "0xAB"))

	err := registry.Consume(ctx, models.AuthorizationDomain{
		ChainID:           1,
		VerifyingContract: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	}, "0xab")
	assert.ErrorIs(t, err, errs.ErrReplay)
}
