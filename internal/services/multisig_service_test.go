package services

import (
	"context"
	"errors"
	"testing"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testSigners = []string{
	"0x742d35Cc6634C0532925a3b0F26750C66d78EB66", // A
	"0x70997970C51812dc3A010C7d01b50e0d17dc79C8", // B
	"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", // C
}

func newMultisigService(t *testing.T) (*MultisigService, *fakeChainReader, *fakeBroadcaster) {
	t.Helper()
	reader := &fakeChainReader{}
	broadcaster := &fakeBroadcaster{}
	service := NewMultisigService(newTestDB(t), reader, broadcaster, nil, newTestLogger())
	return service, reader, broadcaster
}

func newTestWallet(t *testing.T, service *MultisigService, threshold int) *models.MultisigWallet {
	t.Helper()
	wallet, err := service.CreateWallet(context.Background(), "ops", 1, testSigners, threshold)
	require.NoError(t, err)
	return wallet
}

func proposeTest(t *testing.T, service *MultisigService, walletID string) *models.MultisigTransaction {
	t.Helper()
	tx, err := service.Propose(context.Background(), walletID,
		"0x5FbDB2315678afecb367f032d93F642f64180aa3", "1000000", "0x")
	require.NoError(t, err)
	return tx
}

func TestCreateWalletValidation(t *testing.T) {
	service, _, _ := newMultisigService(t)
	ctx := context.Background()

	_, err := service.CreateWallet(ctx, "bad", 1, testSigners, 0)
	assert.Error(t, err)

	_, err = service.CreateWallet(ctx, "bad", 1, testSigners, 4)
	assert.Error(t, err)

	_, err = service.CreateWallet(ctx, "bad", 1, nil, 1)
	assert.Error(t, err)

	// Duplicate signers collapse before the threshold check
	_, err = service.CreateWallet(ctx, "bad", 1,
		[]string{testSigners[0], testSigners[0]}, 2)
	assert.Error(t, err)

	wallet, err := service.CreateWallet(ctx, "ops", 1, testSigners, 2)
	require.NoError(t, err)
	assert.Len(t, wallet.Signers, 3)
	assert.Equal(t, 2, wallet.Threshold)
}

func TestProposeAllocatesGapFreeSequence(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)

	tx1 := proposeTest(t, service, wallet.ID)
	tx2 := proposeTest(t, service, wallet.ID)
	tx3 := proposeTest(t, service, wallet.ID)

	assert.Equal(t, uint64(1), tx1.SequenceNumber)
	assert.Equal(t, uint64(2), tx2.SequenceNumber)
	assert.Equal(t, uint64(3), tx3.SequenceNumber)
	assert.Equal(t, models.MultisigTransactionStatusPending, tx1.Status)
}

func TestConfirmThresholdLifecycle(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	ctx := context.Background()

	// A confirms: below threshold, still pending
	_, err := service.Confirm(ctx, tx.ID, testSigners[0], "sig-a")
	require.NoError(t, err)
	loaded, _, err := service.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusPending, loaded.Status)
	assert.Equal(t, 1, loaded.ConfirmationCount)

	// B confirms: threshold reached exactly once
	_, err = service.Confirm(ctx, tx.ID, testSigners[1], "sig-b")
	require.NoError(t, err)
	loaded, confirmations, err := service.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusConfirmed, loaded.Status)
	assert.Len(t, confirmations, 2)
	assert.NotNil(t, loaded.ConfirmedAt)

	// C confirms after the threshold: recorded, no state change
	_, err = service.Confirm(ctx, tx.ID, testSigners[2], "sig-c")
	require.NoError(t, err)
	loaded, confirmations, err = service.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusConfirmed, loaded.Status)
	assert.Len(t, confirmations, 3)
}

func TestConfirmDuplicateSignerIdempotent(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	ctx := context.Background()

	first, err := service.Confirm(ctx, tx.ID, testSigners[0], "sig-a")
	require.NoError(t, err)

	// Same signer again: no error, no double count
	second, err := service.Confirm(ctx, tx.ID, testSigners[0], "sig-a-again")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	loaded, confirmations, err := service.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusPending, loaded.Status)
	assert.Len(t, confirmations, 1)
	assert.Equal(t, 1, loaded.ConfirmationCount)
}

func TestConfirmConcurrentSignersReachThreshold(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)

	// Two distinct signers racing each other: each insert must be
	// visible to the other's recount, so the threshold fires and the
	// count reflects both rows
	start := make(chan struct{})
	errc := make(chan error, 2)
	for _, signer := range testSigners[:2] {
		go func(signer string) {
			<-start
			_, err := service.Confirm(context.Background(), tx.ID, signer, "sig-"+signer)
			errc <- err
		}(signer)
	}
	close(start)
	require.NoError(t, <-errc)
	require.NoError(t, <-errc)

	loaded, confirmations, err := service.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusConfirmed, loaded.Status)
	assert.Len(t, confirmations, 2)
	assert.Equal(t, 2, loaded.ConfirmationCount)
}

func TestConfirmUnknownSigner(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)

	_, err := service.Confirm(context.Background(), tx.ID,
		"0x90F79bf6EB2c4f870365E785982E1f101E93b906", "sig-d")
	assert.ErrorIs(t, err, errs.ErrUnknownSigner)
}

func confirmToThreshold(t *testing.T, service *MultisigService, txID string) {
	t.Helper()
	ctx := context.Background()
	_, err := service.Confirm(ctx, txID, testSigners[0], "sig-a")
	require.NoError(t, err)
	_, err = service.Confirm(ctx, txID, testSigners[1], "sig-b")
	require.NoError(t, err)
}

func TestExecuteRequiresThreshold(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)

	_, err := service.Execute(context.Background(), tx.ID)
	assert.ErrorIs(t, err, errs.ErrThresholdNotMet)
}

func TestExecuteRejectionReflectsCurrentStatus(t *testing.T) {
	service, _, broadcaster := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)

	// Already picked up by another executor: the rejection must name
	// the transition, not a threshold shortfall
	require.NoError(t, service.db.Model(&models.MultisigTransaction{}).
		Where("id = ?", tx.ID).
		Update("status", models.MultisigTransactionStatusExecuting).Error)

	_, err := service.Execute(context.Background(), tx.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.NotErrorIs(t, err, errs.ErrThresholdNotMet)
	assert.Equal(t, 0, broadcaster.calls)
}

func TestExecuteHappyPath(t *testing.T) {
	service, _, broadcaster := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	confirmToThreshold(t, service, tx.ID)
	ctx := context.Background()

	executed, err := service.Execute(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusExecuted, executed.Status)
	assert.Equal(t, "0xabc123", executed.ExecuteTxHash)
	assert.NotNil(t, executed.ExecutedAt)
	assert.Equal(t, 1, broadcaster.calls)
	assert.Equal(t, uint64(1), broadcaster.lastTx.sequence)

	// Executed is terminal
	_, err = service.Execute(ctx, tx.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Equal(t, 1, broadcaster.calls)
}

func TestExecuteBroadcastFailure(t *testing.T) {
	service, _, broadcaster := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	confirmToThreshold(t, service, tx.ID)
	ctx := context.Background()

	broadcaster.err = errors.New("relay unreachable")
	_, err := service.Execute(ctx, tx.ID)
	require.Error(t, err)

	loaded, _, err := service.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusFailed, loaded.Status)
	assert.Contains(t, loaded.ErrorReason, "relay unreachable")
}

func TestExecuteRefusesConsumedOnchainSequence(t *testing.T) {
	service, reader, broadcaster := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)

	// Deployed wallet whose on-chain counter already covers sequence 1
	require.NoError(t, service.db.Model(&models.MultisigWallet{}).
		Where("id = ?", wallet.ID).
		Update("address", "0x5FbDB2315678afecb367f032d93F642f64180aa3").Error)
	reader.sequence = 1

	tx := proposeTest(t, service, wallet.ID)
	confirmToThreshold(t, service, tx.ID)

	_, err := service.Execute(context.Background(), tx.ID)
	require.Error(t, err)
	assert.Equal(t, 0, broadcaster.calls)

	loaded, _, err := service.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusFailed, loaded.Status)
}

func TestReproposeFailedTransaction(t *testing.T) {
	service, _, broadcaster := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	confirmToThreshold(t, service, tx.ID)
	ctx := context.Background()

	broadcaster.err = errors.New("reverted")
	_, err := service.Execute(ctx, tx.ID)
	require.Error(t, err)

	// Only failed transactions can be re-proposed
	pending := proposeTest(t, service, wallet.ID)
	_, err = service.Repropose(ctx, pending.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	retry, err := service.Repropose(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusPending, retry.Status)
	assert.Equal(t, tx.ID, retry.RetryOf)
	// Fresh sequence number; the failed one is never reused
	assert.Equal(t, uint64(3), retry.SequenceNumber)

	// The original stays failed
	original, _, err := service.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MultisigTransactionStatusFailed, original.Status)
}

func TestSequencesIndependentPerWallet(t *testing.T) {
	service, _, _ := newMultisigService(t)
	walletA := newTestWallet(t, service, 2)
	walletB, err := service.CreateWallet(context.Background(), "ops-2", 1, testSigners, 2)
	require.NoError(t, err)

	a1 := proposeTest(t, service, walletA.ID)
	b1 := proposeTest(t, service, walletB.ID)
	a2 := proposeTest(t, service, walletA.ID)

	assert.Equal(t, uint64(1), a1.SequenceNumber)
	assert.Equal(t, uint64(1), b1.SequenceNumber)
	assert.Equal(t, uint64(2), a2.SequenceNumber)
}

func TestListTransactionsFilters(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	proposeTest(t, service, wallet.ID)
	confirmToThreshold(t, service, tx.ID)

	all, total, err := service.ListTransactions(context.Background(), 1, 20, wallet.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	confirmed, total, err := service.ListTransactions(context.Background(), 1, 20, wallet.ID,
		string(models.MultisigTransactionStatusConfirmed))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, confirmed, 1)
	assert.Equal(t, tx.ID, confirmed[0].ID)
}

func TestSystemStatusCounts(t *testing.T) {
	service, _, _ := newMultisigService(t)
	wallet := newTestWallet(t, service, 2)
	tx := proposeTest(t, service, wallet.ID)
	proposeTest(t, service, wallet.ID)
	confirmToThreshold(t, service, tx.ID)

	status, err := service.SystemStatus(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status["total"])
	assert.Equal(t, int64(1), status["pending"])
	assert.Equal(t, int64(1), status["confirmed"])
	assert.Equal(t, int64(0), status["executed"])
}

func TestGetTransactionNotFound(t *testing.T) {
	service, _, _ := newMultisigService(t)
	_, _, err := service.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPredictWalletAddress(t *testing.T) {
	factory := "0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67"
	initializer := []byte{0x01, 0x02, 0x03}
	initCodeHash := crypto.Keccak256([]byte{0xfe, 0xed})

	got := PredictWalletAddress(factory, initializer, 42, initCodeHash)

	salt := crypto.Keccak256(
		crypto.Keccak256(initializer),
		common.LeftPadBytes([]byte{42}, 32),
	)
	want := crypto.CreateAddress2(common.HexToAddress(factory), common.BytesToHash(salt), initCodeHash).Hex()
	assert.Equal(t, want, got)

	// Any input change moves the address
	assert.NotEqual(t, got, PredictWalletAddress(factory, initializer, 43, initCodeHash))
	assert.NotEqual(t, got, PredictWalletAddress(factory, []byte{0x01}, 42, initCodeHash))
}

func TestVerifyDeployedWallet(t *testing.T) {
	service, reader, _ := newMultisigService(t)
	ctx := context.Background()
	address := "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	// Nothing deployed yet
	deployed, err := service.VerifyDeployedWallet(ctx, address, "")
	require.NoError(t, err)
	assert.False(t, deployed)

	code := []byte{0x60, 0x80, 0x60, 0x40}
	reader.code = code

	deployed, err = service.VerifyDeployedWallet(ctx, address, "")
	require.NoError(t, err)
	assert.True(t, deployed)

	// Hash check catches a foreign contract at the predicted address
	expected := common.BytesToHash(crypto.Keccak256(code)).Hex()
	deployed, err = service.VerifyDeployedWallet(ctx, address, expected)
	require.NoError(t, err)
	assert.True(t, deployed)

	deployed, err = service.VerifyDeployedWallet(ctx, address,
		common.BytesToHash(crypto.Keccak256([]byte{0xde, 0xad})).Hex())
	require.NoError(t, err)
	assert.False(t, deployed)
}
