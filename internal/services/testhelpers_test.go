package services

import (
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"path/filepath"
	"testing"

	"treasury-backend/internal/config"
	"treasury-backend/internal/db"
	"treasury-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway sqlite store with the production schema.
// TranslateError matches the postgres setup: the services depend on unique
// violations surfacing as gorm.ErrDuplicatedKey.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "treasury_test.db")
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// A single connection keeps concurrent writers from tripping over
	// sqlite's whole-file write lock
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(database))
	return database
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

const testTokenContract = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

// newTestConfig returns a config with one enabled network on chain 1
func newTestConfig() *config.Config {
	return &config.Config{
		Blockchain: config.BlockchainConfig{
			Networks: map[string]config.NetworkConfig{
				"test": {
					ChainID:       1,
					Name:          "test",
					TokenContract: testTokenContract,
					TokenName:     "USD Coin",
					TokenVersion:  "2",
					Enabled:       true,
				},
			},
		},
		Authorization: config.AuthorizationConfig{
			DefaultValiditySeconds: 3600,
			SuspiciousWindowDays:   7,
		},
	}
}

// fakeSigner signs EIP-712 digests with a real in-memory key so the
// recovery path in Validate is exercised end to end
type fakeSigner struct {
	key *ecdsa.PrivateKey
	err error
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeSigner{key: key}
}

func (s *fakeSigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

func (s *fakeSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest, s.key)
}

// fakeChainReader serves canned chain state
type fakeChainReader struct {
	code     []byte
	sequence uint64
	callErr  error
}

func (r *fakeChainReader) GetCode(ctx context.Context, address string) ([]byte, error) {
	return r.code, nil
}

func (r *fakeChainReader) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	if r.callErr != nil {
		return nil, r.callErr
	}
	return common.LeftPadBytes(new(big.Int).SetUint64(r.sequence).Bytes(), 32), nil
}

func (r *fakeChainReader) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	return 21000, nil
}

func (r *fakeChainReader) BalanceOf(ctx context.Context, token, address string) (*big.Int, error) {
	return big.NewInt(0), nil
}

// fakeBroadcaster records broadcasts and can be told to fail
type fakeBroadcaster struct {
	err    error
	calls  int
	lastTx struct {
		wallet   string
		sequence uint64
	}
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, walletAddress string, sequenceNumber uint64, target, value, payload string) (string, error) {
	b.calls++
	b.lastTx.wallet = walletAddress
	b.lastTx.sequence = sequenceNumber
	if b.err != nil {
		return "", b.err
	}
	return "0xabc123", nil
}

// testNonce builds a 32-byte nonce ending in b, as 0x hex. The EIP-712
// bytes32 encoding requires exactly 32 bytes.
func testNonce(b byte) string {
	var nonce [32]byte
	nonce[31] = b
	return hexutil.Encode(nonce[:])
}

// signedAuthorization builds a valid authorization signed by the fake key
func signedAuthorization(t *testing.T, signer *fakeSigner, validAfter, validBefore int64, nonce string) (*models.TransferAuthorization, []byte) {
	t.Helper()
	auth := &models.TransferAuthorization{
		From:        signer.Address(),
		To:          "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Value:       "1000000",
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
		Domain: models.AuthorizationDomain{
			Name:              "USD Coin",
			Version:           "2",
			ChainID:           1,
			VerifyingContract: testTokenContract,
		},
	}
	signature, err := signer.SignTypedData(context.Background(), TypedDataForAuthorization(auth))
	require.NoError(t, err)
	return auth, signature
}
