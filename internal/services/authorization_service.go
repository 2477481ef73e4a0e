package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/errs"
	"treasury-backend/internal/events"
	"treasury-backend/internal/metrics"
	"treasury-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"
)

// Signer is the external party that produces EIP-712 signatures. It may
// decline or time out; the caller's context bounds the wait.
type Signer interface {
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

// AuthorizationService builds and validates domain-separated, nonce-bound
// transfer authorizations (EIP-3009 TransferWithAuthorization). Signing is
// delegated; validation recovers the signing address locally and consumes
// the nonce as its final, atomic step.
type AuthorizationService struct {
	signer    Signer
	nonces    *NonceRegistry
	publisher *events.Publisher
	logger    *logrus.Logger
	policy    config.AuthorizationConfig
	networks  *config.Config
}

// NewAuthorizationService creates the authorization codec
func NewAuthorizationService(signer Signer, nonces *NonceRegistry, publisher *events.Publisher, logger *logrus.Logger, cfg *config.Config) *AuthorizationService {
	return &AuthorizationService{
		signer:    signer,
		nonces:    nonces,
		publisher: publisher,
		logger:    logger,
		policy:    cfg.Authorization,
		networks:  cfg,
	}
}

// Sign builds a transfer authorization for the configured token on chainID
// and delegates the signature to the external signer. The validity window
// is the configured default (short, ≤1h in a stock deployment).
func (s *AuthorizationService) Sign(ctx context.Context, chainID int64, from, to string, value *big.Int) (*models.TransferAuthorization, []byte, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, nil, fmt.Errorf("transfer value must be positive")
	}

	network, ok := s.networks.NetworkByChainID(chainID)
	if !ok {
		return nil, nil, fmt.Errorf("no enabled network for chain %d", chainID)
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	auth := &models.TransferAuthorization{
		From:        common.HexToAddress(from).Hex(),
		To:          common.HexToAddress(to).Hex(),
		Value:       value.String(),
		ValidAfter:  now.Add(-1 * time.Second).Unix(),
		ValidBefore: now.Add(s.policy.DefaultValidity()).Unix(),
		Nonce:       nonce,
		Domain: models.AuthorizationDomain{
			Name:              network.TokenName,
			Version:           network.TokenVersion,
			ChainID:           network.ChainID,
			VerifyingContract: network.TokenContract,
		},
	}

	signature, err := s.signer.SignTypedData(ctx, TypedDataForAuthorization(auth))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %v", errs.ErrSignerTimeout, err)
		}
		return nil, nil, err
	}

	metrics.AuthorizationsSigned.Inc()
	s.logger.WithFields(logrus.Fields{
		"from":     auth.From,
		"to":       auth.To,
		"value":    auth.Value,
		"chain_id": chainID,
	}).Info("transfer authorization signed")

	return auth, signature, nil
}

// Validate checks an authorization and, when everything else holds,
// consumes its nonce. Order matters: domain, then window, then signature,
// and the nonce consumption last so a valid authorization succeeds at most
// once — the second identical call gets ErrReplay regardless of how valid
// the signature still is. An expired authorization is rejected without
// consuming the nonce; the permanent registry still blocks it if the same
// nonce was ever used while live.
func (s *AuthorizationService) Validate(ctx context.Context, auth *models.TransferAuthorization, signature []byte) error {
	if err := s.validate(ctx, auth, signature); err != nil {
		metrics.AuthorizationsRejected.WithLabelValues(errs.Code(err)).Inc()
		return err
	}
	metrics.AuthorizationsValidated.Inc()
	return nil
}

func (s *AuthorizationService) validate(ctx context.Context, auth *models.TransferAuthorization, signature []byte) error {
	network, ok := s.networks.NetworkByChainID(auth.Domain.ChainID)
	if !ok {
		return fmt.Errorf("%w: unknown chain %d", errs.ErrDomainMismatch, auth.Domain.ChainID)
	}
	if auth.Domain.Name != network.TokenName ||
		auth.Domain.Version != network.TokenVersion ||
		!strings.EqualFold(auth.Domain.VerifyingContract, network.TokenContract) {
		return errs.ErrDomainMismatch
	}

	now := time.Now().Unix()
	if now < auth.ValidAfter {
		return errs.ErrNotYetValid
	}
	if now >= auth.ValidBefore {
		return errs.ErrExpired
	}

	if err := s.verifySignature(auth, signature); err != nil {
		return err
	}

	if err := s.nonces.Consume(ctx, auth.Domain, auth.Nonce); err != nil {
		if errors.Is(err, errs.ErrReplay) {
			s.logger.WithFields(logrus.Fields{
				"chain_id": auth.Domain.ChainID,
				"contract": auth.Domain.VerifyingContract,
				"nonce":    auth.Nonce,
			}).Warn("authorization replay rejected")
			s.publisher.PublishReplayRejected(auth.Domain, auth.Nonce)
		}
		return err
	}

	return nil
}

// verifySignature recovers the signing address from the EIP-712 digest and
// compares it against the authorizing address
func (s *AuthorizationService) verifySignature(auth *models.TransferAuthorization, signature []byte) error {
	if len(signature) != 65 {
		return fmt.Errorf("%w: signature length %d, want 65", errs.ErrBadSignature, len(signature))
	}

	digest, _, err := apitypes.TypedDataAndHash(TypedDataForAuthorization(auth))
	if err != nil {
		return fmt.Errorf("failed to hash typed data: %w", err)
	}

	// Wallets emit v as 27/28, geth's recovery expects 0/1
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pubKey) != common.HexToAddress(auth.From) {
		return errs.ErrBadSignature
	}
	return nil
}

// WindowSuspicious reports whether the authorization's validity window
// exceeds the configured policy ceiling (7 days by default). The codec
// never rejects on this alone — callers must surface the flag instead of
// silently accepting the window.
func (s *AuthorizationService) WindowSuspicious(auth *models.TransferAuthorization) bool {
	window := time.Duration(auth.ValidBefore-auth.ValidAfter) * time.Second
	if window > s.policy.SuspiciousWindow() {
		metrics.SuspiciousWindows.Inc()
		return true
	}
	return false
}

// TypedDataForAuthorization builds the EIP-712 typed data for a transfer
// authorization. The domain covers (name, version, chainId,
// verifyingContract), so an identical nonce signed for one token or chain
// can never be replayed against another.
func TypedDataForAuthorization(auth *models.TransferAuthorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              auth.Domain.Name,
			Version:           auth.Domain.Version,
			ChainId:           ethmath.NewHexOrDecimal256(auth.Domain.ChainID),
			VerifyingContract: auth.Domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  strconv.FormatInt(auth.ValidAfter, 10),
			"validBefore": strconv.FormatInt(auth.ValidBefore, 10),
			"nonce":       auth.Nonce,
		},
	}
}

// randomNonce returns a random 32-byte nonce as 0x-prefixed hex
func randomNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return hexutil.Encode(nonce[:]), nil
}
