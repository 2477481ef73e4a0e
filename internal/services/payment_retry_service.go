package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"treasury-backend/internal/errs"
	"treasury-backend/internal/metrics"
	"treasury-backend/internal/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// PaymentTerms the price a paywalled endpoint quotes in its 402 response
// body
type PaymentTerms struct {
	ChainID   int64  `json:"chain_id"`
	Recipient string `json:"recipient"`
	Value     string `json:"value"` // wei, decimal string
	Resource  string `json:"resource,omitempty"`
}

// paymentEnvelope is what goes into the X-Payment header, base64-encoded
type paymentEnvelope struct {
	Authorization *models.TransferAuthorization `json:"authorization"`
	Signature     string                        `json:"signature"` // 0x hex, 65 bytes
}

// AuthorizationDecision decides whether the client pays the quoted terms.
// Returning an error declines; ErrPaymentDeclined is the conventional
// reason.
type AuthorizationDecision func(terms *PaymentTerms) error

// AutoAcceptBelow accepts any quote at or under ceiling wei and declines
// everything above it. Micro-payment policy for unattended clients.
func AutoAcceptBelow(ceiling *big.Int) AuthorizationDecision {
	return func(terms *PaymentTerms) error {
		value, ok := new(big.Int).SetString(terms.Value, 10)
		if !ok || value.Sign() < 0 {
			return fmt.Errorf("%w: unparseable quote %q", errs.ErrPaymentDeclined, terms.Value)
		}
		if value.Cmp(ceiling) > 0 {
			return fmt.Errorf("%w: quote %s exceeds ceiling %s", errs.ErrPaymentDeclined, value, ceiling)
		}
		return nil
	}
}

// PaymentRetryService fetches paywalled resources. A 402 response is not a
// failure: the service parses the quoted terms, consults the decision
// callback, attaches a signed transfer authorization, and retries the
// request exactly once. A second 402 after payment was attached means the
// server did not honor the payment — that is an error, never another
// retry.
type PaymentRetryService struct {
	authorizations *AuthorizationService
	decision       AuthorizationDecision
	httpClient     *http.Client
	logger         *logrus.Logger
}

// NewPaymentRetryService creates the 402-aware fetch client
func NewPaymentRetryService(authorizations *AuthorizationService, decision AuthorizationDecision, logger *logrus.Logger) *PaymentRetryService {
	return &PaymentRetryService{
		authorizations: authorizations,
		decision:       decision,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger,
	}
}

// Fetch requests url on behalf of the paying wallet. Non-402 responses
// pass through untouched; the caller owns the response body.
func (s *PaymentRetryService) Fetch(ctx context.Context, from, url string) (*http.Response, error) {
	resp, err := s.do(ctx, url, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	terms, err := s.parseTerms(resp)
	if err != nil {
		return nil, err
	}

	if err := s.decision(terms); err != nil {
		s.logger.WithFields(logrus.Fields{
			"url":   url,
			"value": terms.Value,
		}).Info("payment quote declined")
		return nil, err
	}

	header, err := s.buildPaymentHeader(ctx, from, terms)
	if err != nil {
		return nil, err
	}

	metrics.PaymentRetries.Inc()
	s.logger.WithFields(logrus.Fields{
		"url":      url,
		"value":    terms.Value,
		"chain_id": terms.ChainID,
	}).Info("retrying with attached payment")

	retried, err := s.do(ctx, url, header)
	if err != nil {
		return nil, err
	}
	if retried.StatusCode == http.StatusPaymentRequired {
		retried.Body.Close()
		metrics.PaymentRetryFailures.Inc()
		return nil, fmt.Errorf("%w: %s", errs.ErrPaymentRequiredLoop, url)
	}
	return retried, nil
}

func (s *PaymentRetryService) do(ctx context.Context, url, paymentHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if paymentHeader != "" {
		req.Header.Set("X-Payment", paymentHeader)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (s *PaymentRetryService) parseTerms(resp *http.Response) (*PaymentTerms, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("failed to read payment terms: %w", err)
	}
	var terms PaymentTerms
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&terms); err != nil {
		return nil, fmt.Errorf("unparseable payment terms: %w", err)
	}
	if terms.Recipient == "" || terms.Value == "" {
		return nil, fmt.Errorf("payment terms missing recipient or value")
	}
	return &terms, nil
}

// buildPaymentHeader signs a transfer authorization for the quoted terms
// and packs it into the X-Payment header value
func (s *PaymentRetryService) buildPaymentHeader(ctx context.Context, from string, terms *PaymentTerms) (string, error) {
	value, ok := new(big.Int).SetString(terms.Value, 10)
	if !ok {
		return "", fmt.Errorf("invalid payment value %q", terms.Value)
	}
	auth, signature, err := s.authorizations.Sign(ctx, terms.ChainID, from, terms.Recipient, value)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment authorization: %w", err)
	}
	envelope, err := json.Marshal(paymentEnvelope{
		Authorization: auth,
		Signature:     hexutil.Encode(signature),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode payment envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}
