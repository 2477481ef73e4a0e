package clients

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"treasury-backend/internal/config"
	"treasury-backend/internal/errs"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignerClient talks to the external signing service that holds the keys
// (a human-approved or hardware-backed signer). The service may decline a
// request or not answer at all; both outcomes map onto distinct taxonomy
// errors so callers can tell policy rejection from unavailability.
type SignerClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// SignTypedDataRequest typed-data signature request
type SignTypedDataRequest struct {
	TypedData apitypes.TypedData `json:"typed_data"`
}

// SignTypedDataResponse typed-data signature response
type SignTypedDataResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"` // 65-byte hex
	Error     string `json:"error,omitempty"`
}

// NewSignerClient creates a signer service client
func NewSignerClient(cfg config.SignerConfig) *SignerClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	return &SignerClient{
		baseURL:   strings.TrimSuffix(cfg.ServiceURL, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SignTypedData asks the signing service for an EIP-712 signature over the
// given typed data. The caller's context bounds the wait; a deadline hit
// surfaces as ErrSignerTimeout, a service rejection as ErrSignerDeclined.
func (c *SignerClient) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	body, err := json.Marshal(SignTypedDataRequest{TypedData: typedData})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sign/typed-data", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", errs.ErrSignerTimeout, err)
		}
		return nil, fmt.Errorf("signer request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read signer response: %w", err)
	}

	var signResp SignTypedDataResponse
	if err := json.Unmarshal(data, &signResp); err != nil {
		return nil, fmt.Errorf("failed to parse signer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !signResp.Success {
		msg := signResp.Error
		if msg == "" {
			msg = fmt.Sprintf("signer returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrSignerDeclined, msg)
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(signResp.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer returned malformed signature: %w", err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("signer returned signature of length %d, want 65", len(signature))
	}

	return signature, nil
}

// isTimeout reports whether err is a net-level timeout
func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
