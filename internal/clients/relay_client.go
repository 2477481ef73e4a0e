package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"treasury-backend/internal/config"
)

// RelayClient submits approved multisig executions to the relayer service
// that owns the broadcasting key. The backend never holds keys itself.
type RelayClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// ExecuteRequest relayed execution request
type ExecuteRequest struct {
	WalletAddress  string `json:"wallet_address"`
	SequenceNumber uint64 `json:"sequence_number"`
	Target         string `json:"target"`
	Value          string `json:"value"`   // wei, decimal string
	Payload        string `json:"payload"` // calldata, hex
}

// ExecuteResponse relayed execution response
type ExecuteResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewRelayClient creates a relayer service client
func NewRelayClient(cfg config.RelayerConfig) *RelayClient {
	return &RelayClient{
		baseURL:   strings.TrimSuffix(cfg.ServiceURL, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Broadcast submits the execution and returns the broadcast transaction
// hash. A non-success response or transport failure is an execution
// failure; the consensus service decides how to record it.
func (c *RelayClient) Broadcast(ctx context.Context, walletAddress string, sequenceNumber uint64, target, value, payload string) (string, error) {
	body, err := json.Marshal(ExecuteRequest{
		WalletAddress:  walletAddress,
		SequenceNumber: sequenceNumber,
		Target:         target,
		Value:          value,
		Payload:        payload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/execute", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read relayer response: %w", err)
	}

	var execResp ExecuteResponse
	if err := json.Unmarshal(data, &execResp); err != nil {
		return "", fmt.Errorf("failed to parse relayer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !execResp.Success {
		msg := execResp.Error
		if msg == "" {
			msg = fmt.Sprintf("relayer returned status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("execution broadcast rejected: %s", msg)
	}

	return execResp.TxHash, nil
}
