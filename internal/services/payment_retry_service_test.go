package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"treasury-backend/internal/errs"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentService(t *testing.T, ceiling *big.Int) (*PaymentRetryService, *fakeSigner) {
	t.Helper()
	signer := newFakeSigner(t)
	authorizations := newAuthorizationService(t, signer)
	return NewPaymentRetryService(authorizations, AutoAcceptBelow(ceiling), newTestLogger()), signer
}

func paywallTerms(value string) PaymentTerms {
	return PaymentTerms{
		ChainID:   1,
		Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Value:     value,
	}
}

func TestFetchPassesThroughNon402(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("free content"))
	}))
	defer server.Close()

	service, signer := newPaymentService(t, big.NewInt(1_000_000))
	resp, err := service.Fetch(context.Background(), signer.Address(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetchPaysOnceAndRetries(t *testing.T) {
	var requests int
	var sawEnvelope paymentEnvelope

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		header := r.Header.Get("X-Payment")
		if header == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(paywallTerms("500000"))
			return
		}
		raw, err := base64.StdEncoding.DecodeString(header)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &sawEnvelope))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("paid content"))
	}))
	defer server.Close()

	service, signer := newPaymentService(t, big.NewInt(1_000_000))
	resp, err := service.Fetch(context.Background(), signer.Address(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, requests)

	// The attached authorization covers exactly the quoted terms and
	// carries a real signature
	require.NotNil(t, sawEnvelope.Authorization)
	assert.Equal(t, "500000", sawEnvelope.Authorization.Value)
	assert.Equal(t, signer.Address(), sawEnvelope.Authorization.From)
	signature, err := hexutil.Decode(sawEnvelope.Signature)
	require.NoError(t, err)
	assert.Len(t, signature, 65)
}

func TestFetchNeverRetriesTwice(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(paywallTerms("500000"))
	}))
	defer server.Close()

	service, signer := newPaymentService(t, big.NewInt(1_000_000))
	_, err := service.Fetch(context.Background(), signer.Address(), server.URL)
	assert.ErrorIs(t, err, errs.ErrPaymentRequiredLoop)
	assert.Equal(t, 2, requests)
}

func TestFetchDeclinesAboveCeiling(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(paywallTerms("2000000"))
	}))
	defer server.Close()

	service, signer := newPaymentService(t, big.NewInt(1_000_000))
	_, err := service.Fetch(context.Background(), signer.Address(), server.URL)
	assert.ErrorIs(t, err, errs.ErrPaymentDeclined)
	assert.Equal(t, 1, requests)
}

func TestFetchRejectsMalformedTerms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	service, signer := newPaymentService(t, big.NewInt(1_000_000))
	_, err := service.Fetch(context.Background(), signer.Address(), server.URL)
	assert.Error(t, err)
}
