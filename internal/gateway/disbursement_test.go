package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"settlement-service/internal/config"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

func newTestClient(serverURL string) *Client {
	return NewClient(config.GatewayConfig{
		BaseURL:        serverURL,
		APIKey:         "test-key",
		TimeoutSeconds: "5",
	})
}

// ============================================================================
// TEST SUITE: DISBURSE
// ============================================================================

func TestDisburse_AcceptedTransfer(t *testing.T) {
	var gotReq initiateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/disbursements", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewDecoder(r.Body).Decode(&gotReq)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(gatewayResponse{ID: "GW-001", Status: "PENDING"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Disburse(context.Background(), 7200, "KES", "+254700000001", "payout-ref-1")

	assert.NoError(t, err)
	assert.Equal(t, "GW-001", result.GatewayRef)
	assert.Equal(t, StatusPending, result.Status)
	assert.Equal(t, "payout-ref-1", gotReq.Reference, "The payout id travels as the idempotency reference")
	assert.Equal(t, 7200.0, gotReq.Amount)
}

func TestDisburse_DuplicateReferenceIsCompletedNotDoublePaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(gatewayResponse{ID: "GW-001", Status: "COMPLETED"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Disburse(context.Background(), 7200, "KES", "+254700000001", "payout-ref-1")

	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status, "409 means the provider already processed this reference")
}

func TestDisburse_RejectionIsPermanent(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(gatewayResponse{Status: "FAILED", Reason: "invalid phone number"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Disburse(context.Background(), 7200, "KES", "bad-phone", "payout-ref-1")

	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "invalid phone number")
	assert.Equal(t, 1, attempts, "Validation rejections must not be retried")
}

func TestDisburse_ServerErrorsAreRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(gatewayResponse{ID: "GW-002", Status: "COMPLETED"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.Disburse(context.Background(), 7200, "KES", "+254700000001", "payout-ref-2")

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts, "Transient failures retry until the provider answers")
	assert.Equal(t, "GW-002", result.GatewayRef)
}

func TestDisburse_ExhaustedRetriesReportUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Disburse(context.Background(), 7200, "KES", "+254700000001", "payout-ref-3")

	assert.ErrorIs(t, err, ErrUnavailable)
}

// ============================================================================
// TEST SUITE: STATUS POLL
// ============================================================================

func TestCheckStatus_CompletedTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/disbursements/payout-ref-1", r.URL.Path)

		json.NewEncoder(w).Encode(gatewayResponse{Status: "COMPLETED", Receipt: "RCPT-9"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	status, err := client.CheckStatus(context.Background(), "payout-ref-1")

	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, "RCPT-9", status.Receipt)
}

func TestCheckStatus_ProviderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CheckStatus(context.Background(), "payout-ref-1")

	assert.ErrorIs(t, err, ErrUnavailable)
}
