package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"settlement-service/internal/config"

	"github.com/cenkalti/backoff/v4"
)

// DisbursementStatus mirrors the provider's transfer states.
type DisbursementStatus string

const (
	StatusPending   DisbursementStatus = "PENDING"
	StatusCompleted DisbursementStatus = "COMPLETED"
	StatusFailed    DisbursementStatus = "FAILED"
)

// ErrRejected marks a non-retryable validation rejection by the provider
// (bad phone number, amount below minimum, blocked recipient). The payout
// must be failed with the provider's reason, never retried.
var ErrRejected = errors.New("disbursement rejected by gateway")

// ErrUnavailable marks retryable transport failures. The payout stays
// in flight and is resolved later by a status poll.
var ErrUnavailable = errors.New("disbursement gateway unavailable")

// DisbursementResult is the provider's answer to an initiate call.
type DisbursementResult struct {
	GatewayRef string
	Status     DisbursementStatus
}

// StatusResult is the provider's answer to a status poll.
type StatusResult struct {
	Status  DisbursementStatus
	Receipt string
	Reason  string
}

// Client talks to the mobile-money rail over HTTP. One call in flight per
// payout; retries of transient errors happen inside Disburse with
// exponential backoff, bounded by the request timeout.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := 30 * time.Second
	if secs, err := strconv.Atoi(cfg.TimeoutSeconds); err == nil && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type initiateRequest struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Phone     string  `json:"phone"`
	Reference string  `json:"reference"`
}

type gatewayResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Receipt string `json:"receipt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Disburse initiates a transfer to the recipient. reference is the
// caller's stable idempotency key (the payout id): the provider treats a
// repeated reference as already processed and returns the original
// transfer, which is surfaced here as a completed result rather than a
// duplicate payment.
func (c *Client) Disburse(ctx context.Context, amount float64, currency, phone, reference string) (*DisbursementResult, error) {
	body, err := json.Marshal(initiateRequest{
		Amount:    amount,
		Currency:  currency,
		Phone:     phone,
		Reference: reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal disbursement request: %w", err)
	}

	var result *DisbursementResult
	operation := func() error {
		res, opErr := c.post(ctx, "/disbursements", body)
		if opErr != nil {
			if errors.Is(opErr, ErrRejected) {
				return backoff.Permanent(opErr)
			}
			return opErr
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*DisbursementResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var gw gatewayResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &gw); err != nil {
			return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return &DisbursementResult{GatewayRef: gw.ID, Status: DisbursementStatus(gw.Status)}, nil
	case resp.StatusCode == http.StatusConflict:
		// Already processed: idempotent success, never a double payment.
		return &DisbursementResult{GatewayRef: gw.ID, Status: StatusCompleted}, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrRejected, gw.Reason)
	default:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}
}

// CheckStatus polls a transfer by the reference used at initiation.
func (c *Client) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/disbursements/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status check returned %d", ErrUnavailable, resp.StatusCode)
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return nil, fmt.Errorf("%w: malformed status response: %v", ErrUnavailable, err)
	}

	return &StatusResult{
		Status:  DisbursementStatus(gw.Status),
		Receipt: gw.Receipt,
		Reason:  gw.Reason,
	}, nil
}
