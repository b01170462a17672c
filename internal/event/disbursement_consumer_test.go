package event

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type fakePayoutStore struct {
	payout *models.Payout

	markProcessingResult bool
	gatewayRef           string
	completed            bool
	failedReason         string
}

func (f *fakePayoutStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if f.payout == nil || f.payout.ID != id {
		return nil, fmt.Errorf("payout %s: %w", id, repository.ErrNotFound)
	}
	return f.payout, nil
}

func (f *fakePayoutStore) MarkProcessing(ctx context.Context, payoutID uuid.UUID) (bool, error) {
	return f.markProcessingResult, nil
}

func (f *fakePayoutStore) SetGatewayRef(ctx context.Context, payoutID uuid.UUID, gatewayRef string) error {
	f.gatewayRef = gatewayRef
	return nil
}

func (f *fakePayoutStore) MarkCompleted(ctx context.Context, payoutID uuid.UUID) error {
	f.completed = true
	return nil
}

func (f *fakePayoutStore) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) error {
	f.failedReason = reason
	return nil
}

type fakeGateway struct {
	result *gateway.DisbursementResult
	err    error
	calls  int
}

func (f *fakeGateway) Disburse(ctx context.Context, amount float64, currency, phone, reference string) (*gateway.DisbursementResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func pendingPayout() *models.Payout {
	return &models.Payout{
		ID:          uuid.New(),
		PolicyID:    uuid.New(),
		FarmerID:    "farmer-1",
		FarmerPhone: "+254700000001",
		Amount:      7200,
		Currency:    "KES",
		Status:      models.PayoutPending,
	}
}

// ============================================================================
// TEST SUITE: DISBURSEMENT HANDLING
// ============================================================================

func TestDisbursementHandle_CompletedTransfer(t *testing.T) {
	payout := pendingPayout()
	store := &fakePayoutStore{payout: payout, markProcessingResult: true}
	gw := &fakeGateway{result: &gateway.DisbursementResult{GatewayRef: "MPESA-001", Status: gateway.StatusCompleted}}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.NoError(t, err)
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, "MPESA-001", store.gatewayRef)
	assert.True(t, store.completed)
	assert.Empty(t, store.failedReason)
}

func TestDisbursementHandle_PendingTransferAwaitsReconciliation(t *testing.T) {
	payout := pendingPayout()
	store := &fakePayoutStore{payout: payout, markProcessingResult: true}
	gw := &fakeGateway{result: &gateway.DisbursementResult{GatewayRef: "MPESA-002", Status: gateway.StatusPending}}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.NoError(t, err)
	assert.Equal(t, "MPESA-002", store.gatewayRef)
	assert.False(t, store.completed, "A pending transfer is resolved by the reconciler, not here")
}

func TestDisbursementHandle_RejectedMarksFailed(t *testing.T) {
	payout := pendingPayout()
	store := &fakePayoutStore{payout: payout, markProcessingResult: true}
	gw := &fakeGateway{err: fmt.Errorf("%w: invalid phone number", gateway.ErrRejected)}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.NoError(t, err, "A rejection is handled, not requeued")
	assert.NotEmpty(t, store.failedReason)
	assert.False(t, store.completed)
}

func TestDisbursementHandle_GatewayUnavailableLeavesProcessing(t *testing.T) {
	payout := pendingPayout()
	store := &fakePayoutStore{payout: payout, markProcessingResult: true}
	gw := &fakeGateway{err: fmt.Errorf("%w: connection refused", gateway.ErrUnavailable)}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.NoError(t, err, "The transfer may have gone through; never retry blindly")
	assert.False(t, store.completed)
	assert.Empty(t, store.failedReason, "Unknown outcome must not be marked failed")
}

func TestDisbursementHandle_SkipsNonPendingPayout(t *testing.T) {
	payout := pendingPayout()
	payout.Status = models.PayoutCompleted
	store := &fakePayoutStore{payout: payout}
	gw := &fakeGateway{}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.NoError(t, err)
	assert.Equal(t, 0, gw.calls, "A redelivered message for a settled payout must not hit the gateway")
}

func TestDisbursementHandle_SkipsWhenClaimedElsewhere(t *testing.T) {
	payout := pendingPayout()
	store := &fakePayoutStore{payout: payout, markProcessingResult: false}
	gw := &fakeGateway{}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.NoError(t, err)
	assert.Equal(t, 0, gw.calls, "Losing the processing claim means another worker owns this payout")
}

func TestDisbursementHandle_UnknownPayoutDropped(t *testing.T) {
	store := &fakePayoutStore{}
	gw := &fakeGateway{}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: uuid.New()})

	assert.NoError(t, err, "A message for a payout that does not exist is dropped")
	assert.Equal(t, 0, gw.calls)
}

func TestDisbursementHandle_StoreErrorRequeues(t *testing.T) {
	payout := pendingPayout()
	store := &erroringPayoutStore{fakePayoutStore{payout: payout, markProcessingResult: true}}
	gw := &fakeGateway{result: &gateway.DisbursementResult{GatewayRef: "MPESA-003", Status: gateway.StatusCompleted}}
	consumer := NewDisbursementConsumer(nil, store, gw)

	err := consumer.handle(context.Background(), DisbursementMessage{PayoutID: payout.ID})

	assert.Error(t, err, "A database failure must surface so the delivery is requeued")
}

type erroringPayoutStore struct {
	fakePayoutStore
}

func (e *erroringPayoutStore) MarkCompleted(ctx context.Context, payoutID uuid.UUID) error {
	return errors.New("db connection lost")
}
