package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"settlement-service/internal/evidence"
	"settlement-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type fakeLedger struct {
	policy         *models.Policy
	priorPayouts   float64
	insertedResult bool

	recordedAssessment *models.DamageAssessment
	recordedPayout     *models.Payout
	recordedStatus     *models.PolicyStatus

	priorAssessment *models.DamageAssessment
	priorPayout     *models.Payout
}

func (f *fakeLedger) GetPolicy(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	if f.policy == nil || f.policy.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return f.policy, nil
}

func (f *fakeLedger) SumActivePayouts(ctx context.Context, policyID uuid.UUID) (float64, error) {
	return f.priorPayouts, nil
}

func (f *fakeLedger) RecordSettlement(ctx context.Context, assessment *models.DamageAssessment, payout *models.Payout, newStatus *models.PolicyStatus) (bool, error) {
	if !f.insertedResult {
		return false, nil
	}
	f.recordedAssessment = assessment
	f.recordedPayout = payout
	f.recordedStatus = newStatus
	return true, nil
}

func (f *fakeLedger) FindAssessmentByTrigger(ctx context.Context, policyID uuid.UUID, triggerDate int64) (*models.DamageAssessment, error) {
	if f.priorAssessment == nil {
		return nil, errors.New("no prior assessment")
	}
	return f.priorAssessment, nil
}

func (f *fakeLedger) FindPayoutByAssessment(ctx context.Context, assessmentID uuid.UUID) (*models.Payout, error) {
	return f.priorPayout, nil
}

type fakeLocker struct {
	acquired int
	released int
}

func (f *fakeLocker) AcquirePolicyLock(ctx context.Context, policyID uuid.UUID) (func(), error) {
	f.acquired++
	return func() { f.released++ }, nil
}

type fakeArchiver struct {
	result   evidence.ArchiveResult
	archived *evidence.Document
}

func (f *fakeArchiver) Archive(ctx context.Context, doc *evidence.Document) evidence.ArchiveResult {
	f.archived = doc
	return f.result
}

type fakePublisher struct {
	published []uuid.UUID
	err       error
}

func (f *fakePublisher) PublishDisbursement(ctx context.Context, policyID, payoutID uuid.UUID, amount float64) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payoutID)
	return nil
}

func activeTestPolicy() *models.Policy {
	now := time.Now().Unix()
	return &models.Policy{
		ID:                uuid.New(),
		PolicyNumber:      "POL-2026-0001",
		FarmerID:          "farmer-1",
		FarmerPhone:       "+254700000001",
		PlotID:            uuid.New(),
		CoverageType:      models.CoverageDrought,
		SumInsured:        10000,
		Premium:           500,
		CoverageStartDate: now - 30*24*60*60,
		CoverageEndDate:   now + 30*24*60*60,
		Status:            models.PolicyActive,
	}
}

func newTestOrchestrator(ledger *fakeLedger, locks *fakeLocker, archiver *fakeArchiver, publisher *fakePublisher) *Orchestrator {
	return NewOrchestrator(ledger, locks, archiver, publisher, "KES")
}

func archivedOK() evidence.ArchiveResult {
	return evidence.ArchiveResult{
		ContentRef:    "abc123",
		RetrievalURLs: []string{"http://evidence.local/abc123.json"},
	}
}

// ============================================================================
// TEST SUITE 1: PRECONDITIONS
// ============================================================================

func TestSettle_PolicyNotFound(t *testing.T) {
	ledger := &fakeLedger{insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           uuid.New(),
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestSettle_PolicyNotActive(t *testing.T) {
	policy := activeTestPolicy()
	policy.Status = models.PolicyPendingPayment
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.ErrorIs(t, err, ErrPolicyNotActive)
	assert.Nil(t, ledger.recordedAssessment, "Nothing may be persisted on a rejected trigger")
}

func TestSettle_TriggerOutsideCoveragePeriod(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
		TriggerDate:        policy.CoverageEndDate + 1,
	})

	assert.ErrorIs(t, err, ErrTriggerOutsideCoverage)
}

func TestSettle_InvalidIndexRange(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 1.5,
		VegetationIndex:    0.6,
	})

	assert.ErrorIs(t, err, ErrInvalidInputRange)
	assert.Nil(t, ledger.recordedAssessment)
}

// ============================================================================
// TEST SUITE 2: SETTLEMENT OUTCOMES
// ============================================================================

func TestSettle_BelowThresholdRecordsAssessmentOnly(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	publisher := &fakePublisher{}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, publisher)

	result, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.2,
		VegetationIndex:    0.1,
	})

	assert.NoError(t, err)
	assert.NotNil(t, ledger.recordedAssessment, "The assessment is part of the audit trail even without a payout")
	assert.Nil(t, result.Payout, "Damage below the threshold creates no payout")
	assert.Empty(t, publisher.published)
}

func TestSettle_CreatesAndPublishesPayout(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	publisher := &fakePublisher{}
	locks := &fakeLocker{}
	orch := newTestOrchestrator(ledger, locks, &fakeArchiver{result: archivedOK()}, publisher)

	result, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.NoError(t, err)
	assert.NotNil(t, result.Payout)
	assert.Equal(t, 7200.0, result.Payout.Amount, "Damage 0.72 on 10000 sum insured pays 7200")
	assert.Equal(t, models.PayoutPending, result.Payout.Status)
	assert.Equal(t, "KES", result.Payout.Currency)
	assert.False(t, result.Capped)
	assert.True(t, result.Proof.ProofVerifiable)
	assert.Equal(t, "abc123", result.Proof.ProofRef)
	assert.Equal(t, []uuid.UUID{result.Payout.ID}, publisher.published)
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released, "The policy lock must be released after settlement")
}

func TestSettle_CapsPayoutToRemainingCoverage(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, priorPayouts: 9000, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	result, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.NoError(t, err)
	assert.Equal(t, 1000.0, result.Payout.Amount, "Only 1000 of coverage remains")
	assert.True(t, result.Capped)
}

func TestSettle_CoverageExhaustedStillRecordsAssessment(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, priorPayouts: 10000, insertedResult: true}
	publisher := &fakePublisher{}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, publisher)

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.ErrorIs(t, err, ErrCoverageExhausted)
	assert.NotNil(t, ledger.recordedAssessment, "The rejected trigger still lands on the audit trail")
	assert.Nil(t, ledger.recordedPayout)
	assert.Empty(t, publisher.published)
}

func TestSettle_HighSeverityClosesPolicy(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.9,
		VegetationIndex:    0.9,
	})

	assert.NoError(t, err)
	assert.NotNil(t, ledger.recordedStatus)
	assert.Equal(t, models.PolicyClaimed, *ledger.recordedStatus, "Damage 0.9 closes the policy as claimed")
}

func TestSettle_ModerateDamageKeepsPolicyActive(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.5,
		VegetationIndex:    0.5,
	})

	assert.NoError(t, err)
	assert.Nil(t, ledger.recordedStatus, "A partial payout leaves the policy open for further triggers")
}

// ============================================================================
// TEST SUITE 3: IDEMPOTENCY AND DEGRADED EVIDENCE
// ============================================================================

func TestSettle_RedeliveredTriggerReturnsPriorSettlement(t *testing.T) {
	policy := activeTestPolicy()
	priorAssessment := &models.DamageAssessment{
		ID:          uuid.New(),
		PolicyID:    policy.ID,
		DamageIndex: 0.72,
		EvidenceRef: "abc123",
	}
	priorPayout := &models.Payout{
		ID:       uuid.New(),
		PolicyID: policy.ID,
		Amount:   7200,
		Status:   models.PayoutCompleted,
	}
	ledger := &fakeLedger{
		policy:          policy,
		insertedResult:  false,
		priorAssessment: priorAssessment,
		priorPayout:     priorPayout,
	}
	publisher := &fakePublisher{}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, publisher)

	result, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
		TriggerDate:        time.Now().Unix(),
	})

	assert.NoError(t, err)
	assert.True(t, result.AlreadySettled)
	assert.Equal(t, priorAssessment.ID, result.Assessment.ID)
	assert.Equal(t, priorPayout.ID, result.Payout.ID)
	assert.Empty(t, publisher.published, "A replay must never enqueue a second disbursement")
}

func TestSettle_DegradedEvidenceDoesNotBlockPayout(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	archiver := &fakeArchiver{result: evidence.ArchiveResult{ContentRef: evidence.DegradedRef, Degraded: true}}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, archiver, &fakePublisher{})

	result, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.NoError(t, err, "Evidence store outage must not block the payout path")
	assert.NotNil(t, result.Payout)
	assert.False(t, result.Proof.ProofVerifiable)
	assert.Equal(t, evidence.DegradedRef, result.Assessment.EvidenceRef)
}

func TestSettle_PublishFailureStillSettles(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	publisher := &fakePublisher{err: errors.New("broker down")}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, publisher)

	result, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.NoError(t, err, "The payout is committed; the reconciler republishes it later")
	assert.NotNil(t, result.Payout)
}

func TestSettle_SequentialSettlementsNeverOverspendCoverage(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, &fakeArchiver{result: archivedOK()}, &fakePublisher{})

	total := 0.0
	triggerDate := time.Now().Unix()
	for i := 0; i < 5; i++ {
		result, err := orch.Settle(context.Background(), models.SettleRequest{
			PolicyID:           policy.ID,
			WeatherStressIndex: 0.8,
			VegetationIndex:    0.6,
			TriggerDate:        triggerDate + int64(i),
		})
		if errors.Is(err, ErrCoverageExhausted) {
			break
		}
		assert.NoError(t, err)
		if result.Payout != nil {
			total += result.Payout.Amount
			ledger.priorPayouts = total
		}
	}

	assert.LessOrEqual(t, total, policy.SumInsured,
		"Cumulative payouts must never exceed the sum insured")
	assert.Equal(t, policy.SumInsured, total,
		"Repeated 0.72 damage settlements consume exactly the sum insured")
}

func TestSettle_ArchiveDocumentCarriesCalculationInputs(t *testing.T) {
	policy := activeTestPolicy()
	ledger := &fakeLedger{policy: policy, insertedResult: true}
	archiver := &fakeArchiver{result: archivedOK()}
	orch := newTestOrchestrator(ledger, &fakeLocker{}, archiver, &fakePublisher{})

	_, err := orch.Settle(context.Background(), models.SettleRequest{
		PolicyID:           policy.ID,
		WeatherStressIndex: 0.8,
		VegetationIndex:    0.6,
	})

	assert.NoError(t, err)
	assert.NotNil(t, archiver.archived)
	assert.Equal(t, policy.ID, archiver.archived.PolicyID)
	assert.Equal(t, 0.8, archiver.archived.WeatherStressIndex)
	assert.Equal(t, 0.6, archiver.archived.VegetationIndex)
	assert.InDelta(t, 0.72, archiver.archived.DamageIndex, 0.0001)
	assert.Equal(t, WeatherWeight, archiver.archived.Weighting.WeatherWeight)
	assert.Equal(t, ClaimThreshold, archiver.archived.Thresholds.ClaimThreshold)
}
