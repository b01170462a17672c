package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"settlement-service/internal/evidence"
	"settlement-service/internal/models"
	utils "settlement-service/internal/utils"

	"github.com/google/uuid"
)

// claimedCoverageRatio: a payout consuming at least this share of the
// remaining coverage closes the policy as claimed.
const claimedCoverageRatio = 0.80

// Ledger is the persistence boundary of the orchestrator. The production
// implementation lives in internal/repository and executes
// RecordSettlement in a single database transaction.
type Ledger interface {
	// GetPolicy returns ErrPolicyNotFound when no such policy exists.
	GetPolicy(ctx context.Context, id uuid.UUID) (*models.Policy, error)
	// SumActivePayouts sums completed and in-flight (pending/processing)
	// payout amounts for a policy.
	SumActivePayouts(ctx context.Context, policyID uuid.UUID) (float64, error)
	// RecordSettlement atomically inserts the assessment, the optional
	// payout, and the optional policy status transition. It returns
	// inserted=false without writing anything when an assessment with the
	// same (policy, trigger date) idempotency key already exists.
	RecordSettlement(ctx context.Context, assessment *models.DamageAssessment, payout *models.Payout, newStatus *models.PolicyStatus) (inserted bool, err error)
	// FindAssessmentByTrigger loads the assessment recorded for an
	// earlier delivery of the same trigger event.
	FindAssessmentByTrigger(ctx context.Context, policyID uuid.UUID, triggerDate int64) (*models.DamageAssessment, error)
	// FindPayoutByAssessment returns (nil, nil) when the assessment
	// produced no payout.
	FindPayoutByAssessment(ctx context.Context, assessmentID uuid.UUID) (*models.Payout, error)
}

// Locker serializes coverage accounting per policy.
type Locker interface {
	AcquirePolicyLock(ctx context.Context, policyID uuid.UUID) (release func(), err error)
}

// Archiver stores the settlement proof document. Archiving failures are
// reported through ArchiveResult.Degraded, never as errors.
type Archiver interface {
	Archive(ctx context.Context, doc *evidence.Document) evidence.ArchiveResult
}

// DisbursementPublisher enqueues a created payout onto the
// payout-disbursement queue.
type DisbursementPublisher interface {
	PublishDisbursement(ctx context.Context, policyID, payoutID uuid.UUID, amount float64) error
}

// Orchestrator sequences damage calculation, evidence archiving, and
// ledger writes for one trigger event. All collaborators are injected at
// construction time.
type Orchestrator struct {
	ledger    Ledger
	locks     Locker
	archiver  Archiver
	publisher DisbursementPublisher
	currency  string
}

func NewOrchestrator(ledger Ledger, locks Locker, archiver Archiver, publisher DisbursementPublisher, currency string) *Orchestrator {
	return &Orchestrator{
		ledger:    ledger,
		locks:     locks,
		archiver:  archiver,
		publisher: publisher,
		currency:  currency,
	}
}

// Settle runs the full settlement pipeline for one trigger event.
//
// Preconditions are checked in order: policy exists, policy active,
// trigger date inside the coverage period, indices in range. The damage
// assessment is always persisted once preconditions pass, for the audit
// trail; the payout row is conditional on a positive amount. Redelivered
// triggers hit the (policy, trigger date) idempotency key and return the
// original settlement instead of paying twice.
func (s *Orchestrator) Settle(ctx context.Context, req models.SettleRequest) (*models.SettlementResult, error) {
	policy, err := s.ledger.GetPolicy(ctx, req.PolicyID)
	if err != nil {
		return nil, err
	}

	if policy.Status != models.PolicyActive {
		return nil, fmt.Errorf("%w: policy %s is %s", ErrPolicyNotActive, policy.ID, policy.Status)
	}

	triggerDate := req.TriggerDate
	if triggerDate == 0 {
		triggerDate = time.Now().Unix()
	}
	if !policy.CoversDate(triggerDate) {
		return nil, fmt.Errorf("%w: trigger_date=%d coverage=[%d,%d]",
			ErrTriggerOutsideCoverage, triggerDate, policy.CoverageStartDate, policy.CoverageEndDate)
	}

	damageIndex, err := DamageIndex(req.WeatherStressIndex, req.VegetationIndex)
	if err != nil {
		return nil, err
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerManual
	}

	// Coverage accounting and the ledger write must not interleave with a
	// concurrent settlement against the same policy.
	release, err := s.locks.AcquirePolicyLock(ctx, policy.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	defer release()

	priorPayouts, err := s.ledger.SumActivePayouts(ctx, policy.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum prior payouts: %w", err)
	}

	amount, capped, calcErr := PayoutAmount(policy.SumInsured, damageIndex, priorPayouts)

	archived := s.archiver.Archive(ctx, &evidence.Document{
		PolicyID:           policy.ID,
		PolicyNumber:       policy.PolicyNumber,
		PlotID:             policy.PlotID,
		FarmerID:           policy.FarmerID,
		WeatherStressIndex: req.WeatherStressIndex,
		VegetationIndex:    req.VegetationIndex,
		DamageIndex:        damageIndex,
		Weighting: evidence.Weighting{
			WeatherWeight:    WeatherWeight,
			VegetationWeight: VegetationWeight,
		},
		Thresholds: evidence.Thresholds{
			ClaimThreshold:     ClaimThreshold,
			HighSeverityCutoff: HighSeverityCutoff,
		},
		TriggerDate: triggerDate,
		GeneratedAt: time.Now().UTC(),
	})

	assessment := &models.DamageAssessment{
		ID:                 uuid.New(),
		PolicyID:           policy.ID,
		FarmerID:           policy.FarmerID,
		PlotID:             policy.PlotID,
		WeatherStressIndex: req.WeatherStressIndex,
		VegetationIndex:    req.VegetationIndex,
		DamageIndex:        damageIndex,
		TriggerType:        triggerType,
		TriggerDate:        triggerDate,
		EvidenceRef:        archived.ContentRef,
		EvidenceURLs:       utils.JSONMap{"retrieval_urls": archived.RetrievalURLs},
		CreatedAt:          time.Now(),
	}

	var payout *models.Payout
	var newStatus *models.PolicyStatus
	if calcErr == nil && amount > 0 {
		now := time.Now().Unix()
		payout = &models.Payout{
			ID:           uuid.New(),
			PolicyID:     policy.ID,
			AssessmentID: assessment.ID,
			FarmerID:     policy.FarmerID,
			FarmerPhone:  policy.FarmerPhone,
			Amount:       amount,
			Currency:     s.currency,
			Status:       models.PayoutPending,
			InitiatedAt:  &now,
			CreatedAt:    time.Now(),
		}

		remaining := policy.SumInsured - priorPayouts
		if damageIndex >= HighSeverityCutoff || amount >= claimedCoverageRatio*remaining {
			claimed := models.PolicyClaimed
			newStatus = &claimed
		}
	}

	inserted, err := s.ledger.RecordSettlement(ctx, assessment, payout, newStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}

	if !inserted {
		// Redelivered trigger: surface the original settlement.
		return s.replaySettlement(ctx, policy.ID, triggerDate)
	}

	if calcErr != nil {
		// Coverage exhausted: the assessment is on record, no payout.
		slog.Warn("settlement rejected, coverage exhausted",
			"policy_id", policy.ID,
			"assessment_id", assessment.ID,
			"damage_index", damageIndex)
		return nil, calcErr
	}

	if payout != nil {
		if err := s.publisher.PublishDisbursement(ctx, policy.ID, payout.ID, payout.Amount); err != nil {
			// The payout stays pending; the reconciliation worker
			// re-enqueues stale pending payouts.
			slog.Error("failed to publish disbursement message",
				"payout_id", payout.ID,
				"error", err)
		}
	}

	slog.Info("settlement recorded",
		"policy_id", policy.ID,
		"assessment_id", assessment.ID,
		"damage_index", damageIndex,
		"amount", amount,
		"capped", capped,
		"policy_claimed", newStatus != nil)

	return &models.SettlementResult{
		Assessment: assessment,
		Payout:     payout,
		Capped:     capped,
		Proof:      proofBlock(archived.ContentRef, archived.RetrievalURLs),
	}, nil
}

func (s *Orchestrator) replaySettlement(ctx context.Context, policyID uuid.UUID, triggerDate int64) (*models.SettlementResult, error) {
	assessment, err := s.ledger.FindAssessmentByTrigger(ctx, policyID, triggerDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior settlement: %w", err)
	}

	payout, err := s.ledger.FindPayoutByAssessment(ctx, assessment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior payout: %w", err)
	}

	slog.Info("trigger already settled, returning prior result",
		"policy_id", policyID,
		"assessment_id", assessment.ID,
		"trigger_date", triggerDate)

	var urls []string
	switch raw := assessment.EvidenceURLs["retrieval_urls"].(type) {
	case []string:
		urls = raw
	case []any:
		for _, u := range raw {
			if s, ok := u.(string); ok {
				urls = append(urls, s)
			}
		}
	}

	return &models.SettlementResult{
		Assessment:     assessment,
		Payout:         payout,
		AlreadySettled: true,
		Proof:          proofBlock(assessment.EvidenceRef, urls),
	}, nil
}

func proofBlock(ref string, urls []string) models.ProofBlock {
	return models.ProofBlock{
		ProofVerifiable: ref != evidence.DegradedRef,
		ProofRef:        ref,
		RetrievalURLs:   urls,
	}
}
