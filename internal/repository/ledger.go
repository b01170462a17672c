package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"settlement-service/internal/models"
	"settlement-service/internal/settlement"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SettlementLedger implements settlement.Ledger on top of the three
// repositories, running each settlement write as one transaction.
type SettlementLedger struct {
	db             *sqlx.DB
	policyRepo     *PolicyRepository
	assessmentRepo *AssessmentRepository
	payoutRepo     *PayoutRepository
}

func NewSettlementLedger(db *sqlx.DB, policyRepo *PolicyRepository, assessmentRepo *AssessmentRepository, payoutRepo *PayoutRepository) *SettlementLedger {
	return &SettlementLedger{
		db:             db,
		policyRepo:     policyRepo,
		assessmentRepo: assessmentRepo,
		payoutRepo:     payoutRepo,
	}
}

func (l *SettlementLedger) GetPolicy(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	policy, err := l.policyRepo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", settlement.ErrPolicyNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return policy, nil
}

func (l *SettlementLedger) SumActivePayouts(ctx context.Context, policyID uuid.UUID) (float64, error) {
	return l.payoutRepo.SumActiveByPolicyID(ctx, policyID)
}

// RecordSettlement writes the assessment, the optional payout, and the
// optional policy transition atomically. When the assessment hits its
// idempotency key nothing is committed and inserted is false.
func (l *SettlementLedger) RecordSettlement(ctx context.Context, assessment *models.DamageAssessment, payout *models.Payout, newStatus *models.PolicyStatus) (bool, error) {
	tx, err := l.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}

	inserted, err := l.assessmentRepo.CreateTx(tx, assessment)
	if err != nil {
		tx.Rollback()
		slog.Error("error creating assessment", "error", err)
		return false, fmt.Errorf("error creating assessment: %w", err)
	}

	if !inserted {
		tx.Rollback()
		return false, nil
	}

	if payout != nil {
		if err := l.payoutRepo.CreateTx(tx, payout); err != nil {
			tx.Rollback()
			slog.Error("error creating payout", "error", err)
			return false, fmt.Errorf("error creating payout: %w", err)
		}
	}

	if newStatus != nil {
		if err := l.policyRepo.UpdateStatusTx(tx, assessment.PolicyID, models.PolicyActive, *newStatus); err != nil {
			tx.Rollback()
			slog.Error("error transitioning policy", "error", err)
			return false, fmt.Errorf("error transitioning policy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("error committing settlement transaction", "error", err)
		return false, fmt.Errorf("error committing settlement transaction: %w", err)
	}

	return true, nil
}

func (l *SettlementLedger) FindAssessmentByTrigger(ctx context.Context, policyID uuid.UUID, triggerDate int64) (*models.DamageAssessment, error) {
	return l.assessmentRepo.GetByPolicyAndTriggerDate(ctx, policyID, triggerDate)
}

func (l *SettlementLedger) FindPayoutByAssessment(ctx context.Context, assessmentID uuid.UUID) (*models.Payout, error) {
	return l.payoutRepo.GetByAssessmentID(ctx, assessmentID)
}
