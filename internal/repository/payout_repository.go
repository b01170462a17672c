package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PayoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) CreateTx(tx *sqlx.Tx, payout *models.Payout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payout (
			id, policy_id, assessment_id, farmer_id, farmer_phone,
			amount, currency, status, gateway_ref, failure_reason,
			initiated_at, completed_at, created_at
		) VALUES (
			:id, :policy_id, :assessment_id, :farmer_id, :farmer_phone,
			:amount, :currency, :status, :gateway_ref, :failure_reason,
			:initiated_at, :completed_at, :created_at
		)`

	_, err := tx.NamedExec(query, payout)
	if err != nil {
		return fmt.Errorf("failed to create payout in transaction: %w", err)
	}

	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	query := `
		SELECT id, policy_id, assessment_id, farmer_id, farmer_phone,
			amount, currency, status, gateway_ref, failure_reason,
			initiated_at, completed_at, created_at
		FROM payout
		WHERE id = $1`
	err := r.db.GetContext(ctx, &payout, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payout %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout by id: %w", err)
	}

	return &payout, nil
}

func (r *PayoutRepository) GetByAssessmentID(ctx context.Context, assessmentID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	query := `
		SELECT id, policy_id, assessment_id, farmer_id, farmer_phone,
			amount, currency, status, gateway_ref, failure_reason,
			initiated_at, completed_at, created_at
		FROM payout
		WHERE assessment_id = $1`
	err := r.db.GetContext(ctx, &payout, query, assessmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout by assessment: %w", err)
	}

	return &payout, nil
}

func (r *PayoutRepository) GetByPolicyID(ctx context.Context, policyID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	query := `
		SELECT id, policy_id, assessment_id, farmer_id, farmer_phone,
			amount, currency, status, gateway_ref, failure_reason,
			initiated_at, completed_at, created_at
		FROM payout
		WHERE policy_id = $1
		ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &payouts, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts for policy: %w", err)
	}

	return payouts, nil
}

// SumActiveByPolicyID sums completed and in-flight payouts. Failed
// payouts release their coverage back to the policy.
func (r *PayoutRepository) SumActiveByPolicyID(ctx context.Context, policyID uuid.UUID) (float64, error) {
	var total float64
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payout
		WHERE policy_id = $1 AND status != $2`
	err := r.db.GetContext(ctx, &total, query, policyID, models.PayoutFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payouts for policy: %w", err)
	}

	return total, nil
}

func (r *PayoutRepository) ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	var payouts []models.Payout
	query := `
		SELECT id, policy_id, assessment_id, farmer_id, farmer_phone,
			amount, currency, status, gateway_ref, failure_reason,
			initiated_at, completed_at, created_at
		FROM payout
		WHERE status = $1
		ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &payouts, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts by status: %w", err)
	}

	return payouts, nil
}

// MarkProcessing claims a pending payout for disbursement. inserted=false
// means another delivery already took it past pending, so the caller must
// skip instead of disbursing twice.
func (r *PayoutRepository) MarkProcessing(ctx context.Context, payoutID uuid.UUID) (claimed bool, err error) {
	query := `
		UPDATE payout SET status = $1
		WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, models.PayoutProcessing, payoutID, models.PayoutPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark payout processing: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows > 0, nil
}

func (r *PayoutRepository) SetGatewayRef(ctx context.Context, payoutID uuid.UUID, gatewayRef string) error {
	query := `UPDATE payout SET gateway_ref = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, gatewayRef, payoutID); err != nil {
		return fmt.Errorf("failed to set gateway ref: %w", err)
	}

	return nil
}

// MarkCompleted finishes a processing payout. The status guard keeps the
// lifecycle forward-only under concurrent status polls.
func (r *PayoutRepository) MarkCompleted(ctx context.Context, payoutID uuid.UUID) error {
	now := time.Now().Unix()
	query := `
		UPDATE payout SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, models.PayoutCompleted, now, payoutID, models.PayoutProcessing); err != nil {
		return fmt.Errorf("failed to mark payout completed: %w", err)
	}

	return nil
}

// MarkFailed is terminal for this payout instance. A later eligible
// trigger produces a new payout rather than retrying this one.
func (r *PayoutRepository) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) error {
	query := `
		UPDATE payout SET status = $1, failure_reason = $2
		WHERE id = $3 AND status IN ($4, $5)`
	if _, err := r.db.ExecContext(ctx, query, models.PayoutFailed, reason, payoutID, models.PayoutPending, models.PayoutProcessing); err != nil {
		return fmt.Errorf("failed to mark payout failed: %w", err)
	}

	return nil
}
