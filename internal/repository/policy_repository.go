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

type PolicyRepository struct {
	db *sqlx.DB
}

func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ErrNotFound marks row lookups that matched nothing. Service layers map
// it onto their own typed errors.
var ErrNotFound = errors.New("not found")

func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	var policy models.Policy
	query := `
		SELECT id, policy_number, farmer_id, farmer_phone, plot_id, coverage_type,
			sum_insured, premium, coverage_start_date, coverage_end_date,
			status, created_at, updated_at
		FROM policy
		WHERE id = $1`
	err := r.db.GetContext(ctx, &policy, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy by id: %w", err)
	}

	return &policy, nil
}

func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	now := time.Now()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	query := `
		INSERT INTO policy (
			id, policy_number, farmer_id, farmer_phone, plot_id, coverage_type,
			sum_insured, premium, coverage_start_date, coverage_end_date,
			status, created_at, updated_at
		) VALUES (
			:id, :policy_number, :farmer_id, :farmer_phone, :plot_id, :coverage_type,
			:sum_insured, :premium, :coverage_start_date, :coverage_end_date,
			:status, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, policy)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}

	return nil
}

// UpdateStatusTx transitions a policy inside a settlement transaction.
// The WHERE guard keeps the transition legal even if the policy moved
// between the read and the write.
func (r *PolicyRepository) UpdateStatusTx(tx *sqlx.Tx, policyID uuid.UUID, from, to models.PolicyStatus) error {
	query := `
		UPDATE policy SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	res, err := tx.Exec(query, to, time.Now(), policyID, from)
	if err != nil {
		return fmt.Errorf("failed to update policy status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("policy %s is no longer %s, status transition refused", policyID, from)
	}

	return nil
}

// ActivateOnPremiumConfirmation moves a policy out of pending_payment.
// Driven by the external premium confirmation flow.
func (r *PolicyRepository) ActivateOnPremiumConfirmation(ctx context.Context, policyID uuid.UUID) error {
	query := `
		UPDATE policy SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, models.PolicyActive, time.Now(), policyID, models.PolicyPendingPayment)
	if err != nil {
		return fmt.Errorf("failed to activate policy: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("policy %s is not pending payment", policyID)
	}

	return nil
}

func (r *PolicyRepository) BeginTransaction() (*sqlx.Tx, error) {
	return r.db.Beginx()
}
