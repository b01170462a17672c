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

type AssessmentRepository struct {
	db *sqlx.DB
}

func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// CreateTx inserts an assessment inside a settlement transaction. The
// insert is conditional on the (policy_id, trigger_date) idempotency key:
// a redelivered trigger event no-ops and inserted comes back false.
func (r *AssessmentRepository) CreateTx(tx *sqlx.Tx, assessment *models.DamageAssessment) (inserted bool, err error) {
	if assessment.ID == uuid.Nil {
		assessment.ID = uuid.New()
	}
	if assessment.CreatedAt.IsZero() {
		assessment.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO damage_assessment (
			id, policy_id, farmer_id, plot_id,
			weather_stress_index, vegetation_index, damage_index,
			trigger_type, trigger_date, evidence_ref, evidence_urls, created_at
		) VALUES (
			:id, :policy_id, :farmer_id, :plot_id,
			:weather_stress_index, :vegetation_index, :damage_index,
			:trigger_type, :trigger_date, :evidence_ref, :evidence_urls, :created_at
		)
		ON CONFLICT (policy_id, trigger_date) DO NOTHING`

	res, err := tx.NamedExec(query, assessment)
	if err != nil {
		return false, fmt.Errorf("failed to create assessment in transaction: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows > 0, nil
}

func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DamageAssessment, error) {
	var assessment models.DamageAssessment
	query := `
		SELECT id, policy_id, farmer_id, plot_id,
			weather_stress_index, vegetation_index, damage_index,
			trigger_type, trigger_date, evidence_ref, evidence_urls, created_at
		FROM damage_assessment
		WHERE id = $1`
	err := r.db.GetContext(ctx, &assessment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment by id: %w", err)
	}

	return &assessment, nil
}

func (r *AssessmentRepository) GetByPolicyAndTriggerDate(ctx context.Context, policyID uuid.UUID, triggerDate int64) (*models.DamageAssessment, error) {
	var assessment models.DamageAssessment
	query := `
		SELECT id, policy_id, farmer_id, plot_id,
			weather_stress_index, vegetation_index, damage_index,
			trigger_type, trigger_date, evidence_ref, evidence_urls, created_at
		FROM damage_assessment
		WHERE policy_id = $1 AND trigger_date = $2`
	err := r.db.GetContext(ctx, &assessment, query, policyID, triggerDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment for policy %s at %d: %w", policyID, triggerDate, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment by trigger: %w", err)
	}

	return &assessment, nil
}

func (r *AssessmentRepository) GetByPolicyID(ctx context.Context, policyID uuid.UUID) ([]models.DamageAssessment, error) {
	var assessments []models.DamageAssessment
	query := `
		SELECT id, policy_id, farmer_id, plot_id,
			weather_stress_index, vegetation_index, damage_index,
			trigger_type, trigger_date, evidence_ref, evidence_urls, created_at
		FROM damage_assessment
		WHERE policy_id = $1
		ORDER BY trigger_date DESC`
	err := r.db.SelectContext(ctx, &assessments, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessments for policy: %w", err)
	}

	return assessments, nil
}
