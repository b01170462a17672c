package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout is a monetary claim disbursement tied to one DamageAssessment.
type Payout struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	PolicyID      uuid.UUID    `json:"policy_id" db:"policy_id"`
	AssessmentID  uuid.UUID    `json:"assessment_id" db:"assessment_id"`
	FarmerID      string       `json:"farmer_id" db:"farmer_id"`
	FarmerPhone   string       `json:"farmer_phone" db:"farmer_phone"`
	Amount        float64      `json:"amount" db:"amount"`
	Currency      string       `json:"currency" db:"currency"`
	Status        PayoutStatus `json:"status" db:"status"`
	GatewayRef    *string      `json:"gateway_ref,omitempty" db:"gateway_ref"`
	FailureReason *string      `json:"failure_reason,omitempty" db:"failure_reason"`
	InitiatedAt   *int64       `json:"initiated_at,omitempty" db:"initiated_at"`
	CompletedAt   *int64       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}
