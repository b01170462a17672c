package models

import (
	utils "settlement-service/internal/utils"
	"time"

	"github.com/google/uuid"
)

// DamageAssessment is one evaluation of loss evidence against a policy.
// Rows are append-only: an assessment is never updated after creation.
// (policy_id, trigger_date) is unique and acts as the settlement
// idempotency key under at-least-once trigger delivery.
type DamageAssessment struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	PolicyID           uuid.UUID     `json:"policy_id" db:"policy_id"`
	FarmerID           string        `json:"farmer_id" db:"farmer_id"`
	PlotID             uuid.UUID     `json:"plot_id" db:"plot_id"`
	WeatherStressIndex float64       `json:"weather_stress_index" db:"weather_stress_index"`
	VegetationIndex    float64       `json:"vegetation_index" db:"vegetation_index"`
	DamageIndex        float64       `json:"damage_index" db:"damage_index"`
	TriggerType        TriggerType   `json:"trigger_type" db:"trigger_type"`
	TriggerDate        int64         `json:"trigger_date" db:"trigger_date"`
	EvidenceRef        string        `json:"evidence_ref" db:"evidence_ref"`
	EvidenceURLs       utils.JSONMap `json:"evidence_urls" db:"evidence_urls"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
}
