package event

import (
	"github.com/google/uuid"

	"settlement-service/internal/models"
)

// DamageTriggerMessage is one loss-evidence event awaiting settlement.
// TriggerDate doubles as the idempotency key together with the policy id,
// so redeliveries of the same event settle at most once.
type DamageTriggerMessage struct {
	PolicyID           uuid.UUID          `json:"policy_id"`
	TriggerType        models.TriggerType `json:"trigger_type"`
	WeatherStressIndex float64            `json:"weather_stress_index"`
	VegetationIndex    float64            `json:"vegetation_index"`
	TriggerDate        int64              `json:"trigger_date"`
}

// DisbursementMessage carries one created payout to the gateway worker.
type DisbursementMessage struct {
	PolicyID uuid.UUID `json:"policy_id"`
	PayoutID uuid.UUID `json:"payout_id"`
	Amount   float64   `json:"amount"`
}
