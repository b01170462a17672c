package models

import "github.com/google/uuid"

// SettleRequest is the trigger ingress payload. TriggerDate defaults to
// the current time when omitted.
type SettleRequest struct {
	PolicyID           uuid.UUID   `json:"policy_id"`
	WeatherStressIndex float64     `json:"weather_stress_index"`
	VegetationIndex    float64     `json:"vegetation_index"`
	TriggerDate        int64       `json:"trigger_date,omitempty"`
	TriggerType        TriggerType `json:"trigger_type,omitempty"`
}

// SimulateTriggerRequest enqueues a damage-calculation message instead of
// settling synchronously.
type SimulateTriggerRequest struct {
	PolicyID           uuid.UUID `json:"policy_id"`
	WeatherStressIndex float64   `json:"weather_stress_index"`
	VegetationIndex    float64   `json:"vegetation_index"`
	TriggerDate        int64     `json:"trigger_date,omitempty"`
}

// CreatePolicyRequest registers a new policy. The policy starts in
// pending_payment and becomes active on premium confirmation.
type CreatePolicyRequest struct {
	PolicyNumber      string       `json:"policy_number"`
	FarmerID          string       `json:"farmer_id"`
	FarmerPhone       string       `json:"farmer_phone"`
	PlotID            uuid.UUID    `json:"plot_id"`
	CoverageType      CoverageType `json:"coverage_type"`
	SumInsured        float64      `json:"sum_insured"`
	Premium           float64      `json:"premium"`
	CoverageStartDate int64        `json:"coverage_start_date"`
	CoverageEndDate   int64        `json:"coverage_end_date"`
}
