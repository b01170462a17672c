package models

import (
	"time"

	"github.com/google/uuid"
)

// Policy is an insurance contract over one plot for one coverage period.
// Coverage dates are unix seconds.
type Policy struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	PolicyNumber      string       `json:"policy_number" db:"policy_number"`
	FarmerID          string       `json:"farmer_id" db:"farmer_id"`
	FarmerPhone       string       `json:"farmer_phone" db:"farmer_phone"`
	PlotID            uuid.UUID    `json:"plot_id" db:"plot_id"`
	CoverageType      CoverageType `json:"coverage_type" db:"coverage_type"`
	SumInsured        float64      `json:"sum_insured" db:"sum_insured"`
	Premium           float64      `json:"premium" db:"premium"`
	CoverageStartDate int64        `json:"coverage_start_date" db:"coverage_start_date"`
	CoverageEndDate   int64        `json:"coverage_end_date" db:"coverage_end_date"`
	Status            PolicyStatus `json:"status" db:"status"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// CoversDate reports whether a trigger date falls inside the coverage period.
func (p *Policy) CoversDate(ts int64) bool {
	return ts >= p.CoverageStartDate && ts <= p.CoverageEndDate
}
