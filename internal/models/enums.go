package models

type PolicyStatus string

const (
	PolicyPendingPayment PolicyStatus = "pending_payment"
	PolicyActive         PolicyStatus = "active"
	PolicyClaimed        PolicyStatus = "claimed"
	PolicyCancelled      PolicyStatus = "cancelled"
	PolicyExpired        PolicyStatus = "expired"
)

// IsTerminal reports whether a policy can no longer accept settlements.
func (s PolicyStatus) IsTerminal() bool {
	switch s {
	case PolicyClaimed, PolicyCancelled, PolicyExpired:
		return true
	default:
		return false
	}
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// CanTransitionTo enforces the forward-only payout lifecycle:
// pending -> processing -> completed | failed.
func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	switch s {
	case PayoutPending:
		return next == PayoutProcessing || next == PayoutFailed
	case PayoutProcessing:
		return next == PayoutCompleted || next == PayoutFailed
	default:
		return false
	}
}

type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSimulated TriggerType = "simulated"
	TriggerDetector  TriggerType = "detector"
)

type CoverageType string

const (
	CoverageDrought CoverageType = "drought"
	CoverageFlood   CoverageType = "flood"
	CoverageMulti   CoverageType = "multi_peril"
)
