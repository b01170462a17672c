package settlement

import "errors"

// Settlement failure kinds. Callers branch with errors.Is instead of
// matching message strings; handlers map these to HTTP codes.
var (
	// Validation errors: rejected synchronously, never retried.
	ErrPolicyNotFound         = errors.New("policy not found")
	ErrPolicyNotActive        = errors.New("policy not active")
	ErrTriggerOutsideCoverage = errors.New("trigger date outside coverage period")
	ErrInvalidInputRange      = errors.New("index out of [0,1] range")

	// Business-rule error: cumulative payouts already consume the sum
	// insured. No payout is created; the assessment is still recorded.
	ErrCoverageExhausted = errors.New("coverage exhausted")
)
