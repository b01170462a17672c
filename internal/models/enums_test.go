package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayoutStatus_ForwardOnlyLifecycle(t *testing.T) {
	assert.True(t, PayoutPending.CanTransitionTo(PayoutProcessing))
	assert.True(t, PayoutPending.CanTransitionTo(PayoutFailed))
	assert.True(t, PayoutProcessing.CanTransitionTo(PayoutCompleted))
	assert.True(t, PayoutProcessing.CanTransitionTo(PayoutFailed))

	assert.False(t, PayoutPending.CanTransitionTo(PayoutCompleted), "Completion requires passing through processing")
	assert.False(t, PayoutCompleted.CanTransitionTo(PayoutProcessing), "Terminal states never move")
	assert.False(t, PayoutFailed.CanTransitionTo(PayoutPending), "Failed payouts are never retried in place")
}

func TestPolicyStatus_TerminalStates(t *testing.T) {
	assert.False(t, PolicyPendingPayment.IsTerminal())
	assert.False(t, PolicyActive.IsTerminal())
	assert.True(t, PolicyClaimed.IsTerminal())
	assert.True(t, PolicyCancelled.IsTerminal())
	assert.True(t, PolicyExpired.IsTerminal())
}

func TestPolicy_CoversDate(t *testing.T) {
	policy := Policy{CoverageStartDate: 1000, CoverageEndDate: 2000}

	assert.True(t, policy.CoversDate(1000), "Coverage bounds are inclusive")
	assert.True(t, policy.CoversDate(2000), "Coverage bounds are inclusive")
	assert.True(t, policy.CoversDate(1500))
	assert.False(t, policy.CoversDate(999))
	assert.False(t, policy.CoversDate(2001))
}
