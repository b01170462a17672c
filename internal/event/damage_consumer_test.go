package event

import (
	"errors"
	"fmt"
	"testing"

	"settlement-service/internal/settlement"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanentSettlementError(t *testing.T) {
	permanent := []error{
		settlement.ErrPolicyNotFound,
		settlement.ErrPolicyNotActive,
		settlement.ErrTriggerOutsideCoverage,
		settlement.ErrInvalidInputRange,
		settlement.ErrCoverageExhausted,
	}
	for _, err := range permanent {
		assert.True(t, isPermanentSettlementError(fmt.Errorf("settle: %w", err)),
			"%v can never succeed on redelivery", err)
	}

	assert.False(t, isPermanentSettlementError(errors.New("connection refused")),
		"Infrastructure errors must be requeued")
}
