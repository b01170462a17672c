package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PayoutAmount computes the capped payout for a damage index against the
// policy's remaining coverage.
//
// Below ClaimThreshold the amount is zero. From the threshold upward the
// payout percentage interpolates linearly from PayoutFloorPct at 0.30 to
// 100% at 1.0. priorPayouts is the sum of completed and in-flight payouts
// for the policy; when it already consumes the sum insured the calculation
// fails with ErrCoverageExhausted. capped reports that the raw amount was
// reduced to the remaining coverage.
func PayoutAmount(sumInsured, damageIndex, priorPayouts float64) (amount float64, capped bool, err error) {
	if damageIndex < ClaimThreshold {
		return 0, false, nil
	}

	pct := PayoutFloorPct + (damageIndex-ClaimThreshold)/0.70*0.70
	if pct > 1.0 {
		pct = 1.0
	}

	rawAmount := round2(sumInsured * pct)

	remaining := round2(sumInsured - priorPayouts)
	if remaining <= 0 {
		return 0, false, fmt.Errorf("%w: sum_insured=%.2f prior_payouts=%.2f", ErrCoverageExhausted, sumInsured, priorPayouts)
	}

	if rawAmount > remaining {
		return remaining, true, nil
	}
	return rawAmount, false, nil
}

// round2 rounds half away from zero to 2 decimal places. Settlement
// amounts depend on this exact behavior, so the rounding goes through
// decimal arithmetic rather than float formatting.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
