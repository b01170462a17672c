package settlement

import "fmt"

// Damage scoring weights and thresholds. These are contractual values:
// payout amounts depend on them bit-for-bit, so they are not tunable
// per call or per environment.
const (
	WeatherWeight    = 0.6
	VegetationWeight = 0.4

	// ClaimThreshold is the damage index below which no payout is due.
	ClaimThreshold = 0.30

	// PayoutFloorPct is the payout percentage at exactly ClaimThreshold.
	PayoutFloorPct = 0.30

	// HighSeverityCutoff marks a loss severe enough to close the policy
	// as claimed regardless of remaining coverage.
	HighSeverityCutoff = 0.85
)

// DamageIndex combines weather stress and vegetation decline into a
// single [0,1] damage score: clamp(0.6*weather + 0.4*vegetation, 0, 1).
// Both inputs must already be normalized to [0,1].
func DamageIndex(weatherStress, vegetation float64) (float64, error) {
	if weatherStress < 0 || weatherStress > 1 {
		return 0, fmt.Errorf("%w: weather_stress_index=%v", ErrInvalidInputRange, weatherStress)
	}
	if vegetation < 0 || vegetation > 1 {
		return 0, fmt.Errorf("%w: vegetation_index=%v", ErrInvalidInputRange, vegetation)
	}

	score := WeatherWeight*weatherStress + VegetationWeight*vegetation
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
