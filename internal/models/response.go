package models

// ProofBlock tells API callers whether the settlement evidence can be
// independently retrieved and verified against its content identifier.
type ProofBlock struct {
	ProofVerifiable bool     `json:"proof_verifiable"`
	ProofRef        string   `json:"proof_ref"`
	RetrievalURLs   []string `json:"retrieval_urls"`
}

// SettlementResult is the synchronous response of a settle request.
// Payout is nil when the damage index is below the claim threshold.
// AlreadySettled is true when the trigger was a redelivery of an event
// that had already produced an assessment.
type SettlementResult struct {
	Assessment     *DamageAssessment `json:"assessment"`
	Payout         *Payout           `json:"payout,omitempty"`
	Capped         bool              `json:"capped"`
	AlreadySettled bool              `json:"already_settled"`
	Proof          ProofBlock        `json:"proof"`
}
