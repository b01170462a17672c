package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"settlement-service/internal/database/minio"

	"github.com/google/uuid"
)

// DegradedRef is the sentinel stored on an assessment when the evidence
// store was unreachable. Settlement proceeds without proof; availability
// of the payout path never depends on the evidence store.
const DegradedRef = "evidence-unavailable"

// Document is the structured proof artifact persisted for one settlement.
type Document struct {
	PolicyID           uuid.UUID      `json:"policy_id"`
	PolicyNumber       string         `json:"policy_number"`
	PlotID             uuid.UUID      `json:"plot_id"`
	FarmerID           string         `json:"farmer_id"`
	WeatherStressIndex float64        `json:"weather_stress_index"`
	VegetationIndex    float64        `json:"vegetation_index"`
	DamageIndex        float64        `json:"damage_index"`
	Weighting          Weighting      `json:"weighting"`
	Thresholds         Thresholds     `json:"thresholds"`
	WeatherSnapshot    map[string]any `json:"weather_snapshot,omitempty"`
	VegetationSnapshot map[string]any `json:"vegetation_snapshot,omitempty"`
	TriggerDate        int64          `json:"trigger_date"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

type Weighting struct {
	WeatherWeight    float64 `json:"weather_weight"`
	VegetationWeight float64 `json:"vegetation_weight"`
}

type Thresholds struct {
	ClaimThreshold     float64 `json:"claim_threshold"`
	HighSeverityCutoff float64 `json:"high_severity_cutoff"`
}

// ArchiveResult carries the content identifier of the stored document.
// Degraded marks a failed upload; ContentRef is then DegradedRef.
type ArchiveResult struct {
	ContentRef    string
	RetrievalURLs []string
	Degraded      bool
}

// Archiver uploads evidence documents to the content-addressed store.
// It is constructed once at startup and passed to the settlement
// orchestrator explicitly; there is no lazy shared client.
type Archiver struct {
	store *minio.Client
}

func NewArchiver(store *minio.Client) *Archiver {
	return &Archiver{store: store}
}

// Archive marshals the document and stores it under the hex sha256 of its
// bytes. Identical content lands on the same object name, so re-archiving
// after a redelivered trigger returns the same content identifier.
// Upload failure is non-fatal: the caller receives DegradedRef and
// continues settlement.
func (a *Archiver) Archive(ctx context.Context, doc *Document) ArchiveResult {
	payload, err := json.Marshal(doc)
	if err != nil {
		slog.Error("failed to marshal evidence document",
			"policy_id", doc.PolicyID,
			"error", err)
		return ArchiveResult{ContentRef: DegradedRef, Degraded: true}
	}

	sum := sha256.Sum256(payload)
	contentID := hex.EncodeToString(sum[:])
	objectName := fmt.Sprintf("%s.json", contentID)

	if err := a.store.UploadEvidence(ctx, objectName, payload); err != nil {
		slog.Error("evidence upload failed, continuing with degraded proof",
			"policy_id", doc.PolicyID,
			"content_id", contentID,
			"error", err)
		return ArchiveResult{ContentRef: DegradedRef, Degraded: true}
	}

	urls := []string{a.store.PublicEvidenceURL(objectName)}
	if presigned, err := a.store.PresignedEvidenceURL(ctx, objectName, 7*24*time.Hour); err != nil {
		slog.Warn("failed to presign evidence URL", "content_id", contentID, "error", err)
	} else {
		urls = append(urls, presigned)
	}

	slog.Info("evidence archived",
		"policy_id", doc.PolicyID,
		"content_id", contentID)

	return ArchiveResult{ContentRef: contentID, RetrievalURLs: urls}
}
