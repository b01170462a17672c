package worker

import (
	"context"
	"log/slog"
	"time"

	"settlement-service/internal/gateway"
	"settlement-service/internal/models"

	"github.com/google/uuid"
)

const (
	// DefaultReconcileInterval is how often in-flight payouts are swept.
	DefaultReconcileInterval = 1 * time.Minute

	// pendingRepublishAge is how long a payout may sit pending before its
	// disbursement message is assumed lost and published again.
	pendingRepublishAge = 5 * time.Minute
)

// PayoutLister is the slice of the payout repository the reconciler needs.
type PayoutLister interface {
	ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error)
	MarkCompleted(ctx context.Context, payoutID uuid.UUID) error
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) error
}

// StatusChecker polls the gateway for the outcome of an initiated transfer.
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (*gateway.StatusResult, error)
}

// DisbursementRepublisher re-enqueues payouts whose original message never
// reached a worker.
type DisbursementRepublisher interface {
	PublishDisbursement(ctx context.Context, policyID, payoutID uuid.UUID, amount float64) error
}

// Reconciler closes the two gaps left by at-least-once delivery: payouts
// stuck processing after a gateway outage, and payouts stuck pending after
// a failed publish. It never re-initiates a transfer, only polls and
// republishes, so it cannot cause a double payment.
type Reconciler struct {
	payouts   PayoutLister
	checker   StatusChecker
	publisher DisbursementRepublisher
	interval  time.Duration
}

func NewReconciler(payouts PayoutLister, checker StatusChecker, publisher DisbursementRepublisher) *Reconciler {
	return &Reconciler{
		payouts:   payouts,
		checker:   checker,
		publisher: publisher,
		interval:  DefaultReconcileInterval,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		slog.Info("Payout reconciler started", "interval", r.interval)

		for {
			select {
			case <-ctx.Done():
				slog.Info("Payout reconciler stopped")
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	r.resolveProcessing(ctx)
	r.republishPending(ctx)
}

func (r *Reconciler) resolveProcessing(ctx context.Context) {
	payouts, err := r.payouts.ListByStatus(ctx, models.PayoutProcessing)
	if err != nil {
		slog.Error("failed to list processing payouts", "error", err)
		return
	}

	for _, payout := range payouts {
		status, err := r.checker.CheckStatus(ctx, payout.ID.String())
		if err != nil {
			slog.Warn("status poll failed, will retry next sweep",
				"payout_id", payout.ID,
				"error", err)
			continue
		}

		switch status.Status {
		case gateway.StatusCompleted:
			if err := r.payouts.MarkCompleted(ctx, payout.ID); err != nil {
				slog.Error("failed to complete reconciled payout",
					"payout_id", payout.ID,
					"error", err)
				continue
			}
			slog.Info("payout reconciled as completed",
				"payout_id", payout.ID,
				"receipt", status.Receipt)
		case gateway.StatusFailed:
			if err := r.payouts.MarkFailed(ctx, payout.ID, status.Reason); err != nil {
				slog.Error("failed to fail reconciled payout",
					"payout_id", payout.ID,
					"error", err)
				continue
			}
			slog.Info("payout reconciled as failed",
				"payout_id", payout.ID,
				"reason", status.Reason)
		default:
			// Still pending at the provider; leave it for the next sweep.
		}
	}
}

func (r *Reconciler) republishPending(ctx context.Context) {
	payouts, err := r.payouts.ListByStatus(ctx, models.PayoutPending)
	if err != nil {
		slog.Error("failed to list pending payouts", "error", err)
		return
	}

	cutoff := time.Now().Add(-pendingRepublishAge)
	for _, payout := range payouts {
		if payout.CreatedAt.After(cutoff) {
			continue
		}

		if err := r.publisher.PublishDisbursement(ctx, payout.PolicyID, payout.ID, payout.Amount); err != nil {
			slog.Error("failed to republish stale pending payout",
				"payout_id", payout.ID,
				"error", err)
			continue
		}
		slog.Info("republished stale pending payout",
			"payout_id", payout.ID,
			"created_at", payout.CreatedAt)
	}
}
