package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PayoutStore is the slice of the payout repository the disbursement
// worker needs.
type PayoutStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (bool, error)
	SetGatewayRef(ctx context.Context, payoutID uuid.UUID, gatewayRef string) error
	MarkCompleted(ctx context.Context, payoutID uuid.UUID) error
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) error
}

// DisbursementGateway moves money to the policyholder.
type DisbursementGateway interface {
	Disburse(ctx context.Context, amount float64, currency, phone, reference string) (*gateway.DisbursementResult, error)
}

// DisbursementConsumer consumes payout messages and drives them through
// the gateway. Redeliveries are safe: a payout already past pending is
// skipped, and the gateway dedupes on the payout id reference.
type DisbursementConsumer struct {
	conn    *RabbitMQConnection
	payouts PayoutStore
	gateway DisbursementGateway
}

func NewDisbursementConsumer(conn *RabbitMQConnection, payouts PayoutStore, gw DisbursementGateway) *DisbursementConsumer {
	return &DisbursementConsumer{
		conn:    conn,
		payouts: payouts,
		gateway: gw,
	}
}

// Start begins consuming disbursement messages. One message in flight
// per consumer instance.
func (c *DisbursementConsumer) Start(ctx context.Context) error {
	_, err := c.conn.Channel.QueueDeclare(
		PayoutDisbursementQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := c.conn.Channel.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := c.conn.Channel.Consume(
		PayoutDisbursementQueue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (we'll manually ack after processing)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	slog.Info("Disbursement consumer started", "queue", PayoutDisbursementQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("Disbursement consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("Disbursement consumer channel closed")
					return
				}
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *DisbursementConsumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	var disbursement DisbursementMessage
	if err := json.Unmarshal(msg.Body, &disbursement); err != nil {
		slog.Error("failed to unmarshal disbursement message", "error", err)
		msg.Nack(false, false)
		return
	}

	if err := c.handle(ctx, disbursement); err != nil {
		slog.Error("failed to handle disbursement, requeueing",
			"payout_id", disbursement.PayoutID,
			"error", err)
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}

func (c *DisbursementConsumer) handle(ctx context.Context, msg DisbursementMessage) error {
	payout, err := c.payouts.GetByID(ctx, msg.PayoutID)
	if errors.Is(err, repository.ErrNotFound) {
		// Nothing to disburse; drop the message.
		slog.Warn("disbursement for unknown payout, dropping", "payout_id", msg.PayoutID)
		return nil
	}
	if err != nil {
		return err
	}

	if payout.Status != models.PayoutPending {
		slog.Info("payout already past pending, skipping redelivery",
			"payout_id", payout.ID,
			"status", payout.Status)
		return nil
	}

	claimed, err := c.payouts.MarkProcessing(ctx, payout.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// A concurrent delivery took this payout first.
		slog.Info("payout claimed elsewhere, skipping", "payout_id", payout.ID)
		return nil
	}

	result, err := c.gateway.Disburse(ctx, payout.Amount, payout.Currency, payout.FarmerPhone, payout.ID.String())
	if errors.Is(err, gateway.ErrRejected) {
		slog.Warn("disbursement rejected by gateway",
			"payout_id", payout.ID,
			"error", err)
		return c.payouts.MarkFailed(ctx, payout.ID, err.Error())
	}
	if err != nil {
		// Transport failure or timeout: the transfer may still have gone
		// through. Leave the payout processing; the reconciliation worker
		// resolves it by polling the gateway.
		slog.Warn("gateway unreachable, leaving payout for reconciliation",
			"payout_id", payout.ID,
			"error", err)
		return nil
	}

	if result.GatewayRef != "" {
		if err := c.payouts.SetGatewayRef(ctx, payout.ID, result.GatewayRef); err != nil {
			return err
		}
	}

	if result.Status == gateway.StatusCompleted {
		if err := c.payouts.MarkCompleted(ctx, payout.ID); err != nil {
			return err
		}
		slog.Info("payout completed",
			"payout_id", payout.ID,
			"amount", payout.Amount,
			"gateway_ref", result.GatewayRef)
		return nil
	}

	slog.Info("disbursement accepted, awaiting confirmation",
		"payout_id", payout.ID,
		"gateway_ref", result.GatewayRef)
	return nil
}
