package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"settlement-service/internal/models"
	"settlement-service/internal/settlement"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Settler runs one settlement end-to-end. Implemented by
// settlement.Orchestrator.
type Settler interface {
	Settle(ctx context.Context, req models.SettleRequest) (*models.SettlementResult, error)
}

// DamageConsumer consumes trigger events from the damage-calculation
// queue. Delivery is at-least-once with manual acknowledgment; the
// settlement idempotency key makes redelivered messages safe.
type DamageConsumer struct {
	conn    *RabbitMQConnection
	settler Settler
}

func NewDamageConsumer(conn *RabbitMQConnection, settler Settler) *DamageConsumer {
	return &DamageConsumer{
		conn:    conn,
		settler: settler,
	}
}

// Start begins consuming trigger events. One message in flight per
// consumer instance.
func (c *DamageConsumer) Start(ctx context.Context) error {
	_, err := c.conn.Channel.QueueDeclare(
		DamageCalculationQueue,
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
		DamageCalculationQueue,
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

	slog.Info("Damage calculation consumer started", "queue", DamageCalculationQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("Damage calculation consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("Damage calculation consumer channel closed")
					return
				}
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *DamageConsumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	var trigger DamageTriggerMessage
	if err := json.Unmarshal(msg.Body, &trigger); err != nil {
		slog.Error("failed to unmarshal damage trigger", "error", err)
		// Malformed message, reject without requeue.
		msg.Nack(false, false)
		return
	}

	slog.Info("Received damage trigger",
		"policy_id", trigger.PolicyID,
		"trigger_type", trigger.TriggerType,
		"trigger_date", trigger.TriggerDate,
	)

	result, err := c.settler.Settle(ctx, models.SettleRequest{
		PolicyID:           trigger.PolicyID,
		WeatherStressIndex: trigger.WeatherStressIndex,
		VegetationIndex:    trigger.VegetationIndex,
		TriggerDate:        trigger.TriggerDate,
		TriggerType:        trigger.TriggerType,
	})
	if err != nil {
		if isPermanentSettlementError(err) {
			// Validation and business rejects never succeed on retry.
			slog.Warn("trigger rejected, dropping message",
				"policy_id", trigger.PolicyID,
				"error", err)
			msg.Ack(false)
			return
		}
		slog.Error("failed to settle trigger, requeueing",
			"policy_id", trigger.PolicyID,
			"error", err)
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
	slog.Info("Damage trigger settled",
		"policy_id", trigger.PolicyID,
		"assessment_id", result.Assessment.ID,
		"already_settled", result.AlreadySettled)
}

func isPermanentSettlementError(err error) bool {
	return errors.Is(err, settlement.ErrPolicyNotFound) ||
		errors.Is(err, settlement.ErrPolicyNotActive) ||
		errors.Is(err, settlement.ErrTriggerOutsideCoverage) ||
		errors.Is(err, settlement.ErrInvalidInputRange) ||
		errors.Is(err, settlement.ErrCoverageExhausted)
}
