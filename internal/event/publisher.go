package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher enqueues settlement work onto the durable queues.
type Publisher struct {
	conn *RabbitMQConnection
}

func NewPublisher(conn *RabbitMQConnection) (*Publisher, error) {
	for _, queue := range []string{DamageCalculationQueue, PayoutDisbursementQueue} {
		_, err := conn.Channel.QueueDeclare(
			queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}

	return &Publisher{conn: conn}, nil
}

// PublishDamageTrigger enqueues a trigger event for asynchronous
// settlement.
func (p *Publisher) PublishDamageTrigger(ctx context.Context, msg DamageTriggerMessage) error {
	return p.publish(ctx, DamageCalculationQueue, msg)
}

// PublishDisbursement enqueues a payout for disbursement. Implements
// settlement.DisbursementPublisher.
func (p *Publisher) PublishDisbursement(ctx context.Context, policyID, payoutID uuid.UUID, amount float64) error {
	return p.publish(ctx, PayoutDisbursementQueue, DisbursementMessage{
		PolicyID: policyID,
		PayoutID: payoutID,
		Amount:   amount,
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", queue, err)
	}

	err = p.conn.Channel.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	return nil
}
