package queue

import (
	"context"
	"fmt"

	"github.com/cuongbtq/bot-runner/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ adapts the shared RabbitMQ client to Publisher and Consumer
type RabbitMQ struct {
	client *rabbitmq.Client
}

// NewRabbitMQ creates a RabbitMQ-backed queue
func NewRabbitMQ(client *rabbitmq.Client) *RabbitMQ {
	return &RabbitMQ{client: client}
}

// Publish publishes a persistent job message
func (q *RabbitMQ) Publish(ctx context.Context, jobID string) error {
	body, err := Encode(jobID)
	if err != nil {
		return err
	}
	return q.client.Publish(ctx, body, ContentType)
}

// Consume starts a manual-ack consumer. Messages are acknowledged only when the
// caller acks them, so a lost worker leads to redelivery.
func (q *RabbitMQ) Consume(ctx context.Context, consumerTag string) (<-chan Delivery, error) {
	deliveries, err := q.client.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = q.client.Cancel(consumerTag)
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- rabbitDelivery{d: d}:
				case <-ctx.Done():
					// not handed to anyone; give it back
					_ = d.Nack(false, true)
					_ = q.client.Cancel(consumerTag)
					return
				}
			}
		}
	}()

	return out, nil
}

type rabbitDelivery struct {
	d amqp.Delivery
}

func (r rabbitDelivery) Body() []byte { return r.d.Body }

func (r rabbitDelivery) Ack() error { return r.d.Ack(false) }

func (r rabbitDelivery) Nack(requeue bool) error { return r.d.Nack(false, requeue) }
