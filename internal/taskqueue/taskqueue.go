// Package taskqueue is the RabbitMQ side of the pipeline: a topic exchange fed
// by the publisher and a durable queue consumed by the notification worker,
// with a dead-letter exchange for envelopes that exhaust their retries.
package taskqueue

import (
	"context"
	"strings"

	"github.com/Palaxis/MTUCI-EDA/internal/config"
	"github.com/Palaxis/MTUCI-EDA/internal/event"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKey derives the routing key from an event type:
// ORDER_PLACED -> order.placed, ORDER_STATE_CHANGED -> order.state_changed.
func RoutingKey(eventType string) string {
	return "order." + strings.ToLower(strings.TrimPrefix(eventType, "ORDER_"))
}

// Declare sets up the exchange, queue and dead-letter pair. Idempotent; every
// binary touching the broker calls it on startup.
func Declare(ch *amqp.Channel, cfg config.RabbitConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(cfg.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, "", cfg.DeadLetterExchange, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": cfg.DeadLetterExchange,
	}); err != nil {
		return err
	}
	return ch.QueueBind(cfg.Queue, "order.#", cfg.Exchange, false, nil)
}

// RabbitSink publishes envelopes to the topic exchange; a publisher.Sink.
type RabbitSink struct {
	ch       *amqp.Channel
	exchange string
}

// NewRabbitSink declares the topology and returns the sink.
func NewRabbitSink(ch *amqp.Channel, cfg config.RabbitConfig) (*RabbitSink, error) {
	if err := Declare(ch, cfg); err != nil {
		return nil, err
	}
	return &RabbitSink{ch: ch, exchange: cfg.Exchange}, nil
}

// Publish sends one envelope, routed by event type.
func (s *RabbitSink) Publish(ctx context.Context, env event.Envelope) error {
	body, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(env.EventType), false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		})
}
