package stream

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes envelopes to the order-events topic. Messages are keyed
// by order id so one partition carries all events of an order, in order.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink builds a sink over the brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

// Publish sends one envelope and waits for broker acknowledgment.
func (s *KafkaSink) Publish(ctx context.Context, env event.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(env.OrderID, 10)),
		Value: value,
		Time:  env.OccurredAt,
	}
	return s.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error { return s.writer.Close() }
