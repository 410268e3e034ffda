package stream

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/health"
	"github.com/Palaxis/MTUCI-EDA/internal/service"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one envelope. nil acknowledges; a transient error (per
// service.IsTransient) is retried in place, which blocks the partition and is
// exactly the deferral per-order ordering requires; any other error is logged
// and acknowledged as a terminal business outcome.
type Handler func(ctx context.Context, env event.Envelope) error

// fetcher is the slice of kafka.Reader the consumer needs (test seam).
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the order-events topic within a consumer group. One worker per
// partition keeps per-order processing sequential.
type Consumer struct {
	reader      fetcher
	handle      Handler
	log         *zap.SugaredLogger
	hb          *health.Heartbeat
	maxAttempts int
	backoff     time.Duration
}

// NewConsumer builds a group reader over the brokers.
func NewConsumer(brokers []string, topic, group string, handle Handler,
	logger *zap.SugaredLogger, hb *health.Heartbeat, maxAttempts int, backoff time.Duration) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:      reader,
		handle:      handle,
		log:         logger,
		hb:          hb,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Run consumes until the context is cancelled. An envelope whose handling
// stays transient after maxAttempts is returned uncommitted, so restarting the
// consumer resumes from it (broker-level redelivery).
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	if c.hb != nil {
		c.hb.KeepAlive(ctx, 10*time.Second)
	}
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.log.Errorf("fetch message: %v", err)
			continue
		}
		if c.hb != nil {
			c.hb.Beat()
		}

		var env event.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			// Poison message: nothing a retry can fix.
			c.log.Errorf("unmarshal message at offset %d: %v", msg.Offset, err)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := c.process(ctx, env); err != nil {
			c.log.Errorf("event %s still failing after %d attempts: %v", env.EventID, c.maxAttempts, err)
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// process retries transient failures with exponential backoff, blocking the
// partition so later events of the same order wait their turn.
func (c *Consumer) process(ctx context.Context, env event.Envelope) error {
	var err error
	delay := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.handle(ctx, env)
		if err == nil {
			return nil
		}
		if !service.IsTransient(err) {
			c.log.Warnf("event %s not retryable: %v", env.EventID, err)
			return nil
		}
		c.log.Infof("event %s attempt %d/%d: %v", env.EventID, attempt, c.maxAttempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
