package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/config"
	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/health"
	"github.com/Palaxis/MTUCI-EDA/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func marshalEnvelope(env event.Envelope) ([]byte, error) { return json.Marshal(env) }

// Handler processes one envelope; same contract as the stream handler.
type Handler func(ctx context.Context, env event.Envelope) error

// Consumer reads the notification queue. Transient handler failures nack with
// requeue up to maxAttempts per event id, then nack without requeue, which the
// queue's dead-letter exchange routes to the dead queue.
type Consumer struct {
	ch          *amqp.Channel
	queue       string
	handle      Handler
	log         *zap.SugaredLogger
	hb          *health.Heartbeat
	maxAttempts int
	backoff     time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

// NewConsumer declares the topology and returns the consumer.
func NewConsumer(ch *amqp.Channel, cfg config.RabbitConfig, handle Handler,
	logger *zap.SugaredLogger, hb *health.Heartbeat, maxAttempts int, backoff time.Duration) (*Consumer, error) {
	if err := Declare(ch, cfg); err != nil {
		return nil, err
	}
	return &Consumer{
		ch:          ch,
		queue:       cfg.Queue,
		handle:      handle,
		log:         logger,
		hb:          hb,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		attempts:    make(map[string]int),
	}, nil
}

// Run consumes until the context is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	if c.hb != nil {
		c.hb.KeepAlive(ctx, 10*time.Second)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			if c.hb != nil {
				c.hb.Beat()
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var env event.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.log.Errorf("unmarshal delivery %s: %v", d.MessageId, err)
		_ = d.Nack(false, false) // poison: straight to the dead queue
		return
	}

	err := c.handle(ctx, env)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			c.log.Errorf("ack %s: %v", env.EventID, err)
		}
		c.forget(env.EventID)
	case service.IsTransient(err):
		n := c.bump(env.EventID)
		if n >= c.maxAttempts {
			c.log.Errorf("event %s dead-lettered after %d attempts: %v", env.EventID, n, err)
			_ = d.Nack(false, false)
			c.forget(env.EventID)
			return
		}
		c.log.Infof("event %s attempt %d/%d: %v", env.EventID, n, c.maxAttempts, err)
		// Brief pause before requeue keeps a flapping dependency from
		// hot-looping the queue.
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff * time.Duration(n)):
		}
		_ = d.Nack(false, true)
	default:
		c.log.Errorf("event %s failed permanently: %v", env.EventID, err)
		_ = d.Nack(false, false)
		c.forget(env.EventID)
	}
}

func (c *Consumer) bump(eventID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[eventID]++
	return c.attempts[eventID]
}

func (c *Consumer) forget(eventID string) {
	c.mu.Lock()
	delete(c.attempts, eventID)
	c.mu.Unlock()
}
