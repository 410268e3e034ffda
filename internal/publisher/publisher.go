// Package publisher drains the outbox to the brokers: at-least-once, per-order
// in order. It never fabricates success; a row stays unpublished until every
// sink acknowledged it.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/health"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"go.uber.org/zap"
)

const maxBackoff = 30 * time.Second

// Sink delivers one envelope to a broker. Implementations must only report
// success after broker acknowledgment.
type Sink interface {
	Publish(ctx context.Context, env event.Envelope) error
}

// Publisher is the outbox drain loop.
type Publisher struct {
	repo       repo.RepositoryInterface
	sinks      []Sink
	log        *zap.SugaredLogger
	interval   time.Duration
	batch      int
	stuckAfter time.Duration
	hb         *health.Heartbeat
}

// New constructs a publisher over the given sinks.
func New(r repo.RepositoryInterface, sinks []Sink, logger *zap.SugaredLogger,
	interval time.Duration, batch int, stuckAfter time.Duration, hb *health.Heartbeat) *Publisher {
	return &Publisher{
		repo:       r,
		sinks:      sinks,
		log:        logger,
		interval:   interval,
		batch:      batch,
		stuckAfter: stuckAfter,
		hb:         hb,
	}
}

// Run drains until the context is cancelled. Failed passes back off
// exponentially up to maxBackoff; a clean pass resets the cadence.
func (p *Publisher) Run(ctx context.Context) error {
	delay := p.interval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if p.hb != nil {
			p.hb.Beat()
		}
		if p.Drain(ctx) {
			delay = p.interval
		} else {
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
	}
}

// Drain publishes one batch of unpublished rows. It returns false when any
// publish failed, leaving those rows for the next pass. When an event of an
// order fails, the order's later events are skipped in this pass so per-order
// ordering survives the retry.
func (p *Publisher) Drain(ctx context.Context) bool {
	evts, err := p.repo.PollOutbox(ctx, p.batch)
	if err != nil {
		p.log.Errorf("poll outbox: %v", err)
		return false
	}
	ok := true
	failed := make(map[uint64]bool)
	for _, evt := range evts {
		if failed[evt.OrderID] {
			continue
		}
		if err := p.publish(ctx, evt); err != nil {
			p.log.Errorf("publish event %s (order %d v%d): %v",
				evt.EventID, evt.OrderID, evt.OrderVersion, err)
			failed[evt.OrderID] = true
			ok = false
			continue
		}
		if err := p.repo.MarkOutboxPublished(ctx, evt.ID); err != nil {
			// Safe to leave: re-publishing next pass is a duplicate, which
			// consumers deduplicate.
			p.log.Errorf("mark published %d: %v", evt.ID, err)
			ok = false
		}
	}
	p.alertStuck(ctx)
	return ok
}

func (p *Publisher) publish(ctx context.Context, evt model.OutboxEvent) error {
	env := event.Envelope{
		EventID:      evt.EventID,
		OrderID:      evt.OrderID,
		OrderVersion: evt.OrderVersion,
		EventType:    evt.EventType,
		Payload:      json.RawMessage(evt.Payload),
		OccurredAt:   evt.CreatedAt,
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) alertStuck(ctx context.Context) {
	if p.stuckAfter <= 0 {
		return
	}
	n, err := p.repo.CountStuckOutbox(ctx, p.stuckAfter)
	if err != nil {
		p.log.Errorf("count stuck outbox: %v", err)
		return
	}
	if n > 0 {
		p.log.Errorf("%d outbox events unpublished for more than %s", n, p.stuckAfter)
	}
}
