package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidOrder means the placement request itself is malformed.
var ErrInvalidOrder = errors.New("invalid order")

// OrderService owns the order write path: every committed mutation carries its
// outbox row in the same transaction, and never talks to a broker itself.
type OrderService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewOrderService returns OrderService.
func NewOrderService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *OrderService {
	return &OrderService{repo: r, log: logger}
}

// PlaceOrder creates the order at version 1 in state PLACED together with its
// ORDER_PLACED outbox row.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID, restaurantID uint64, total decimal.Decimal) (*model.Order, error) {
	if customerID == 0 || restaurantID == 0 {
		return nil, ErrInvalidOrder
	}
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidOrder
	}
	o := &model.Order{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		State:        lifecycle.StatePlaced,
		Total:        total,
		Version:      1,
	}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateOrder(ctx, tx, o); err != nil {
			return err
		}
		evt, err := NewOutboxEvent(o, lifecycle.EventOrderPlaced)
		if err != nil {
			return err
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.CacheOrderState(ctx, o.ID, o.State, o.Version); err != nil {
		s.log.Warnf("cache order %d: %v", o.ID, err)
	}
	return o, nil
}

// ApplyTransition moves the order along one lifecycle edge. The order update
// and the outbox insert commit atomically; nothing is visible outside the
// transaction until then. Returns repo.ErrVersionConflict when expectedVersion
// is stale (retry with a fresh read) and lifecycle.ErrInvalidTransition for
// illegal edges (do not retry).
func (s *OrderService) ApplyTransition(ctx context.Context, orderID, expectedVersion uint64, action lifecycle.Action) (*model.Order, error) {
	var out *model.Order
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.repo.GetOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Version != expectedVersion {
			return repo.ErrVersionConflict
		}
		next, err := lifecycle.Transition(o.State, action)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateOrderState(ctx, tx, orderID, next, expectedVersion); err != nil {
			return err
		}
		o.State = next
		o.Version = expectedVersion + 1
		o.UpdatedAt = time.Now()
		evt, err := NewOutboxEvent(o, lifecycle.EventTypeFor(action))
		if err != nil {
			return err
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.CacheOrderState(ctx, out.ID, out.State, out.Version); err != nil {
		s.log.Warnf("cache order %d: %v", out.ID, err)
	}
	return out, nil
}

// ApplyTransitionRetry re-reads and retries on version conflicts, bounded by
// maxAttempts. Used by asynchronous callers whose intent survives a collision.
func (s *OrderService) ApplyTransitionRetry(ctx context.Context, orderID uint64, action lifecycle.Action, maxAttempts int) (*model.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		o, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		out, err := s.ApplyTransition(ctx, orderID, o.Version, action)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// GetOrder reads the full order row.
func (s *OrderService) GetOrder(ctx context.Context, orderID uint64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, s.repo.DB(ctx), orderID)
}

// GetOrderState returns the current state and version, served from the Redis
// cache when fresh.
func (s *OrderService) GetOrderState(ctx context.Context, orderID uint64) (lifecycle.State, uint64, error) {
	state, version, err := s.repo.GetCachedOrderState(ctx, orderID)
	if err == nil {
		return state, version, nil
	}
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", 0, err
	}
	if err := s.repo.CacheOrderState(ctx, orderID, o.State, o.Version); err != nil {
		s.log.Warnf("cache order %d: %v", orderID, err)
	}
	return o.State, o.Version, nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *OrderService) Repo() repo.RepositoryInterface { return s.repo }

// NewOutboxEvent builds the outbox row for an order snapshot at its current
// version. The event id is generated at write time.
func NewOutboxEvent(o *model.Order, eventType string) (*model.OutboxEvent, error) {
	payload, err := json.Marshal(event.OrderSnapshot{
		OrderID:      o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		State:        string(o.State),
		Total:        o.Total.String(),
	})
	if err != nil {
		return nil, err
	}
	return &model.OutboxEvent{
		EventID:      uuid.NewString(),
		OrderID:      o.ID,
		OrderVersion: o.Version,
		EventType:    eventType,
		Payload:      string(payload),
	}, nil
}
