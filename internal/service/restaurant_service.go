package service

import (
	"context"
	"fmt"

	"github.com/Palaxis/MTUCI-EDA/internal/catalog"
	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RestaurantConsumerName identifies this consumer in the dedup ledger.
const RestaurantConsumerName = "restaurant-consumer"

// RestaurantService handles lifecycle events on the restaurant side: it
// decides accept/reject for new orders and keeps the local ticket projection
// in step. The decision, the order transition, the outbound outbox row and the
// ledger record commit in one transaction, so redelivery can never apply the
// side effect twice.
type RestaurantService struct {
	repo    repo.RepositoryInterface
	catalog catalog.Catalog
	log     *zap.SugaredLogger
}

// NewRestaurantService returns RestaurantService.
func NewRestaurantService(r repo.RepositoryInterface, c catalog.Catalog, logger *zap.SugaredLogger) *RestaurantService {
	return &RestaurantService{repo: r, catalog: c, log: logger}
}

// HandleLifecycleEvent processes one envelope. Duplicates are a no-op. An
// envelope ahead of the stored order version returns a transient ErrOutOfOrder
// so the caller defers it until the gap is filled.
func (s *RestaurantService) HandleLifecycleEvent(ctx context.Context, env event.Envelope) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		done, err := s.repo.EventProcessed(ctx, tx, env.EventID, RestaurantConsumerName)
		if err != nil {
			return Transient(err)
		}
		if done {
			s.log.Debugf("duplicate event %s, skipping", env.EventID)
			return nil
		}

		o, err := s.repo.GetOrder(ctx, tx, env.OrderID)
		if err != nil {
			// The order row may lag the event under replication delay.
			return Transient(err)
		}
		if env.OrderVersion > o.Version {
			return Transient(fmt.Errorf("%w: order %d at %d, event at %d",
				ErrOutOfOrder, o.ID, o.Version, env.OrderVersion))
		}

		switch env.EventType {
		case lifecycle.EventOrderPlaced:
			if err := s.decide(ctx, tx, o); err != nil {
				return err
			}
		case lifecycle.EventOrderCancelled:
			ticket, err := s.repo.GetTicket(ctx, tx, o.ID)
			if err != nil {
				return Transient(err)
			}
			if ticket == nil {
				// Cancelled before the kitchen decided; nothing to close out.
				s.log.Infof("order %d cancelled before decision", o.ID)
				break
			}
			if err := s.repo.UpdateTicketStatus(ctx, tx, o.ID, model.TicketCancelled, "order cancelled"); err != nil {
				return Transient(err)
			}
		default:
			// Acceptance and delivery progress events originate here or do not
			// concern the kitchen; record and acknowledge.
		}

		rec := &model.ProcessedEvent{EventID: env.EventID, ConsumerName: RestaurantConsumerName}
		if err := s.repo.RecordProcessedEvent(ctx, tx, rec); err != nil {
			if repo.IsDuplicateKey(err) {
				return nil
			}
			return Transient(err)
		}
		return nil
	})
}

// decide accepts or rejects a freshly placed order and emits the corresponding
// event through this service's own outbox. A business rejection is a valid
// terminal outcome, not an error.
func (s *RestaurantService) decide(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	r, err := s.catalog.Restaurant(ctx, o.RestaurantID)
	if err != nil {
		return Transient(err)
	}

	action := lifecycle.ActionAccept
	status := model.TicketAccepted
	reason := ""
	switch {
	case r == nil:
		action, status, reason = lifecycle.ActionReject, model.TicketRejected, "unknown restaurant"
	case !r.IsActive:
		action, status, reason = lifecycle.ActionReject, model.TicketRejected, "restaurant inactive"
	default:
		if min, perr := decimal.NewFromString(r.MinOrderAmount); perr == nil && o.Total.LessThan(min) {
			action, status, reason = lifecycle.ActionReject, model.TicketRejected,
				fmt.Sprintf("below minimum order %s", r.MinOrderAmount)
		}
	}

	next, err := lifecycle.Transition(o.State, action)
	if err != nil {
		// Already decided through another path; nothing to do.
		s.log.Warnf("order %d: %v", o.ID, err)
		return nil
	}
	if err := s.repo.UpdateOrderState(ctx, tx, o.ID, next, o.Version); err != nil {
		// Includes a lost CAS race; the redelivery will find the order decided.
		return Transient(err)
	}
	o.State = next
	o.Version++

	ticket := &model.RestaurantTicket{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		Status:       status,
		Reason:       reason,
	}
	if err := s.repo.CreateTicket(ctx, tx, ticket); err != nil {
		return Transient(err)
	}

	evt, err := NewOutboxEvent(o, lifecycle.EventTypeFor(action))
	if err != nil {
		return err
	}
	if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
		return Transient(err)
	}
	s.log.Infof("order %d %s (version %d)", o.ID, status, o.Version)
	return nil
}
