package notifier

import (
	"errors"
	"fmt"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
)

// ErrUnknownEventType is returned for event types outside the known set; the
// dispatcher acknowledges them without sending.
var ErrUnknownEventType = errors.New("unknown event type")

// Render builds the messages for one envelope: a customer-facing message for
// every known type, plus a restaurant-facing one when an order is placed.
func Render(env event.Envelope) ([]Message, error) {
	snap, err := env.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	customer := fmt.Sprintf("customer:%d", snap.CustomerID)
	restaurant := fmt.Sprintf("restaurant:%d", snap.RestaurantID)

	switch env.EventType {
	case lifecycle.EventOrderPlaced:
		return []Message{
			{
				Recipient: customer,
				Subject:   fmt.Sprintf("Order #%d placed", env.OrderID),
				Body:      fmt.Sprintf("We received your order #%d (%s). The restaurant is reviewing it.", env.OrderID, snap.Total),
			},
			{
				Recipient: restaurant,
				Subject:   fmt.Sprintf("New order #%d", env.OrderID),
				Body:      fmt.Sprintf("Order #%d for %s is waiting for your confirmation.", env.OrderID, snap.Total),
			},
		}, nil
	case lifecycle.EventOrderAccepted:
		return []Message{{
			Recipient: customer,
			Subject:   fmt.Sprintf("Order #%d accepted", env.OrderID),
			Body:      fmt.Sprintf("Good news! The restaurant accepted order #%d and will start preparing it.", env.OrderID),
		}}, nil
	case lifecycle.EventOrderRejected:
		return []Message{{
			Recipient: customer,
			Subject:   fmt.Sprintf("Order #%d rejected", env.OrderID),
			Body:      fmt.Sprintf("Unfortunately the restaurant could not take order #%d. You have not been charged.", env.OrderID),
		}}, nil
	case lifecycle.EventOrderCancelled:
		return []Message{{
			Recipient: customer,
			Subject:   fmt.Sprintf("Order #%d cancelled", env.OrderID),
			Body:      fmt.Sprintf("Order #%d was cancelled.", env.OrderID),
		}}, nil
	case lifecycle.EventOrderStateChanged:
		return []Message{{
			Recipient: customer,
			Subject:   fmt.Sprintf("Order #%d update", env.OrderID),
			Body:      fmt.Sprintf("Order #%d is now %s.", env.OrderID, snap.State),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
}
