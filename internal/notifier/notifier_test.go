package notifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
)

func testEnvelope(eventType string) event.Envelope {
	payload, _ := json.Marshal(event.OrderSnapshot{
		OrderID: 7, CustomerID: 10, RestaurantID: 20,
		State: string(lifecycle.StatePreparing), Total: "42.50",
	})
	return event.Envelope{
		EventID:   "evt-1",
		OrderID:   7,
		EventType: eventType,
		Payload:   payload,
	}
}

func TestRender_Placed(t *testing.T) {
	msgs, err := Render(testEnvelope(lifecycle.EventOrderPlaced))
	assert.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "customer:10", msgs[0].Recipient)
	assert.Equal(t, "restaurant:20", msgs[1].Recipient)
	assert.Contains(t, msgs[0].Body, "42.50")
}

func TestRender_SingleRecipientTypes(t *testing.T) {
	for _, eventType := range []string{
		lifecycle.EventOrderAccepted,
		lifecycle.EventOrderRejected,
		lifecycle.EventOrderCancelled,
		lifecycle.EventOrderStateChanged,
	} {
		msgs, err := Render(testEnvelope(eventType))
		assert.NoError(t, err, eventType)
		assert.Len(t, msgs, 1, eventType)
		assert.Equal(t, "customer:10", msgs[0].Recipient, eventType)
	}
}

func TestRender_StateChangedNamesTheState(t *testing.T) {
	msgs, err := Render(testEnvelope(lifecycle.EventOrderStateChanged))
	assert.NoError(t, err)
	assert.Contains(t, msgs[0].Body, string(lifecycle.StatePreparing))
}

func TestRender_UnknownType(t *testing.T) {
	_, err := Render(testEnvelope("ORDER_TELEPORTED"))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRender_BadPayload(t *testing.T) {
	env := testEnvelope(lifecycle.EventOrderPlaced)
	env.Payload = json.RawMessage("not json")
	_, err := Render(env)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestResolve(t *testing.T) {
	s := NewSMTPSender("localhost", "25", "noreply@eats.local", "eats.local")

	addr, err := s.resolve("customer:10")
	assert.NoError(t, err)
	assert.Equal(t, "customer-10@eats.local", addr)

	addr, err = s.resolve("restaurant:20")
	assert.NoError(t, err)
	assert.Equal(t, "restaurant-20@eats.local", addr)

	for _, bad := range []string{"courier:3", "customer:", "nonsense", ""} {
		_, err := s.resolve(bad)
		assert.ErrorIs(t, err, ErrPermanent, bad)
	}
}
