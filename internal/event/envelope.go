// Package event defines the versioned envelope shared by the Kafka stream and
// the RabbitMQ task queue. Consumers must tolerate unknown extra fields.
package event

import (
	"encoding/json"
	"time"
)

// Envelope is the wire shape of one order-lifecycle event.
type Envelope struct {
	EventID      string          `json:"event_id"`
	OrderID      uint64          `json:"order_id"`
	OrderVersion uint64          `json:"order_version"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// OrderSnapshot is the payload carried by lifecycle events: the order fields
// downstream services need without a read back to the order store.
type OrderSnapshot struct {
	OrderID      uint64 `json:"order_id"`
	CustomerID   uint64 `json:"customer_id"`
	RestaurantID uint64 `json:"restaurant_id"`
	State        string `json:"state"`
	Total        string `json:"total"`
}

// Snapshot decodes the payload as an order snapshot.
func (e Envelope) Snapshot() (OrderSnapshot, error) {
	var s OrderSnapshot
	err := json.Unmarshal(e.Payload, &s)
	return s, err
}
