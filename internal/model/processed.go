package model

import "time"

// ProcessedEvent is the consumer-side dedup ledger. A (event_id, consumer_name)
// pair is recorded at most once, atomically with the handler's side effect.
// Failed marks a permanent delivery failure recorded to stop redelivery.
type ProcessedEvent struct {
	EventID      string    `gorm:"primaryKey;size:36"`
	ConsumerName string    `gorm:"primaryKey;size:64"`
	Failed       bool      `gorm:"not null;default:false"`
	ProcessedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
