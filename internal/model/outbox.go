package model

import "time"

// OutboxEvent is written in the same transaction as the order mutation it
// reflects; a row exists iff a committed transition produced it. Rows are only
// ever mutated to flip Published, never deleted.
type OutboxEvent struct {
	ID           uint64    `gorm:"primaryKey"`
	EventID      string    `gorm:"size:36;uniqueIndex;not null"`
	OrderID      uint64    `gorm:"not null;index:idx_outbox_order"`
	OrderVersion uint64    `gorm:"not null;index:idx_outbox_order"`
	EventType    string    `gorm:"size:64;not null"`
	Payload      string    `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	Published    bool      `gorm:"not null;default:false"`
	PublishedAt  *time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }
