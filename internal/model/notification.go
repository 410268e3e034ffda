package model

import "time"

// Notification statuses.
const (
	NotificationSent = "SENT"
	NotificationDead = "DEAD"
)

// Notification is the dispatcher's audit row: one per rendered message, SENT on
// delivery or DEAD when the send failed permanently. DEAD rows are the
// operational dead-letter view alongside the broker's dead-letter queue.
type Notification struct {
	ID        uint64    `gorm:"primaryKey"`
	EventID   string    `gorm:"size:36;not null;index"`
	OrderID   uint64    `gorm:"not null;index"`
	Recipient string    `gorm:"size:128;not null"`
	Subject   string    `gorm:"size:255;not null"`
	Body      string    `gorm:"type:text;not null"`
	Status    string    `gorm:"size:16;not null"`
	Reason    string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
