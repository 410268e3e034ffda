package model

import "time"

// Ticket statuses (restaurant-local acceptance state).
const (
	TicketAccepted  = "ACCEPTED"
	TicketRejected  = "REJECTED"
	TicketCancelled = "CANCELLED"
)

// RestaurantTicket is the restaurant side's local projection of an order it has
// decided on. One ticket per order.
type RestaurantTicket struct {
	ID           uint64    `gorm:"primaryKey"`
	OrderID      uint64    `gorm:"not null;uniqueIndex"`
	RestaurantID uint64    `gorm:"not null;index"`
	Status       string    `gorm:"size:32;not null"`
	Reason       string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (RestaurantTicket) TableName() string { return "restaurant_tickets" }
