package events

import (
	"time"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
	TypeOrderDeleted       = "order.deleted"
)

type OrderCreatedEvent struct {
	EventID    string             `json:"event_id"`
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	TotalPrice float64            `json:"total_price"`
	Items      []domain.OrderItem `json:"items"`
	Status     string             `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	RequestID  string             `json:"request_id,omitempty"`
}

type OrderStatusChangedEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type OrderDeletedEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
