package entities

import (
	"fmt"
	"time"
)

type DeliveryStatus string

const (
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliverySkipped    DeliveryStatus = "skipped"
)

type EventType string

const (
	EventOrderConfirmed     EventType = "order_confirmation"
	EventOrderCancelled     EventType = "order_cancelled"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventLowStock           EventType = "low_stock"
)

// DedupeKey детерминированный ключ доставки письма по заказу.
func DedupeKey(t EventType, subjectID string) string {
	return fmt.Sprintf("%s:%s", t, subjectID)
}

type EmailDelivery struct {
	ID        string
	DedupeKey string
	Type      EventType
	OrderID   string
	Recipient string
	Status    DeliveryStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Notification struct {
	ID        string
	ShopID    string
	Type      EventType
	SubjectID string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// OrderEvent факт, который движок заказов отдаёт на рассылку.
type OrderEvent struct {
	Type        EventType   `json:"type"`
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	ShopID      string      `json:"shop_id"`
	Recipient   string      `json:"recipient,omitempty"`
	Status      OrderStatus `json:"status,omitempty"`
	Total       int64       `json:"total"`
	Currency    string      `json:"currency"`
	Reason      string      `json:"reason,omitempty"`
	// для low_stock
	ProductID string `json:"product_id,omitempty"`
	Stock     int    `json:"stock,omitempty"`
}

// SubjectID объект события, по которому дедуплицируются уведомления.
func (e OrderEvent) SubjectID() string {
	if e.Type == EventLowStock {
		return e.ProductID
	}
	if e.Type == EventOrderStatusChanged {
		return e.OrderID + ":" + string(e.Status)
	}
	return e.OrderID
}
