package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
)

// Order is the merchant-created intent a payment settles against.
type Order struct {
	ID         string      `json:"id"`
	MerchantID uuid.UUID   `json:"merchant_id"`
	Amount     int64       `json:"amount"` // In smallest currency unit
	Currency   string      `json:"currency"`
	Receipt    *string     `json:"receipt,omitempty"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}
