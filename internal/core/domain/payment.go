package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod represents the instrument used to pay.
type PaymentMethod string

const (
	PaymentMethodUPI  PaymentMethod = "upi"
	PaymentMethodCard PaymentMethod = "card"
)

// CardNetwork identifies the card scheme, detected upstream.
type CardNetwork string

const (
	CardNetworkVisa       CardNetwork = "visa"
	CardNetworkMastercard CardNetwork = "mastercard"
	CardNetworkAmex       CardNetwork = "amex"
	CardNetworkRupay      CardNetwork = "rupay"
	CardNetworkUnknown    CardNetwork = "unknown"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment represents one settlement attempt against an order. It is
// created in processing state; the payment worker moves it to a terminal
// state asynchronously.
type Payment struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"order_id"`
	MerchantID       uuid.UUID     `json:"merchant_id"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	VPA              *string       `json:"vpa,omitempty"`
	CardNetwork      *CardNetwork  `json:"card_network,omitempty"`
	CardLast4        *string       `json:"card_last4,omitempty"`
	ErrorCode        *string       `json:"error_code,omitempty"`
	ErrorDescription *string       `json:"error_description,omitempty"`
	Captured         bool          `json:"captured"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsTerminal returns true if the payment is in a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// IsRefundable returns true if this payment can be refunded.
func (p *Payment) IsRefundable() bool {
	return p.Status == PaymentStatusSuccess
}
