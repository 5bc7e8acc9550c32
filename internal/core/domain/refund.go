package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus represents the lifecycle state of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund represents a (possibly partial) reversal of a payment. Created
// pending; the refund worker re-validates and settles it asynchronously.
type Refund struct {
	ID          string       `json:"id"`
	PaymentID   string       `json:"payment_id"`
	MerchantID  uuid.UUID    `json:"merchant_id"`
	Amount      int64        `json:"amount"`
	Reason      *string      `json:"reason,omitempty"`
	Status      RefundStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
}

// CountsTowardRefunded reports whether this refund consumes refundable
// amount on its payment. Failed refunds do not.
func (r *Refund) CountsTowardRefunded() bool {
	return r.Status != RefundStatusFailed
}
