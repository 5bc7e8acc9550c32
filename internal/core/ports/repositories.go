package ports

import (
	"context"
	"errors"
	"time"

	"async-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// ErrDuplicateKey is returned by IdempotencyRepository.Create when the
// (key, merchant_id) unique constraint rejects the insert. The caller is
// expected to re-read the winning record.
var ErrDuplicateKey = errors.New("idempotency key already exists")

// MerchantRepository defines persistence operations for merchants.
// Lookups return (nil, nil) when no row matches.
type MerchantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Merchant, error)
}

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

// PaymentRepository defines persistence operations for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment) error
	Exists(ctx context.Context, id string) (bool, error)
}

// RefundRepository defines persistence operations for refunds.
type RefundRepository interface {
	Create(ctx context.Context, refund *domain.Refund) error
	GetByID(ctx context.Context, id string) (*domain.Refund, error)
	Update(ctx context.Context, refund *domain.Refund) error
	ListByPaymentID(ctx context.Context, paymentID string) ([]domain.Refund, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// WebhookLogRepository defines persistence for webhook delivery records.
// Records are never deleted; they are the delivery audit trail.
type WebhookLogRepository interface {
	Create(ctx context.Context, log *domain.WebhookLog) error
	Update(ctx context.Context, log *domain.WebhookLog) error
	GetByID(ctx context.Context, id string) (*domain.WebhookLog, error)
	// ListByMerchant returns a page of the merchant's records plus the
	// unpaged total, newest first.
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.WebhookLog, int64, error)
	// FindDueRetries returns pending records whose next_retry_at has
	// elapsed, earliest due first.
	FindDueRetries(ctx context.Context, now time.Time) ([]domain.WebhookLog, error)
}

// IdempotencyRepository defines persistence for idempotency records
// (the durable layer behind the redis fast path).
type IdempotencyRepository interface {
	// Create inserts a record; returns ErrDuplicateKey when another
	// request already stored this (key, merchant_id) pair.
	Create(ctx context.Context, rec *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string, merchantID uuid.UUID) (*domain.IdempotencyRecord, error)
	Delete(ctx context.Context, key string, merchantID uuid.UUID) error
}
