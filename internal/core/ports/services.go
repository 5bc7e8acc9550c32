package ports

import (
	"context"
	"encoding/json"
	"time"

	"async-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// QueuedJob is one member of a named queue as seen by a poller snapshot.
type QueuedJob struct {
	ID      string
	Payload []byte
}

// JobQueue is the durable named job store: a membership set per queue,
// a per-job status ledger with bounded retention, and aggregate
// counters. Delivery is at-least-once; consumers must be idempotent and
// must Remove a job only after handling it.
type JobQueue interface {
	// Enqueue appends the job to the named queue and writes a pending
	// ledger entry. Failure means the backing store is unreachable; the
	// triggering business record is already durable, so callers should
	// log and continue.
	Enqueue(ctx context.Context, queue string, jobID string, payload []byte) error
	// DequeueAll snapshots the queue without removing anything.
	DequeueAll(ctx context.Context, queue string) ([]QueuedJob, error)
	// Remove deletes one job and its payload. Idempotent.
	Remove(ctx context.Context, queue string, jobID string) error
	// SetStatus transitions the ledger entry and adjusts counters
	// atomically. A same-status set leaves counters untouched.
	SetStatus(ctx context.Context, jobID string, status domain.JobStatus) error
	// GetStatus reads the ledger; a missing entry reads as pending.
	GetStatus(ctx context.Context, jobID string) (domain.JobStatus, error)
	Counts(ctx context.Context) (domain.QueueCounts, error)
	// Heartbeat marks the worker process alive for a bounded window.
	Heartbeat(ctx context.Context) error
	WorkerAlive(ctx context.Context) (bool, error)
}

// IdempotencyCache is the redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SignatureService signs and verifies webhook payloads. Sign covers the
// exact bytes transmitted; Verify compares in constant time.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// IDGenerator mints prefixed identifiers. Payment and refund ids are
// checked for collisions against the store before being handed out.
type IDGenerator interface {
	PaymentID(ctx context.Context) (string, error)
	RefundID(ctx context.Context) (string, error)
	WebhookID() string
	JobID() string
}

// PayloadBuilder maps domain events into the canonical webhook payload
// shape: {event, timestamp, data:{payment|refund}}.
type PayloadBuilder interface {
	PaymentPayload(event string, payment *domain.Payment) (json.RawMessage, error)
	RefundPayload(event string, refund *domain.Refund) (json.RawMessage, error)
}

// WebhookService enqueues delivery jobs for domain events and exposes
// the public retry operation.
type WebhookService interface {
	EnqueuePaymentEvent(ctx context.Context, event string, payment *domain.Payment) error
	EnqueueRefundEvent(ctx context.Context, event string, refund *domain.Refund) error
	// Retry resets the record (attempts=0, pending, due now) and
	// re-enqueues a delivery job immediately.
	Retry(ctx context.Context, merchantID uuid.UUID, webhookID string) (*domain.WebhookLog, error)
}

// CreatePaymentRequest holds validated input for payment creation. Card
// and VPA fields arrive pre-validated from the request-handling layer.
type CreatePaymentRequest struct {
	MerchantID     uuid.UUID
	OrderID        string
	Method         domain.PaymentMethod
	VPA            *string
	CardNetwork    *domain.CardNetwork
	CardLast4      *string
	IdempotencyKey *string
}

// PaymentService creates payments and hands settlement to the job system.
type PaymentService interface {
	// CreatePayment returns the payment and whether the response was
	// replayed from an idempotency record.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, bool, error)
}

// CreateRefundRequest holds validated input for refund creation.
type CreateRefundRequest struct {
	MerchantID uuid.UUID
	PaymentID  string
	Amount     int64
	Reason     *string
}

// RefundService creates refunds and hands settlement to the job system.
type RefundService interface {
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*domain.Refund, error)
}

// HealthChecker checks external dependency health.
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name (e.g., "postgresql", "redis").
	Name() string
}
