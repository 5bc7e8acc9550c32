package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Named job queues. Each queue is consumed by exactly one worker type.
const (
	PaymentQueue = "payment-jobs"
	WebhookQueue = "webhook-jobs"
	RefundQueue  = "refund-jobs"
)

// JobStatus is the ledger state of a queued job. Entries expire after a
// fixed retention window; a missing entry reads as pending.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// QueueCounts holds the approximate per-status job counters.
type QueueCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// PaymentJob asks the payment worker to settle one payment.
type PaymentJob struct {
	JobID     string    `json:"job_id"`
	PaymentID string    `json:"payment_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RefundJob asks the refund worker to settle one refund.
type RefundJob struct {
	JobID      string    `json:"job_id"`
	RefundID   string    `json:"refund_id"`
	PaymentID  string    `json:"payment_id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebhookJob asks the webhook worker to attempt one delivery. JobID is
// also the WebhookLog id; the payload bytes are the exact body that will
// be signed and transmitted.
type WebhookJob struct {
	JobID      string          `json:"job_id"`
	MerchantID uuid.UUID       `json:"merchant_id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
