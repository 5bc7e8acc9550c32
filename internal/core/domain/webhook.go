package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of one logical webhook
// notification, independent of how many attempts it takes.
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "pending"
	WebhookStatusSuccess WebhookStatus = "success"
	WebhookStatusFailed  WebhookStatus = "failed"
)

// WebhookFailureReason distinguishes why a delivery ended failed.
type WebhookFailureReason string

const (
	// FailureAttemptsExhausted: all delivery attempts were used up.
	FailureAttemptsExhausted WebhookFailureReason = "attempts_exhausted"
	// FailureNotConfigured: the merchant lost its webhook URL or secret
	// after the record was created (explicit-retry path).
	FailureNotConfigured WebhookFailureReason = "not_configured"
)

// Webhook event names.
const (
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// MaxWebhookAttempts caps delivery attempts per logical notification.
const MaxWebhookAttempts = 5

// WebhookLog is the durable audit/state record for one merchant
// notification. Its ID doubles as the delivery job id so retries
// accumulate attempts on the same record. Never deleted.
type WebhookLog struct {
	ID            string                `json:"id"`
	MerchantID    uuid.UUID             `json:"merchant_id"`
	Event         string                `json:"event"`
	Payload       json.RawMessage       `json:"payload"`
	Status        WebhookStatus         `json:"status"`
	FailureReason *WebhookFailureReason `json:"failure_reason,omitempty"`
	Attempts      int                   `json:"attempts"`
	LastAttemptAt *time.Time            `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time            `json:"next_retry_at,omitempty"`
	ResponseCode  *int                  `json:"response_code,omitempty"`
	ResponseBody  *string               `json:"response_body,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// IsTerminal returns true once no further attempts will be made.
func (w *WebhookLog) IsTerminal() bool {
	return w.Status == WebhookStatusSuccess || w.Status == WebhookStatusFailed
}
