package domain

import (
	"time"

	"github.com/google/uuid"
)

// Merchant represents a registered merchant account. Webhook URL and
// secret are optional; deliveries are skipped until both are configured.
type Merchant struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	APIKey        string    `json:"api_key"`
	APISecret     string    `json:"-"` // Never expose
	WebhookURL    *string   `json:"webhook_url,omitempty"`
	WebhookSecret *string   `json:"-"` // Never expose
	CreatedAt     time.Time `json:"created_at"`
}

// WebhookConfigured reports whether both the delivery URL and the
// signing secret are present.
func (m *Merchant) WebhookConfigured() bool {
	return m.WebhookURL != nil && *m.WebhookURL != "" &&
		m.WebhookSecret != nil && *m.WebhookSecret != ""
}
