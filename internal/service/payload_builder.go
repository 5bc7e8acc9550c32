package service

import (
	"encoding/json"
	"fmt"
	"time"

	"async-payment-gateway/internal/core/domain"
)

// webhookEnvelope is the canonical body sent to merchant endpoints. The
// marshaled bytes are stored on the WebhookLog and signed verbatim, so
// retries always transmit the exact same body.
type webhookEnvelope struct {
	Event     string       `json:"event"`
	Timestamp int64        `json:"timestamp"`
	Data      envelopeData `json:"data"`
}

type envelopeData struct {
	Payment *domain.Payment `json:"payment,omitempty"`
	Refund  *domain.Refund  `json:"refund,omitempty"`
}

// JSONPayloadBuilder implements ports.PayloadBuilder.
type JSONPayloadBuilder struct {
	now func() time.Time
}

// NewJSONPayloadBuilder creates a new JSONPayloadBuilder.
func NewJSONPayloadBuilder() *JSONPayloadBuilder {
	return &JSONPayloadBuilder{now: time.Now}
}

// PaymentPayload builds the body for a payment.* event.
func (b *JSONPayloadBuilder) PaymentPayload(event string, payment *domain.Payment) (json.RawMessage, error) {
	body, err := json.Marshal(webhookEnvelope{
		Event:     event,
		Timestamp: b.now().Unix(),
		Data:      envelopeData{Payment: payment},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment payload: %w", err)
	}
	return body, nil
}

// RefundPayload builds the body for a refund.* event.
func (b *JSONPayloadBuilder) RefundPayload(event string, refund *domain.Refund) (json.RawMessage, error) {
	body, err := json.Marshal(webhookEnvelope{
		Event:     event,
		Timestamp: b.now().Unix(),
		Data:      envelopeData{Refund: refund},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal refund payload: %w", err)
	}
	return body, nil
}
