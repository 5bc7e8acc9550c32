package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookServiceImpl implements ports.WebhookService. It only enqueues
// delivery jobs; the webhook worker owns the delivery record and the
// per-attempt state machine. The job id doubles as the record id so
// retries accumulate attempts on the same record.
type WebhookServiceImpl struct {
	webhookRepo ports.WebhookLogRepository
	queue       ports.JobQueue
	builder     ports.PayloadBuilder
	idGen       ports.IDGenerator
	log         zerolog.Logger
}

// NewWebhookService creates a new WebhookServiceImpl.
func NewWebhookService(
	webhookRepo ports.WebhookLogRepository,
	queue ports.JobQueue,
	builder ports.PayloadBuilder,
	idGen ports.IDGenerator,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		webhookRepo: webhookRepo,
		queue:       queue,
		builder:     builder,
		idGen:       idGen,
		log:         log,
	}
}

// EnqueuePaymentEvent schedules a payment.* notification for delivery.
func (s *WebhookServiceImpl) EnqueuePaymentEvent(ctx context.Context, event string, payment *domain.Payment) error {
	payload, err := s.builder.PaymentPayload(event, payment)
	if err != nil {
		return fmt.Errorf("build payment payload: %w", err)
	}
	return s.enqueue(ctx, payment.MerchantID, event, payload)
}

// EnqueueRefundEvent schedules a refund.* notification for delivery.
func (s *WebhookServiceImpl) EnqueueRefundEvent(ctx context.Context, event string, refund *domain.Refund) error {
	payload, err := s.builder.RefundPayload(event, refund)
	if err != nil {
		return fmt.Errorf("build refund payload: %w", err)
	}
	return s.enqueue(ctx, refund.MerchantID, event, payload)
}

// Retry resets a terminal or stuck record and re-enqueues its delivery
// job immediately. The next scheduler tick would also pick it up; the
// explicit enqueue just removes the wait.
func (s *WebhookServiceImpl) Retry(ctx context.Context, merchantID uuid.UUID, webhookID string) (*domain.WebhookLog, error) {
	record, err := s.webhookRepo.GetByID(ctx, webhookID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load webhook log: %w", err))
	}
	if record == nil {
		return nil, apperror.ErrNotFound("webhook")
	}
	if record.MerchantID != merchantID {
		return nil, apperror.ErrNotOwned("webhook")
	}

	now := time.Now().UTC()
	record.Status = domain.WebhookStatusPending
	record.FailureReason = nil
	record.Attempts = 0
	record.NextRetryAt = &now

	if err := s.webhookRepo.Update(ctx, record); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("reset webhook log: %w", err))
	}

	job := domain.WebhookJob{
		JobID:      record.ID,
		MerchantID: record.MerchantID,
		Event:      record.Event,
		Payload:    record.Payload,
		CreatedAt:  now,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal webhook job: %w", err))
	}
	if err := s.queue.Enqueue(ctx, domain.WebhookQueue, job.JobID, payload); err != nil {
		// The record is already reset and due; the scheduler will
		// re-enqueue it once the store recovers.
		s.log.Warn().Err(err).Str("webhook_id", record.ID).Msg("immediate retry enqueue failed, scheduler will pick it up")
	}

	return record, nil
}

func (s *WebhookServiceImpl) enqueue(ctx context.Context, merchantID uuid.UUID, event string, payload json.RawMessage) error {
	job := domain.WebhookJob{
		JobID:      s.idGen.WebhookID(),
		MerchantID: merchantID,
		Event:      event,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal webhook job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, domain.WebhookQueue, job.JobID, body); err != nil {
		return fmt.Errorf("enqueue webhook job: %w", err)
	}
	return nil
}
