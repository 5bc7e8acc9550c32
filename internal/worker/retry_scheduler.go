package worker

import (
	"context"
	"encoding/json"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// RetryScheduler periodically re-enqueues webhook deliveries whose
// next_retry_at has elapsed. It owns "when a retry becomes due"; the
// webhook worker owns delivery itself. Jobs are re-enqueued under the
// record id so attempts keep accumulating on the same record.
type RetryScheduler struct {
	webhookRepo ports.WebhookLogRepository
	queue       ports.JobQueue
	interval    time.Duration
	log         zerolog.Logger
}

// NewRetryScheduler creates a new RetryScheduler.
func NewRetryScheduler(webhookRepo ports.WebhookLogRepository, queue ports.JobQueue, interval time.Duration, log zerolog.Logger) *RetryScheduler {
	return &RetryScheduler{
		webhookRepo: webhookRepo,
		queue:       queue,
		interval:    interval,
		log:         log,
	}
}

// Run scans for due retries on each tick until ctx is done.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("webhook retry scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("webhook retry scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick re-enqueues every due record once.
func (s *RetryScheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.webhookRepo.FindDueRetries(ctx, now)
	if err != nil {
		s.log.Warn().Err(err).Msg("due-retry scan failed")
		return
	}

	for i := range due {
		record := &due[i]
		job := domain.WebhookJob{
			JobID:      record.ID,
			MerchantID: record.MerchantID,
			Event:      record.Event,
			Payload:    record.Payload,
			CreatedAt:  now,
		}
		payload, err := json.Marshal(job)
		if err != nil {
			s.log.Error().Err(err).Str("webhook_id", record.ID).Msg("failed to marshal retry job")
			continue
		}
		if err := s.queue.Enqueue(ctx, domain.WebhookQueue, job.JobID, payload); err != nil {
			s.log.Warn().Err(err).Str("webhook_id", record.ID).Msg("failed to enqueue retry, will rescan next tick")
			continue
		}
		s.log.Debug().Str("webhook_id", record.ID).Int("attempts", record.Attempts).Msg("webhook retry enqueued")
	}
}
