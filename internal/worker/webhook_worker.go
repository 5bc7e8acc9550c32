package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient is the outbound POST seam, satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// responseBodyLimit bounds how much of a merchant response is read when
// capturing the first line for the delivery record.
const responseBodyLimit = 1024

// WebhookWorker delivers merchant notifications from the webhook-jobs
// queue. The job id is also the WebhookLog id: the first attempt creates
// the record, retries reuse it, and attempts accumulate across the
// record's lifetime. Delivery outcomes are recorded on the log, never
// surfaced as job errors; only store failures bubble up for a poller
// retry.
type WebhookWorker struct {
	webhookRepo  ports.WebhookLogRepository
	merchantRepo ports.MerchantRepository
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	backoff      []time.Duration
	maxAttempts  int
	timeout      time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewWebhookWorker creates a new WebhookWorker.
func NewWebhookWorker(
	webhookRepo ports.WebhookLogRepository,
	merchantRepo ports.MerchantRepository,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	backoff []time.Duration,
	maxAttempts int,
	timeout time.Duration,
	log zerolog.Logger,
) *WebhookWorker {
	return &WebhookWorker{
		webhookRepo:  webhookRepo,
		merchantRepo: merchantRepo,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		backoff:      backoff,
		maxAttempts:  maxAttempts,
		timeout:      timeout,
		now:          time.Now,
		log:          log,
	}
}

// Queue returns the queue this worker consumes.
func (w *WebhookWorker) Queue() string {
	return domain.WebhookQueue
}

// Process runs one delivery attempt.
func (w *WebhookWorker) Process(ctx context.Context, job ports.QueuedJob) error {
	var wj domain.WebhookJob
	if err := json.Unmarshal(job.Payload, &wj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	record, err := w.webhookRepo.GetByID(ctx, wj.JobID)
	if err != nil {
		return fmt.Errorf("load webhook log %s: %w", wj.JobID, err)
	}
	if record != nil && record.IsTerminal() {
		// Stale job for an already-settled record (at-least-once).
		return nil
	}

	merchant, err := w.merchantRepo.GetByID(ctx, wj.MerchantID)
	if err != nil {
		return fmt.Errorf("load merchant %s: %w", wj.MerchantID, err)
	}
	if merchant == nil || !merchant.WebhookConfigured() {
		return w.dropUnconfigured(ctx, record, wj)
	}

	if record == nil {
		record = &domain.WebhookLog{
			ID:         wj.JobID,
			MerchantID: wj.MerchantID,
			Event:      wj.Event,
			Payload:    wj.Payload,
			Status:     domain.WebhookStatusPending,
			CreatedAt:  w.now().UTC(),
		}
		if err := w.webhookRepo.Create(ctx, record); err != nil {
			return fmt.Errorf("create webhook log %s: %w", record.ID, err)
		}
	}

	code, body, deliveryErr := w.attempt(ctx, *merchant.WebhookURL, *merchant.WebhookSecret, record.Payload)

	now := w.now().UTC()
	record.Attempts++
	record.LastAttemptAt = &now
	record.ResponseCode = code
	record.ResponseBody = body
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		record.ResponseBody = &msg
	}

	switch {
	case code != nil && *code >= 200 && *code < 300:
		record.Status = domain.WebhookStatusSuccess
		record.NextRetryAt = nil
	case record.Attempts >= w.maxAttempts:
		reason := domain.FailureAttemptsExhausted
		record.Status = domain.WebhookStatusFailed
		record.FailureReason = &reason
		record.NextRetryAt = nil
	default:
		next := now.Add(w.delay(record.Attempts))
		record.Status = domain.WebhookStatusPending
		record.NextRetryAt = &next
	}

	if err := w.webhookRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("persist webhook log %s: %w", record.ID, err)
	}

	w.log.Info().
		Str("webhook_id", record.ID).
		Str("event", record.Event).
		Int("attempts", record.Attempts).
		Str("status", string(record.Status)).
		Msg("webhook delivery attempt recorded")
	return nil
}

// dropUnconfigured handles a merchant without delivery configuration.
// Before any record exists this is a silent drop; once a record exists
// (an explicit retry after the merchant cleared its config) it settles
// the record as failed so the retry is observable.
func (w *WebhookWorker) dropUnconfigured(ctx context.Context, record *domain.WebhookLog, wj domain.WebhookJob) error {
	if record == nil {
		w.log.Warn().
			Str("job_id", wj.JobID).
			Str("merchant_id", wj.MerchantID.String()).
			Msg("merchant webhook not configured, dropping delivery")
		return nil
	}
	reason := domain.FailureNotConfigured
	record.Status = domain.WebhookStatusFailed
	record.FailureReason = &reason
	record.NextRetryAt = nil
	if err := w.webhookRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("persist webhook log %s: %w", record.ID, err)
	}
	return nil
}

// attempt issues one signed POST. A transport error yields (nil, nil,
// err); an HTTP response yields its status code and first body line.
func (w *WebhookWorker) attempt(ctx context.Context, url, secret string, payload []byte) (*int, *string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", w.sigSvc.Sign(secret, payload))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	body := firstLine(resp.Body)
	return &code, body, nil
}

func (w *WebhookWorker) delay(attempts int) time.Duration {
	if len(w.backoff) == 0 {
		return 0
	}
	if attempts >= len(w.backoff) {
		attempts = len(w.backoff) - 1
	}
	if attempts < 0 {
		attempts = 0
	}
	return w.backoff[attempts]
}

// firstLine reads at most one line (bounded) from the response body.
func firstLine(r io.Reader) *string {
	scanner := bufio.NewScanner(io.LimitReader(r, responseBodyLimit))
	if scanner.Scan() {
		line := scanner.Text()
		return &line
	}
	return nil
}
