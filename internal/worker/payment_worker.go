package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"async-payment-gateway/config"
	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// Per-method settlement success rates in production mode.
const (
	upiSuccessRate  = 0.90
	cardSuccessRate = 0.95
)

// PaymentWorker settles payments from the payment-jobs queue. The
// settlement outcome is simulated: a processing delay followed by a
// per-method success draw, or fixed results in test mode.
type PaymentWorker struct {
	paymentRepo ports.PaymentRepository
	webhookSvc  ports.WebhookService
	cfg         config.WorkerConfig
	randFloat   func() float64
	log         zerolog.Logger
}

// NewPaymentWorker creates a new PaymentWorker.
func NewPaymentWorker(paymentRepo ports.PaymentRepository, webhookSvc ports.WebhookService, cfg config.WorkerConfig, log zerolog.Logger) *PaymentWorker {
	return &PaymentWorker{
		paymentRepo: paymentRepo,
		webhookSvc:  webhookSvc,
		cfg:         cfg,
		randFloat:   rand.Float64,
		log:         log,
	}
}

// Queue returns the queue this worker consumes.
func (w *PaymentWorker) Queue() string {
	return domain.PaymentQueue
}

// Process settles one payment job.
func (w *PaymentWorker) Process(ctx context.Context, job ports.QueuedJob) error {
	var pj domain.PaymentJob
	if err := json.Unmarshal(job.Payload, &pj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	payment, err := w.paymentRepo.GetByID(ctx, pj.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", pj.PaymentID, err)
	}
	if payment == nil {
		// Referenced record is gone; nothing to settle.
		w.log.Warn().Str("payment_id", pj.PaymentID).Str("job_id", pj.JobID).Msg("payment vanished, dropping job")
		return nil
	}
	if payment.IsTerminal() {
		// Re-delivery of an already-settled payment (at-least-once).
		return nil
	}

	if !sleepCtx(ctx, w.processingDelay()) {
		return ctx.Err()
	}

	if w.settle(payment) {
		payment.Status = domain.PaymentStatusSuccess
		payment.Captured = true
	} else {
		code := "PAYMENT_FAILED"
		desc := "Payment processing failed"
		payment.Status = domain.PaymentStatusFailed
		payment.ErrorCode = &code
		payment.ErrorDescription = &desc
	}
	payment.UpdatedAt = time.Now().UTC()

	if err := w.paymentRepo.Update(ctx, payment); err != nil {
		return fmt.Errorf("persist payment %s: %w", payment.ID, err)
	}

	w.log.Info().
		Str("payment_id", payment.ID).
		Str("status", string(payment.Status)).
		Msg("payment settled")

	event := domain.EventPaymentSuccess
	if payment.Status == domain.PaymentStatusFailed {
		event = domain.EventPaymentFailed
	}
	if err := w.webhookSvc.EnqueuePaymentEvent(ctx, event, payment); err != nil {
		// The payment is settled; a lost notification is recoverable
		// via the webhook retry endpoint.
		w.log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to enqueue payment webhook")
	}
	return nil
}

func (w *PaymentWorker) processingDelay() time.Duration {
	if w.cfg.TestMode {
		return w.cfg.TestProcessTime
	}
	// Uniform 5-10s settlement simulation
	return 5*time.Second + time.Duration(w.randFloat()*float64(5*time.Second))
}

func (w *PaymentWorker) settle(payment *domain.Payment) bool {
	if w.cfg.TestMode {
		return w.cfg.TestSuccess
	}
	rate := upiSuccessRate
	if payment.Method == domain.PaymentMethodCard {
		rate = cardSuccessRate
	}
	return w.randFloat() < rate
}
