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

// RefundWorker settles refunds from the refund-jobs queue. Invariants
// are re-validated here, not just at creation time: another refund
// against the same payment may have settled in between, and the cap
// check must hold at execution time.
type RefundWorker struct {
	refundRepo  ports.RefundRepository
	paymentRepo ports.PaymentRepository
	webhookSvc  ports.WebhookService
	cfg         config.WorkerConfig
	randFloat   func() float64
	log         zerolog.Logger
}

// NewRefundWorker creates a new RefundWorker.
func NewRefundWorker(refundRepo ports.RefundRepository, paymentRepo ports.PaymentRepository, webhookSvc ports.WebhookService, cfg config.WorkerConfig, log zerolog.Logger) *RefundWorker {
	return &RefundWorker{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		webhookSvc:  webhookSvc,
		cfg:         cfg,
		randFloat:   rand.Float64,
		log:         log,
	}
}

// Queue returns the queue this worker consumes.
func (w *RefundWorker) Queue() string {
	return domain.RefundQueue
}

// Process settles one refund job.
func (w *RefundWorker) Process(ctx context.Context, job ports.QueuedJob) error {
	var rj domain.RefundJob
	if err := json.Unmarshal(job.Payload, &rj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	refund, err := w.refundRepo.GetByID(ctx, rj.RefundID)
	if err != nil {
		return fmt.Errorf("load refund %s: %w", rj.RefundID, err)
	}
	if refund == nil {
		w.log.Warn().Str("refund_id", rj.RefundID).Str("job_id", rj.JobID).Msg("refund vanished, dropping job")
		return nil
	}
	if refund.Status != domain.RefundStatusPending {
		// Already settled (at-least-once re-delivery).
		return nil
	}

	ok, err := w.revalidate(ctx, refund)
	if err != nil {
		return err
	}
	if !ok {
		refund.Status = domain.RefundStatusFailed
		if err := w.refundRepo.Update(ctx, refund); err != nil {
			return fmt.Errorf("persist failed refund %s: %w", refund.ID, err)
		}
		w.log.Warn().Str("refund_id", refund.ID).Msg("refund invariants no longer hold, marked failed")
		return nil
	}

	if !sleepCtx(ctx, w.processingDelay()) {
		return ctx.Err()
	}

	now := time.Now().UTC()
	refund.Status = domain.RefundStatusProcessed
	refund.ProcessedAt = &now
	if err := w.refundRepo.Update(ctx, refund); err != nil {
		return fmt.Errorf("persist refund %s: %w", refund.ID, err)
	}

	w.log.Info().Str("refund_id", refund.ID).Str("payment_id", refund.PaymentID).Msg("refund processed")

	if err := w.webhookSvc.EnqueueRefundEvent(ctx, domain.EventRefundProcessed, refund); err != nil {
		w.log.Error().Err(err).Str("refund_id", refund.ID).Msg("failed to enqueue refund webhook")
	}
	return nil
}

// revalidate checks, at execution time, that the payment is still
// refundable and that settling this refund keeps the total of
// non-failed refunds within the payment amount.
func (w *RefundWorker) revalidate(ctx context.Context, refund *domain.Refund) (bool, error) {
	payment, err := w.paymentRepo.GetByID(ctx, refund.PaymentID)
	if err != nil {
		return false, fmt.Errorf("load payment %s: %w", refund.PaymentID, err)
	}
	if payment == nil || !payment.IsRefundable() {
		return false, nil
	}

	refunds, err := w.refundRepo.ListByPaymentID(ctx, refund.PaymentID)
	if err != nil {
		return false, fmt.Errorf("list refunds for %s: %w", refund.PaymentID, err)
	}
	var total int64
	for i := range refunds {
		if refunds[i].CountsTowardRefunded() {
			total += refunds[i].Amount
		}
	}
	// This refund is already in the listing (status pending), so total
	// includes it.
	return total <= payment.Amount, nil
}

func (w *RefundWorker) processingDelay() time.Duration {
	if w.cfg.TestMode {
		return w.cfg.TestProcessTime
	}
	// Uniform 3-5s settlement simulation
	return 3*time.Second + time.Duration(w.randFloat()*float64(2*time.Second))
}
