package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// RefundServiceImpl implements ports.RefundService. Validation here is
// advisory only: the refund worker re-validates at execution time, since
// other refunds against the same payment may settle in between.
type RefundServiceImpl struct {
	refundRepo  ports.RefundRepository
	paymentRepo ports.PaymentRepository
	queue       ports.JobQueue
	idGen       ports.IDGenerator
	log         zerolog.Logger
}

// NewRefundService creates a new RefundServiceImpl.
func NewRefundService(
	refundRepo ports.RefundRepository,
	paymentRepo ports.PaymentRepository,
	queue ports.JobQueue,
	idGen ports.IDGenerator,
	log zerolog.Logger,
) *RefundServiceImpl {
	return &RefundServiceImpl{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		queue:       queue,
		idGen:       idGen,
		log:         log,
	}
}

// CreateRefund validates against the payment's current state, persists a
// pending refund and enqueues a settlement job.
func (s *RefundServiceImpl) CreateRefund(ctx context.Context, req ports.CreateRefundRequest) (*domain.Refund, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if payment.MerchantID != req.MerchantID {
		return nil, apperror.ErrNotOwned("payment")
	}
	if !payment.IsRefundable() {
		return nil, apperror.ErrPaymentNotRefundable()
	}

	refunded, err := s.totalRefunded(ctx, payment.ID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("sum refunds: %w", err))
	}
	if refunded+req.Amount > payment.Amount {
		return nil, apperror.ErrRefundExceedsPayment()
	}

	refundID, err := s.idGen.RefundID(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate refund id: %w", err))
	}

	refund := &domain.Refund{
		ID:         refundID,
		PaymentID:  payment.ID,
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		Status:     domain.RefundStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.refundRepo.Create(ctx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert refund: %w", err))
	}

	s.enqueueSettlement(ctx, refund)

	return refund, nil
}

func (s *RefundServiceImpl) totalRefunded(ctx context.Context, paymentID string) (int64, error) {
	refunds, err := s.refundRepo.ListByPaymentID(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	var total int64
	for i := range refunds {
		if refunds[i].CountsTowardRefunded() {
			total += refunds[i].Amount
		}
	}
	return total, nil
}

// enqueueSettlement hands the refund to the job system. The refund row
// is already durable, so an unreachable queue is logged, not rolled back.
func (s *RefundServiceImpl) enqueueSettlement(ctx context.Context, refund *domain.Refund) {
	job := domain.RefundJob{
		JobID:      s.idGen.JobID(),
		RefundID:   refund.ID,
		PaymentID:  refund.PaymentID,
		MerchantID: refund.MerchantID,
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		s.log.Error().Err(err).Str("refund_id", refund.ID).Msg("failed to marshal refund job")
		return
	}
	if err := s.queue.Enqueue(ctx, domain.RefundQueue, job.JobID, payload); err != nil {
		s.log.Error().Err(err).
			Str("refund_id", refund.ID).
			Str("job_id", job.JobID).
			Msg("failed to enqueue refund job, refund stays pending")
	}
}
