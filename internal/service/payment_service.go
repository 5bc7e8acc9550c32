package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentServiceImpl implements ports.PaymentService. Payments are
// created in processing state and settled asynchronously by the payment
// worker; the response replay path makes creation idempotent when the
// caller supplies a key.
type PaymentServiceImpl struct {
	paymentRepo ports.PaymentRepository
	orderRepo   ports.OrderRepository
	idempRepo   ports.IdempotencyRepository
	idempCache  ports.IdempotencyCache
	queue       ports.JobQueue
	idGen       ports.IDGenerator
	log         zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	orderRepo ports.OrderRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	queue ports.JobQueue,
	idGen ports.IDGenerator,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		idempRepo:   idempRepo,
		idempCache:  idempCache,
		queue:       queue,
		idGen:       idGen,
		log:         log,
	}
}

// CreatePayment validates the order, persists a processing payment and
// enqueues a settlement job. With an idempotency key, a repeated call
// replays the stored response verbatim and performs no new side effects.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Payment, bool, error) {
	if req.Method != domain.PaymentMethodUPI && req.Method != domain.PaymentMethodCard {
		return nil, false, apperror.ErrInvalidPaymentMethod()
	}

	if req.IdempotencyKey != nil {
		if cached, ok := s.lookupIdempotent(ctx, req.MerchantID, *req.IdempotencyKey); ok {
			return cached, true, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, false, apperror.ErrDatabaseError(fmt.Errorf("load order: %w", err))
	}
	if order == nil {
		return nil, false, apperror.ErrNotFound("order")
	}
	if order.MerchantID != req.MerchantID {
		return nil, false, apperror.ErrNotOwned("order")
	}

	paymentID, err := s.idGen.PaymentID(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("generate payment id: %w", err))
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:          paymentID,
		OrderID:     order.ID,
		MerchantID:  req.MerchantID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Method:      req.Method,
		Status:      domain.PaymentStatusProcessing,
		VPA:         req.VPA,
		CardNetwork: req.CardNetwork,
		CardLast4:   req.CardLast4,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, false, apperror.ErrDatabaseError(fmt.Errorf("insert payment: %w", err))
	}

	if req.IdempotencyKey != nil {
		if winner, replayed := s.storeIdempotent(ctx, req.MerchantID, *req.IdempotencyKey, payment); replayed {
			return winner, true, nil
		}
	}

	s.enqueueSettlement(ctx, payment.ID)

	return payment, false, nil
}

// lookupIdempotent checks the redis fast path, then the durable store.
// Expired durable rows are deleted and treated as absent.
func (s *PaymentServiceImpl) lookupIdempotent(ctx context.Context, merchantID uuid.UUID, key string) (*domain.Payment, bool) {
	cacheKey := domain.IdempotencyCacheKey(merchantID, key)

	cached, err := s.idempCache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		if p, err := unmarshalPayment(cached); err == nil {
			return p, true
		}
	}

	rec, err := s.idempRepo.Get(ctx, key, merchantID)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("db idempotency check failed, treating as miss")
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	if rec.IsExpired(time.Now().UTC()) {
		if err := s.idempRepo.Delete(ctx, key, merchantID); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to delete expired idempotency record")
		}
		return nil, false
	}

	p, err := unmarshalPayment(rec.Response)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("stored idempotency response is unreadable")
		return nil, false
	}
	return p, true
}

// storeIdempotent records the computed response. When a concurrent
// request won the unique-constraint race, the winner's response is
// returned and the caller replays it instead of this request's payment.
func (s *PaymentServiceImpl) storeIdempotent(ctx context.Context, merchantID uuid.UUID, key string, payment *domain.Payment) (*domain.Payment, bool) {
	response, err := json.Marshal(payment)
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to marshal idempotency response")
		return nil, false
	}

	now := time.Now().UTC()
	rec := &domain.IdempotencyRecord{
		ID:         uuid.New(),
		Key:        key,
		MerchantID: merchantID,
		Response:   response,
		CreatedAt:  now,
		ExpiresAt:  now.Add(domain.IdempotencyTTL),
	}

	err = s.idempRepo.Create(ctx, rec)
	if errors.Is(err, ports.ErrDuplicateKey) {
		// A concurrent request with the same key beat us to the insert.
		// Replay the winner's response; this request's payment stays
		// orphaned in processing and is never enqueued.
		winner, werr := s.idempRepo.Get(ctx, key, merchantID)
		if werr != nil || winner == nil {
			s.log.Error().Err(werr).Str("key", key).Msg("idempotency race lost but winner unreadable")
			return nil, false
		}
		p, perr := unmarshalPayment(winner.Response)
		if perr != nil {
			s.log.Error().Err(perr).Str("key", key).Msg("winner idempotency response is unreadable")
			return nil, false
		}
		return p, true
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to store idempotency record")
		return nil, false
	}

	cacheKey := domain.IdempotencyCacheKey(merchantID, key)
	if err := s.idempCache.Set(ctx, cacheKey, response, domain.IdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency response")
	}
	return nil, false
}

// enqueueSettlement hands the payment to the job system. The payment row
// is already durable, so an unreachable queue is logged, not rolled back.
func (s *PaymentServiceImpl) enqueueSettlement(ctx context.Context, paymentID string) {
	job := domain.PaymentJob{
		JobID:     s.idGen.JobID(),
		PaymentID: paymentID,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", paymentID).Msg("failed to marshal payment job")
		return
	}
	if err := s.queue.Enqueue(ctx, domain.PaymentQueue, job.JobID, payload); err != nil {
		s.log.Error().Err(err).
			Str("payment_id", paymentID).
			Str("job_id", job.JobID).
			Msg("failed to enqueue payment job, payment stays in processing")
	}
}

func unmarshalPayment(data []byte) (*domain.Payment, error) {
	var p domain.Payment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached payment: %w", err)
	}
	return &p, nil
}
