package postgres

import (
	"context"
	"errors"
	"fmt"

	"async-payment-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, order_id, merchant_id, amount, currency, method, status,
			vpa, card_network, card_last4, error_code, error_description, captured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.OrderID, p.MerchantID, p.Amount, p.Currency, p.Method, p.Status,
		p.VPA, p.CardNetwork, p.CardLast4, p.ErrorCode, p.ErrorDescription,
		p.Captured, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by id.
func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT id, order_id, merchant_id, amount, currency, method, status,
			vpa, card_network, card_last4, error_code, error_description, captured, created_at, updated_at
		FROM payments WHERE id = $1`

	p := &domain.Payment{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.OrderID, &p.MerchantID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.VPA, &p.CardNetwork, &p.CardLast4, &p.ErrorCode, &p.ErrorDescription,
		&p.Captured, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// Update persists the mutable fields of a settled payment.
func (r *PaymentRepo) Update(ctx context.Context, p *domain.Payment) error {
	query := `UPDATE payments
		SET status=$1, error_code=$2, error_description=$3, captured=$4, updated_at=NOW()
		WHERE id=$5`

	_, err := r.pool.Exec(ctx, query,
		p.Status, p.ErrorCode, p.ErrorDescription, p.Captured, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// Exists reports whether a payment with the given id is already stored.
func (r *PaymentRepo) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment exists: %w", err)
	}
	return exists, nil
}
