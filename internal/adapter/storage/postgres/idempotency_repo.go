package postgres

import (
	"context"
	"errors"
	"fmt"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyRepo implements ports.IdempotencyRepository. The table's
// unique constraint on (key, merchant_id) arbitrates concurrent inserts.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create inserts an idempotency record. Returns ports.ErrDuplicateKey
// when another request already stored this (key, merchant_id) pair.
func (r *IdempotencyRepo) Create(ctx context.Context, rec *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_records (id, key, merchant_id, response, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Key, rec.MerchantID, rec.Response, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ports.ErrDuplicateKey
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// Get fetches an idempotency record by key and merchant.
func (r *IdempotencyRepo) Get(ctx context.Context, key string, merchantID uuid.UUID) (*domain.IdempotencyRecord, error) {
	query := `SELECT id, key, merchant_id, response, created_at, expires_at
		FROM idempotency_records WHERE key = $1 AND merchant_id = $2`

	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, key, merchantID).Scan(
		&rec.ID, &rec.Key, &rec.MerchantID, &rec.Response, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// Delete removes a record, typically after its TTL elapsed.
func (r *IdempotencyRepo) Delete(ctx context.Context, key string, merchantID uuid.UUID) error {
	query := `DELETE FROM idempotency_records WHERE key = $1 AND merchant_id = $2`

	_, err := r.pool.Exec(ctx, query, key, merchantID)
	if err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}
