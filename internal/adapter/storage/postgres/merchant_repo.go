package postgres

import (
	"context"
	"errors"
	"fmt"

	"async-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT id, name, email, api_key, api_secret, webhook_url, webhook_secret, created_at
		FROM merchants WHERE id = $1`

	m := &domain.Merchant{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Email, &m.APIKey, &m.APISecret,
		&m.WebhookURL, &m.WebhookSecret, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// GetByAPIKey fetches a merchant by its public API key.
func (r *MerchantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Merchant, error) {
	query := `SELECT id, name, email, api_key, api_secret, webhook_url, webhook_secret, created_at
		FROM merchants WHERE api_key = $1`

	m := &domain.Merchant{}
	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&m.ID, &m.Name, &m.Email, &m.APIKey, &m.APISecret,
		&m.WebhookURL, &m.WebhookSecret, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by api_key: %w", err)
	}
	return m, nil
}
