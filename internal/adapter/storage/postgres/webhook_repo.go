package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"async-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WebhookLogRepo implements ports.WebhookLogRepository.
type WebhookLogRepo struct {
	pool Pool
}

// NewWebhookLogRepo creates a new WebhookLogRepo.
func NewWebhookLogRepo(pool Pool) *WebhookLogRepo {
	return &WebhookLogRepo{pool: pool}
}

// Create inserts a new delivery record.
func (r *WebhookLogRepo) Create(ctx context.Context, l *domain.WebhookLog) error {
	query := `INSERT INTO webhook_logs (id, merchant_id, event, payload, status, failure_reason,
			attempts, last_attempt_at, next_retry_at, response_code, response_body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.MerchantID, l.Event, l.Payload, l.Status, l.FailureReason,
		l.Attempts, l.LastAttemptAt, l.NextRetryAt, l.ResponseCode, l.ResponseBody, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

// Update persists the outcome of a delivery attempt.
func (r *WebhookLogRepo) Update(ctx context.Context, l *domain.WebhookLog) error {
	query := `UPDATE webhook_logs
		SET status=$1, failure_reason=$2, attempts=$3, last_attempt_at=$4,
			next_retry_at=$5, response_code=$6, response_body=$7
		WHERE id=$8`

	_, err := r.pool.Exec(ctx, query,
		l.Status, l.FailureReason, l.Attempts, l.LastAttemptAt,
		l.NextRetryAt, l.ResponseCode, l.ResponseBody, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook log: %w", err)
	}
	return nil
}

// GetByID fetches a delivery record by id.
func (r *WebhookLogRepo) GetByID(ctx context.Context, id string) (*domain.WebhookLog, error) {
	query := `SELECT id, merchant_id, event, payload, status, failure_reason,
			attempts, last_attempt_at, next_retry_at, response_code, response_body, created_at
		FROM webhook_logs WHERE id = $1`

	l := &domain.WebhookLog{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.MerchantID, &l.Event, &l.Payload, &l.Status, &l.FailureReason,
		&l.Attempts, &l.LastAttemptAt, &l.NextRetryAt, &l.ResponseCode, &l.ResponseBody, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook log by id: %w", err)
	}
	return l, nil
}

// ListByMerchant returns a page of a merchant's delivery records plus the
// unpaged total, newest first.
func (r *WebhookLogRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.WebhookLog, int64, error) {
	countQuery := `SELECT COUNT(*) FROM webhook_logs WHERE merchant_id = $1`

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, merchantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhook logs: %w", err)
	}

	query := `SELECT id, merchant_id, event, payload, status, failure_reason,
			attempts, last_attempt_at, next_retry_at, response_code, response_body, created_at
		FROM webhook_logs WHERE merchant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, merchantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanWebhookLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// FindDueRetries returns pending records whose next_retry_at has elapsed,
// earliest due first. Records with no next_retry_at are never due.
func (r *WebhookLogRepo) FindDueRetries(ctx context.Context, now time.Time) ([]domain.WebhookLog, error) {
	query := `SELECT id, merchant_id, event, payload, status, failure_reason,
			attempts, last_attempt_at, next_retry_at, response_code, response_body, created_at
		FROM webhook_logs
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at ASC`

	rows, err := r.pool.Query(ctx, query, domain.WebhookStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("find due webhook retries: %w", err)
	}
	defer rows.Close()

	return scanWebhookLogs(rows)
}

func scanWebhookLogs(rows pgx.Rows) ([]domain.WebhookLog, error) {
	var logs []domain.WebhookLog
	for rows.Next() {
		var l domain.WebhookLog
		if err := rows.Scan(
			&l.ID, &l.MerchantID, &l.Event, &l.Payload, &l.Status, &l.FailureReason,
			&l.Attempts, &l.LastAttemptAt, &l.NextRetryAt, &l.ResponseCode, &l.ResponseBody, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook logs: %w", err)
	}
	return logs, nil
}
