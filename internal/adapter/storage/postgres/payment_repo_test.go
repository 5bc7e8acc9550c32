package postgres

import (
	"context"
	"testing"
	"time"

	"async-payment-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	vpa := "alice@upi"
	p := &domain.Payment{
		ID:         "pay_AbCdEfGh12345678",
		OrderID:    "order_001",
		MerchantID: uuid.New(),
		Amount:     50000,
		Currency:   "INR",
		Method:     domain.PaymentMethodUPI,
		Status:     domain.PaymentStatusProcessing,
		VPA:        &vpa,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.OrderID, p.MerchantID, p.Amount, p.Currency, p.Method, p.Status,
			p.VPA, p.CardNetwork, p.CardLast4, p.ErrorCode, p.ErrorDescription,
			p.Captured, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs("pay_missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	p, err := repo.GetByID(context.Background(), "pay_missing")
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	code := "PAYMENT_FAILED"
	desc := "Payment processing failed"
	p := &domain.Payment{
		ID:               "pay_AbCdEfGh12345678",
		Status:           domain.PaymentStatusFailed,
		ErrorCode:        &code,
		ErrorDescription: &desc,
	}

	mock.ExpectExec("UPDATE payments").
		WithArgs(p.Status, p.ErrorCode, p.ErrorDescription, p.Captured, p.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.Update(context.Background(), p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Exists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("pay_AbCdEfGh12345678").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "pay_AbCdEfGh12345678")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
