package service

import (
	"context"
	"regexp"
	"testing"

	"async-payment-gateway/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var paymentIDPattern = regexp.MustCompile(`^pay_[a-zA-Z0-9]{16}$`)

func TestPrefixedIDGenerator_PaymentID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	paymentRepo := mocks.NewMockPaymentRepository(ctrl)
	refundRepo := mocks.NewMockRefundRepository(ctrl)
	paymentRepo.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)

	gen := NewPrefixedIDGenerator(paymentRepo, refundRepo)
	id, err := gen.PaymentID(context.Background())

	require.NoError(t, err)
	assert.Regexp(t, paymentIDPattern, id)
}

func TestPrefixedIDGenerator_PaymentID_RetriesOnCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	paymentRepo := mocks.NewMockPaymentRepository(ctrl)
	refundRepo := mocks.NewMockRefundRepository(ctrl)
	gomock.InOrder(
		paymentRepo.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil),
		paymentRepo.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil),
	)

	gen := NewPrefixedIDGenerator(paymentRepo, refundRepo)
	id, err := gen.PaymentID(context.Background())

	require.NoError(t, err)
	assert.Regexp(t, paymentIDPattern, id)
}

func TestPrefixedIDGenerator_RefundID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	paymentRepo := mocks.NewMockPaymentRepository(ctrl)
	refundRepo := mocks.NewMockRefundRepository(ctrl)
	refundRepo.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)

	gen := NewPrefixedIDGenerator(paymentRepo, refundRepo)
	id, err := gen.RefundID(context.Background())

	require.NoError(t, err)
	assert.Regexp(t, `^rfnd_[a-zA-Z0-9]{16}$`, id)
}

func TestPrefixedIDGenerator_WebhookAndJobIDs(t *testing.T) {
	gen := NewPrefixedIDGenerator(nil, nil)

	assert.Regexp(t, `^wh_[a-zA-Z0-9]{16}$`, gen.WebhookID())
	assert.Regexp(t, `^job_[a-zA-Z0-9]{16}$`, gen.JobID())
	assert.NotEqual(t, gen.JobID(), gen.JobID())
}
