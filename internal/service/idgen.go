package service

import (
	"context"
	"crypto/rand"
	"fmt"

	"async-payment-gateway/internal/core/ports"
)

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 16

	// How many times a collision is retried before giving up. Collisions
	// over a 62^16 space are effectively impossible; the loop guards
	// against a broken random source.
	maxIDAttempts = 5
)

// PrefixedIDGenerator implements ports.IDGenerator. Payment and refund
// ids are checked against their stores so a generated id is never handed
// out twice; webhook and job ids rely on raw randomness.
type PrefixedIDGenerator struct {
	paymentRepo ports.PaymentRepository
	refundRepo  ports.RefundRepository
}

// NewPrefixedIDGenerator creates a new PrefixedIDGenerator.
func NewPrefixedIDGenerator(paymentRepo ports.PaymentRepository, refundRepo ports.RefundRepository) *PrefixedIDGenerator {
	return &PrefixedIDGenerator{paymentRepo: paymentRepo, refundRepo: refundRepo}
}

// PaymentID returns a fresh pay_-prefixed identifier not present in the
// payment store.
func (g *PrefixedIDGenerator) PaymentID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := "pay_" + randomAlphanumeric(idLength)
		exists, err := g.paymentRepo.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check payment id collision: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("exhausted %d attempts generating payment id", maxIDAttempts)
}

// RefundID returns a fresh rfnd_-prefixed identifier not present in the
// refund store.
func (g *PrefixedIDGenerator) RefundID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := "rfnd_" + randomAlphanumeric(idLength)
		exists, err := g.refundRepo.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check refund id collision: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("exhausted %d attempts generating refund id", maxIDAttempts)
}

// WebhookID returns a wh_-prefixed identifier.
func (g *PrefixedIDGenerator) WebhookID() string {
	return "wh_" + randomAlphanumeric(idLength)
}

// JobID returns a job_-prefixed identifier.
func (g *PrefixedIDGenerator) JobID() string {
	return "job_" + randomAlphanumeric(idLength)
}

func randomAlphanumeric(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
