package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IdempotencyTTL is how long a stored response keeps deduplicating
// repeated creation requests.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyRecord maps a client-supplied key (scoped per merchant) to
// the response that was computed on the first call. Unique on
// (key, merchant_id); expired rows are deleted lazily on read.
type IdempotencyRecord struct {
	ID         uuid.UUID       `json:"id"`
	Key        string          `json:"key"`
	MerchantID uuid.UUID       `json:"merchant_id"`
	Response   json.RawMessage `json:"response"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// IsExpired reports whether the record is past its TTL at the given time.
func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// IdempotencyCacheKey builds the redis fast-path key for a merchant/key pair.
func IdempotencyCacheKey(merchantID uuid.UUID, key string) string {
	return merchantID.String() + ":" + key
}
