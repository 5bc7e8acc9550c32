package redis

import (
	"context"
	"testing"
	"time"

	"async-payment-gateway/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*JobQueue, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	return NewJobQueue(client, 24*time.Hour, 30*time.Second), s
}

func TestJobQueue_EnqueueSetsPendingStatusAndCounter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	before, err := q.Counts(ctx)
	require.NoError(t, err)

	err = q.Enqueue(ctx, domain.PaymentQueue, "job_abc", []byte(`{"payment_id":"pay_1"}`))
	require.NoError(t, err)

	status, err := q.GetStatus(ctx, "job_abc")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, status)

	after, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Pending+1, after.Pending)
}

func TestJobQueue_ReenqueueWhileStillQueuedIsCounterNoop(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// A due record re-enqueued across scheduler ticks before the worker
	// got to it must not inflate the pending counter.
	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_1", []byte("a")))
	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_1", []byte("a")))
	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_1", []byte("a")))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)

	jobs, err := q.DequeueAll(ctx, domain.WebhookQueue)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestJobQueue_ReenqueueAfterSettlementMigratesCounter(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// First delivery cycle: enqueue, settle, remove.
	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_1", []byte("a")))
	require.NoError(t, q.SetStatus(ctx, "wh_1", domain.JobStatusCompleted))
	require.NoError(t, q.Remove(ctx, domain.WebhookQueue, "wh_1"))

	// Manual retry re-enqueues under the same id.
	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_1", []byte("a")))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(0), counts.Completed)

	status, err := q.GetStatus(ctx, "wh_1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, status)
}

func TestJobQueue_DequeueAllDoesNotRemove(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_1", []byte("a")))
	require.NoError(t, q.Enqueue(ctx, domain.WebhookQueue, "wh_2", []byte("b")))

	jobs, err := q.DequeueAll(ctx, domain.WebhookQueue)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	// Snapshot again: membership is unchanged until Remove.
	jobs, err = q.DequeueAll(ctx, domain.WebhookQueue)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestJobQueue_RemoveIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.RefundQueue, "job_r1", []byte("x")))
	require.NoError(t, q.Remove(ctx, domain.RefundQueue, "job_r1"))
	require.NoError(t, q.Remove(ctx, domain.RefundQueue, "job_r1"))

	jobs, err := q.DequeueAll(ctx, domain.RefundQueue)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobQueue_SetStatusMovesCounters(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.PaymentQueue, "job_1", []byte("x")))

	require.NoError(t, q.SetStatus(ctx, "job_1", domain.JobStatusProcessing))
	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Pending)
	assert.Equal(t, int64(1), counts.Processing)

	require.NoError(t, q.SetStatus(ctx, "job_1", domain.JobStatusCompleted))
	counts, err = q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Processing)
	assert.Equal(t, int64(1), counts.Completed)

	status, err := q.GetStatus(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, status)
}

func TestJobQueue_SetStatusSameStatusIsCounterNoop(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.PaymentQueue, "job_1", []byte("x")))
	require.NoError(t, q.SetStatus(ctx, "job_1", domain.JobStatusPending))
	require.NoError(t, q.SetStatus(ctx, "job_1", domain.JobStatusPending))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
}

func TestJobQueue_SetStatusWithoutPriorEntry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// Ledger entry expired; transition must still land and only
	// increment the new-status counter.
	require.NoError(t, q.SetStatus(ctx, "job_gone", domain.JobStatusCompleted))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Completed)
	assert.Equal(t, int64(0), counts.Pending)
}

func TestJobQueue_GetStatusMissingDefaultsToPending(t *testing.T) {
	q, _ := newTestQueue(t)

	status, err := q.GetStatus(context.Background(), "job_unknown")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, status)
}

func TestJobQueue_ExpiredPayloadPrunedFromSnapshot(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.PaymentQueue, "job_old", []byte("x")))
	s.FastForward(25 * time.Hour)

	jobs, err := q.DequeueAll(ctx, domain.PaymentQueue)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobQueue_Heartbeat(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()

	alive, err := q.WorkerAlive(ctx)
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, q.Heartbeat(ctx))
	alive, err = q.WorkerAlive(ctx)
	require.NoError(t, err)
	assert.True(t, alive)

	s.FastForward(31 * time.Second)
	alive, err = q.WorkerAlive(ctx)
	require.NoError(t, err)
	assert.False(t, alive)
}
