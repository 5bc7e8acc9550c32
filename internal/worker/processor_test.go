package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobQueue is an in-memory ports.JobQueue for driving the processor
// without redis.
type fakeJobQueue struct {
	mu         sync.Mutex
	queues     map[string]map[string][]byte
	statuses   map[string]domain.JobStatus
	heartbeats int
}

func newFakeJobQueue() *fakeJobQueue {
	return &fakeJobQueue{
		queues:   make(map[string]map[string][]byte),
		statuses: make(map[string]domain.JobStatus),
	}
}

func (q *fakeJobQueue) Enqueue(_ context.Context, queue, jobID string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queues[queue] == nil {
		q.queues[queue] = make(map[string][]byte)
	}
	q.queues[queue][jobID] = payload
	q.statuses[jobID] = domain.JobStatusPending
	return nil
}

func (q *fakeJobQueue) DequeueAll(_ context.Context, queue string) ([]ports.QueuedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var jobs []ports.QueuedJob
	for id, payload := range q.queues[queue] {
		jobs = append(jobs, ports.QueuedJob{ID: id, Payload: payload})
	}
	return jobs, nil
}

func (q *fakeJobQueue) Remove(_ context.Context, queue, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues[queue], jobID)
	return nil
}

func (q *fakeJobQueue) SetStatus(_ context.Context, jobID string, status domain.JobStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[jobID] = status
	return nil
}

func (q *fakeJobQueue) GetStatus(_ context.Context, jobID string) (domain.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.statuses[jobID]; ok {
		return s, nil
	}
	return domain.JobStatusPending, nil
}

func (q *fakeJobQueue) Counts(context.Context) (domain.QueueCounts, error) {
	return domain.QueueCounts{}, nil
}

func (q *fakeJobQueue) Heartbeat(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats++
	return nil
}

func (q *fakeJobQueue) WorkerAlive(context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heartbeats > 0, nil
}

func (q *fakeJobQueue) queueLen(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue])
}

func (q *fakeJobQueue) status(jobID string) domain.JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statuses[jobID]
}

// funcHandler adapts a function to the Handler interface.
type funcHandler struct {
	queue string
	fn    func(ctx context.Context, job ports.QueuedJob) error
}

func (h *funcHandler) Queue() string { return h.queue }

func (h *funcHandler) Process(ctx context.Context, job ports.QueuedJob) error {
	return h.fn(ctx, job)
}

func TestProcessor_CompletesJob(t *testing.T) {
	queue := newFakeJobQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "test-jobs", "job_1", []byte(`{}`)))

	processed := make(chan string, 1)
	handler := &funcHandler{queue: "test-jobs", fn: func(_ context.Context, job ports.QueuedJob) error {
		processed <- job.ID
		return nil
	}}

	p := NewProcessor(queue, 10*time.Millisecond, 0, newTestLogger(), handler)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	select {
	case id := <-processed:
		assert.Equal(t, "job_1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never dispatched")
	}

	// Give the processor a moment to settle the ledger.
	assert.Eventually(t, func() bool {
		return queue.queueLen("test-jobs") == 0 && queue.status("job_1") == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	p.Wait()

	alive, err := queue.WorkerAlive(context.Background())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestProcessor_FailedJobStaysQueued(t *testing.T) {
	queue := newFakeJobQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "test-jobs", "job_flaky", []byte(`{}`)))

	var mu sync.Mutex
	calls := 0
	handler := &funcHandler{queue: "test-jobs", fn: func(context.Context, ports.QueuedJob) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("downstream unavailable")
	}}

	p := NewProcessor(queue, 10*time.Millisecond, 0, newTestLogger(), handler)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	// The job is retried on every tick and never leaves the queue.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	p.Wait()

	assert.Equal(t, 1, queue.queueLen("test-jobs"))
	assert.Equal(t, domain.JobStatusPending, queue.status("job_flaky"))
}

func TestProcessor_QuarantinesMalformedJob(t *testing.T) {
	queue := newFakeJobQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "test-jobs", "job_poison", []byte("not json")))

	handler := &funcHandler{queue: "test-jobs", fn: func(context.Context, ports.QueuedJob) error {
		return fmt.Errorf("%w: bad payload", ErrMalformedJob)
	}}

	p := NewProcessor(queue, 10*time.Millisecond, 0, newTestLogger(), handler)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	assert.Eventually(t, func() bool {
		return queue.queueLen("test-jobs") == 0 && queue.status("job_poison") == domain.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	p.Wait()
}

func TestProcessor_IndependentQueues(t *testing.T) {
	queue := newFakeJobQueue()
	require.NoError(t, queue.Enqueue(context.Background(), "slow-jobs", "job_slow", []byte(`{}`)))
	require.NoError(t, queue.Enqueue(context.Background(), "fast-jobs", "job_fast", []byte(`{}`)))

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	slow := &funcHandler{queue: "slow-jobs", fn: func(ctx context.Context, _ ports.QueuedJob) error {
		close(slowStarted)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}

	fastDone := make(chan struct{}, 1)
	fast := &funcHandler{queue: "fast-jobs", fn: func(context.Context, ports.QueuedJob) error {
		fastDone <- struct{}{}
		return nil
	}}

	p := NewProcessor(queue, 10*time.Millisecond, 0, newTestLogger(), slow, fast)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	<-slowStarted
	// A blocked slow queue must not stall the fast queue's poller.
	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast queue was blocked by slow queue")
	}

	close(release)
	cancel()
	p.Wait()
}
