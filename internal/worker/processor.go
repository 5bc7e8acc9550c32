package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// ErrMalformedJob marks a payload that cannot be deserialized. The
// processor quarantines such jobs instead of retrying them forever.
var ErrMalformedJob = errors.New("malformed job payload")

// Handler consumes jobs from one named queue.
type Handler interface {
	Queue() string
	Process(ctx context.Context, job ports.QueuedJob) error
}

// Processor polls each registered handler's queue on a fixed period and
// dispatches jobs sequentially within a tick. Queues poll independently:
// a slow payment job never blocks webhook delivery. A job is removed
// only after its handler returns without error, so a crash mid-job
// leaves it queued for the next tick (at-least-once delivery).
type Processor struct {
	queue    ports.JobQueue
	handlers []Handler
	interval time.Duration
	stagger  time.Duration
	log      zerolog.Logger

	wg sync.WaitGroup
}

// NewProcessor creates a Processor polling every interval, with each
// handler's first tick offset by its index times stagger.
func NewProcessor(queue ports.JobQueue, interval, stagger time.Duration, log zerolog.Logger, handlers ...Handler) *Processor {
	return &Processor{
		queue:    queue,
		handlers: handlers,
		interval: interval,
		stagger:  stagger,
		log:      log,
	}
}

// Start launches one polling goroutine per handler. It returns
// immediately; cancel ctx and call Wait to stop.
func (p *Processor) Start(ctx context.Context) {
	for i, h := range p.handlers {
		p.wg.Add(1)
		go func(offset time.Duration, h Handler) {
			defer p.wg.Done()
			p.poll(ctx, offset, h)
		}(time.Duration(i)*p.stagger, h)
	}
	p.log.Info().
		Int("handlers", len(p.handlers)).
		Dur("interval", p.interval).
		Msg("job processor started")
}

// Wait blocks until all polling goroutines have exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) poll(ctx context.Context, offset time.Duration, h Handler) {
	if offset > 0 {
		if !sleepCtx(ctx, offset) {
			return
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log := p.log.With().Str("queue", h.Queue()).Logger()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx, h, log)
		}
	}
}

func (p *Processor) tick(ctx context.Context, h Handler, log zerolog.Logger) {
	if err := p.queue.Heartbeat(ctx); err != nil {
		log.Warn().Err(err).Msg("heartbeat write failed")
	}

	jobs, err := p.queue.DequeueAll(ctx, h.Queue())
	if err != nil {
		log.Warn().Err(err).Msg("queue snapshot failed")
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		p.dispatch(ctx, h, job, log)
	}
}

// dispatch runs one job through its handler and settles the ledger.
// Handler errors leave the job queued for the next tick, except
// malformed payloads, which are removed and marked failed.
func (p *Processor) dispatch(ctx context.Context, h Handler, job ports.QueuedJob, log zerolog.Logger) {
	if err := p.queue.SetStatus(ctx, job.ID, domain.JobStatusProcessing); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark job processing")
	}

	err := h.Process(ctx, job)
	switch {
	case err == nil:
		if err := p.queue.Remove(ctx, h.Queue(), job.ID); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove completed job")
		}
		if err := p.queue.SetStatus(ctx, job.ID, domain.JobStatusCompleted); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark job completed")
		}
	case errors.Is(err, ErrMalformedJob):
		log.Error().Err(err).Str("job_id", job.ID).Msg("quarantining malformed job")
		if err := p.queue.Remove(ctx, h.Queue(), job.ID); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove malformed job")
		}
		if err := p.queue.SetStatus(ctx, job.ID, domain.JobStatusFailed); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark job failed")
		}
	default:
		log.Error().Err(err).Str("job_id", job.ID).Msg("job failed, will retry next tick")
		if err := p.queue.SetStatus(ctx, job.ID, domain.JobStatusPending); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark job pending")
		}
	}
}

// sleepCtx sleeps for d or until ctx is done. Reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
