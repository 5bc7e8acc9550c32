package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/pkg/apperror"

	goredis "github.com/redis/go-redis/v9"
)

const (
	queueKeyPrefix   = "queue:"
	jobKeyPrefix     = "job:"
	statusKeyPrefix  = "job:status:"
	counterKeyPrefix = "job:counter:"
	heartbeatKey     = "worker:heartbeat"
)

// setStatusScript transitions a job's ledger entry and adjusts the
// per-status counters in one atomic round trip. A same-status set only
// refreshes the TTL. The old-status counter is decremented only while
// positive so crash-skewed counters cannot go negative.
// KEYS[1] = status key; ARGV = new status, ttl seconds, counter prefix.
var setStatusScript = goredis.NewScript(`
local old = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
if old == ARGV[1] then
  return 0
end
if old then
  local okey = ARGV[3] .. old
  local c = tonumber(redis.call('GET', okey) or '0')
  if c > 0 then
    redis.call('DECR', okey)
  end
end
redis.call('INCR', ARGV[3] .. ARGV[1])
return 1
`)

// enqueueScript adds the job to the queue set, writes its payload and a
// pending ledger entry, and settles the counters. Counters move only
// when the SADD actually added a member, so a re-enqueue of a job that
// is still queued (a record staying due across scheduler ticks) is a
// counter no-op. A genuine re-enqueue of a settled job migrates its
// counter from the old status to pending.
// KEYS = queue set, payload key, status key; ARGV = job id, payload,
// pending status, ttl seconds, counter prefix.
var enqueueScript = goredis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[4])
local old = redis.call('GET', KEYS[3])
redis.call('SET', KEYS[3], ARGV[3], 'EX', ARGV[4])
if added == 0 or old == ARGV[3] then
  return 0
end
if old then
  local okey = ARGV[5] .. old
  local c = tonumber(redis.call('GET', okey) or '0')
  if c > 0 then
    redis.call('DECR', okey)
  end
end
redis.call('INCR', ARGV[5] .. ARGV[3])
return 1
`)

// JobQueue implements ports.JobQueue on Redis: a SET of job ids per
// named queue, a string value per job payload, a status ledger with
// bounded retention, and one counter per status.
type JobQueue struct {
	client       *goredis.Client
	statusTTL    time.Duration
	heartbeatTTL time.Duration
}

// NewJobQueue creates a Redis-backed job queue.
func NewJobQueue(client *goredis.Client, statusTTL, heartbeatTTL time.Duration) *JobQueue {
	return &JobQueue{
		client:       client,
		statusTTL:    statusTTL,
		heartbeatTTL: heartbeatTTL,
	}
}

// Enqueue adds the job to the named queue, stores its payload, writes a
// pending ledger entry and settles the counters atomically.
func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobID string, payload []byte) error {
	err := enqueueScript.Run(ctx, q.client,
		[]string{queueKeyPrefix + queue, jobKeyPrefix + jobID, statusKeyPrefix + jobID},
		jobID,
		payload,
		string(domain.JobStatusPending),
		int(q.statusTTL.Seconds()),
		counterKeyPrefix,
	).Err()
	if err != nil {
		return apperror.ErrTransientStore(fmt.Errorf("enqueue job %s: %w", jobID, err))
	}
	return nil
}

// DequeueAll snapshots the current queue members with their payloads.
// Nothing is removed; callers must Remove each job after handling it.
// Members whose payload expired are pruned best-effort.
func (q *JobQueue) DequeueAll(ctx context.Context, queue string) ([]ports.QueuedJob, error) {
	ids, err := q.client.SMembers(ctx, queueKeyPrefix+queue).Result()
	if err != nil {
		return nil, apperror.ErrTransientStore(fmt.Errorf("snapshot queue %s: %w", queue, err))
	}

	jobs := make([]ports.QueuedJob, 0, len(ids))
	for _, id := range ids {
		payload, err := q.client.Get(ctx, jobKeyPrefix+id).Bytes()
		if err != nil {
			if err == goredis.Nil {
				// Payload expired out from under the membership set.
				q.client.SRem(ctx, queueKeyPrefix+queue, id)
				continue
			}
			return nil, apperror.ErrTransientStore(fmt.Errorf("fetch job %s: %w", id, err))
		}
		jobs = append(jobs, ports.QueuedJob{ID: id, Payload: payload})
	}
	return jobs, nil
}

// Remove deletes one job from the queue along with its payload.
func (q *JobQueue) Remove(ctx context.Context, queue string, jobID string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SRem(ctx, queueKeyPrefix+queue, jobID)
		pipe.Del(ctx, jobKeyPrefix+jobID)
		return nil
	})
	if err != nil {
		return apperror.ErrTransientStore(fmt.Errorf("remove job %s: %w", jobID, err))
	}
	return nil
}

// SetStatus transitions the ledger entry and counters atomically.
func (q *JobQueue) SetStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	err := setStatusScript.Run(ctx, q.client,
		[]string{statusKeyPrefix + jobID},
		string(status),
		int(q.statusTTL.Seconds()),
		counterKeyPrefix,
	).Err()
	if err != nil {
		return apperror.ErrTransientStore(fmt.Errorf("set status of job %s: %w", jobID, err))
	}
	return nil
}

// GetStatus reads the ledger entry. Missing or expired entries read as
// pending, matching what an enqueue would have written.
func (q *JobQueue) GetStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	val, err := q.client.Get(ctx, statusKeyPrefix+jobID).Result()
	if err != nil {
		if err == goredis.Nil {
			return domain.JobStatusPending, nil
		}
		return "", apperror.ErrTransientStore(fmt.Errorf("get status of job %s: %w", jobID, err))
	}
	return domain.JobStatus(val), nil
}

// Counts returns the approximate per-status job counters.
func (q *JobQueue) Counts(ctx context.Context) (domain.QueueCounts, error) {
	vals, err := q.client.MGet(ctx,
		counterKeyPrefix+string(domain.JobStatusPending),
		counterKeyPrefix+string(domain.JobStatusProcessing),
		counterKeyPrefix+string(domain.JobStatusCompleted),
		counterKeyPrefix+string(domain.JobStatusFailed),
	).Result()
	if err != nil {
		return domain.QueueCounts{}, apperror.ErrTransientStore(fmt.Errorf("read counters: %w", err))
	}

	return domain.QueueCounts{
		Pending:    parseCounter(vals[0]),
		Processing: parseCounter(vals[1]),
		Completed:  parseCounter(vals[2]),
		Failed:     parseCounter(vals[3]),
	}, nil
}

// Heartbeat marks the worker process alive until the TTL elapses.
func (q *JobQueue) Heartbeat(ctx context.Context) error {
	err := q.client.Set(ctx, heartbeatKey, time.Now().Unix(), q.heartbeatTTL).Err()
	if err != nil {
		return apperror.ErrTransientStore(fmt.Errorf("write heartbeat: %w", err))
	}
	return nil
}

// WorkerAlive reports whether a worker heartbeat is currently live.
func (q *JobQueue) WorkerAlive(ctx context.Context) (bool, error) {
	n, err := q.client.Exists(ctx, heartbeatKey).Result()
	if err != nil {
		return false, apperror.ErrTransientStore(fmt.Errorf("check heartbeat: %w", err))
	}
	return n > 0, nil
}

func parseCounter(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
