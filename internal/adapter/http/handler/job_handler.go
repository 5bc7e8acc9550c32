package handler

import (
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/pkg/apperror"
	"async-payment-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// JobHandler serves the operational job-status endpoints.
type JobHandler struct {
	queue ports.JobQueue
	log   zerolog.Logger
}

func NewJobHandler(queue ports.JobQueue, log zerolog.Logger) *JobHandler {
	return &JobHandler{queue: queue, log: log}
}

// QueueStatus handles GET /api/v1/jobs/status. It reports the aggregate
// status counters plus whether a worker process has heartbeated recently.
func (h *JobHandler) QueueStatus(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.queue.Counts(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read job counters")
		response.Error(c, apperror.ErrTransientStore(err))
		return
	}

	alive, err := h.queue.WorkerAlive(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read worker heartbeat")
		response.Error(c, apperror.ErrTransientStore(err))
		return
	}

	response.OK(c, gin.H{
		"counts":         counts,
		"worker_running": alive,
	})
}

// JobStatus handles GET /api/v1/jobs/:job_id. A job whose ledger entry
// has expired or never existed reads as pending.
func (h *JobHandler) JobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	status, err := h.queue.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("failed to read job status")
		response.Error(c, apperror.ErrTransientStore(err))
		return
	}

	response.OK(c, gin.H{
		"job_id": jobID,
		"status": status,
	})
}
