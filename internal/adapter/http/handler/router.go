package handler

import (
	"async-payment-gateway/internal/adapter/http/middleware"
	"async-payment-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds the dependencies needed to build the HTTP router.
type RouterDeps struct {
	JobQueue       ports.JobQueue
	WebhookRepo    ports.WebhookLogRepository
	WebhookService ports.WebhookService
	MerchantRepo   ports.MerchantRepository
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter configures the gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB

	jobHandler := NewJobHandler(deps.JobQueue, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.WebhookRepo, deps.WebhookService, deps.Logger)

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.GET("/status", jobHandler.QueueStatus)
			jobs.GET("/:job_id", jobHandler.JobStatus)
		}

		webhooks := v1.Group("/webhooks")
		webhooks.Use(middleware.APIKeyAuth(deps.MerchantRepo, deps.Logger))
		{
			webhooks.GET("", webhookHandler.List)
			webhooks.POST("/:webhook_id/retry", webhookHandler.Retry)
		}
	}

	return r
}
