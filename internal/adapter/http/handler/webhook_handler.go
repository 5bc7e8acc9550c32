package handler

import (
	"strconv"

	"async-payment-gateway/internal/adapter/http/middleware"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/pkg/apperror"
	"async-payment-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// WebhookHandler serves the merchant-facing webhook log endpoints.
type WebhookHandler struct {
	webhookRepo ports.WebhookLogRepository
	webhookSvc  ports.WebhookService
	log         zerolog.Logger
}

func NewWebhookHandler(webhookRepo ports.WebhookLogRepository, webhookSvc ports.WebhookService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{webhookRepo: webhookRepo, webhookSvc: webhookSvc, log: log}
}

// List handles GET /api/v1/webhooks. It pages the authenticated
// merchant's delivery log, newest first.
func (h *WebhookHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredentials())
		return
	}

	limit := parseQueryInt(c, "limit", defaultPageLimit)
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	offset := parseQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.webhookRepo.ListByMerchant(c.Request.Context(), merchantID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("merchant_id", merchantID.String()).Msg("failed to list webhook logs")
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	response.OK(c, gin.H{
		"webhooks": logs,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// Retry handles POST /api/v1/webhooks/:webhook_id/retry. The service
// resets attempt counters and enqueues a fresh delivery immediately.
func (h *WebhookHandler) Retry(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredentials())
		return
	}
	webhookID := c.Param("webhook_id")

	record, err := h.webhookSvc.Retry(c.Request.Context(), merchantID, webhookID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, record)
}

func parseQueryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
