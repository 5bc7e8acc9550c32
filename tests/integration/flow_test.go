package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"async-payment-gateway/config"
	httpHandler "async-payment-gateway/internal/adapter/http/handler"
	redisStorage "async-payment-gateway/internal/adapter/storage/redis"
	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports"
	"async-payment-gateway/internal/service"
	"async-payment-gateway/internal/worker"
	"async-payment-gateway/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the full stack: real services and workers over miniredis
// and in-memory postgres repos, plus the real HTTP layer. The merchant's
// webhook endpoint is an httptest server that records deliveries.

type receivedWebhook struct {
	body      []byte
	signature string
}

type webhookSink struct {
	mu       sync.Mutex
	received []receivedWebhook
}

func (s *webhookSink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.received = append(s.received, receivedWebhook{
			body:      body,
			signature: r.Header.Get("X-Webhook-Signature"),
		})
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (s *webhookSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *webhookSink) last() receivedWebhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[len(s.received)-1]
}

type testApp struct {
	merchant    *domain.Merchant
	merchantSrv *httptest.Server
	opsSrv      *httptest.Server
	sink        *webhookSink

	queue       *redisStorage.JobQueue
	paymentSvc  ports.PaymentService
	refundSvc   ports.RefundService
	webhookSvc  ports.WebhookService
	orderRepo   *inMemoryOrderRepo
	paymentRepo *inMemoryPaymentRepo
	refundRepo  *inMemoryRefundRepo
	webhookRepo *inMemoryWebhookLogRepo
	scheduler   *worker.RetryScheduler

	redis  *miniredis.Miniredis
	cancel context.CancelFunc
	proc   *worker.Processor
}

func newTestApp(t *testing.T, paymentSucceeds bool) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	sink := &webhookSink{}
	merchantSrv := httptest.NewServer(sink.handler())

	webhookURL := merchantSrv.URL + "/webhooks"
	webhookSecret := "whsec_integration"
	merchant := &domain.Merchant{
		ID:            uuid.New(),
		Name:          "Integration Shop",
		Email:         "shop@example.com",
		APIKey:        "key_integration",
		APISecret:     "secret_integration",
		WebhookURL:    &webhookURL,
		WebhookSecret: &webhookSecret,
		CreatedAt:     time.Now(),
	}

	merchantRepo := newInMemoryMerchantRepo()
	merchantRepo.add(merchant)
	orderRepo := newInMemoryOrderRepo()
	paymentRepo := newInMemoryPaymentRepo()
	refundRepo := newInMemoryRefundRepo()
	webhookRepo := newInMemoryWebhookLogRepo()
	idempotencyRepo := newInMemoryIdempotencyRepo()

	queue := redisStorage.NewJobQueue(rdb, 24*time.Hour, 30*time.Second)
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	log := logger.New("error", false)
	sigSvc := service.NewHMACSignatureService()
	idGen := service.NewPrefixedIDGenerator(paymentRepo, refundRepo)
	builder := service.NewJSONPayloadBuilder()

	webhookSvc := service.NewWebhookService(webhookRepo, queue, builder, idGen, log)
	paymentSvc := service.NewPaymentService(paymentRepo, orderRepo, idempotencyRepo, idempotencyCache, queue, idGen, log)
	refundSvc := service.NewRefundService(refundRepo, paymentRepo, queue, idGen, log)

	workerCfg := config.WorkerConfig{
		PollInterval:    10 * time.Millisecond,
		StaggerDelay:    0,
		HeartbeatTTL:    30 * time.Second,
		JobStatusTTL:    24 * time.Hour,
		TestMode:        true,
		TestSuccess:     paymentSucceeds,
		TestProcessTime: time.Millisecond,
	}

	paymentWorker := worker.NewPaymentWorker(paymentRepo, webhookSvc, workerCfg, log)
	refundWorker := worker.NewRefundWorker(refundRepo, paymentRepo, webhookSvc, workerCfg, log)
	webhookWorker := worker.NewWebhookWorker(
		webhookRepo,
		merchantRepo,
		sigSvc,
		&http.Client{Timeout: 2 * time.Second},
		[]time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond},
		5,
		2*time.Second,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	proc := worker.NewProcessor(queue, workerCfg.PollInterval, workerCfg.StaggerDelay, log, paymentWorker, webhookWorker, refundWorker)
	proc.Start(ctx)

	scheduler := worker.NewRetryScheduler(webhookRepo, queue, 10*time.Millisecond, log)
	go scheduler.Run(ctx)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		JobQueue:       queue,
		WebhookRepo:    webhookRepo,
		WebhookService: webhookSvc,
		MerchantRepo:   merchantRepo,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})
	opsSrv := httptest.NewServer(router)

	return &testApp{
		merchant:    merchant,
		merchantSrv: merchantSrv,
		opsSrv:      opsSrv,
		sink:        sink,
		queue:       queue,
		paymentSvc:  paymentSvc,
		refundSvc:   refundSvc,
		webhookSvc:  webhookSvc,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		webhookRepo: webhookRepo,
		scheduler:   scheduler,
		redis:       mr,
		cancel:      cancel,
		proc:        proc,
	}
}

func (a *testApp) close() {
	a.cancel()
	a.proc.Wait()
	a.opsSrv.Close()
	a.merchantSrv.Close()
	a.redis.Close()
}

func (a *testApp) createOrder(t *testing.T, amount int64) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:         "order_" + uuid.NewString()[:8],
		MerchantID: a.merchant.ID,
		Amount:     amount,
		Currency:   "INR",
		Status:     domain.OrderStatusCreated,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, a.orderRepo.Create(context.Background(), order))
	return order
}

func (a *testApp) opsGet(t *testing.T, path string, authed bool) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.opsSrv.URL+path, nil)
	require.NoError(t, err)
	if authed {
		req.Header.Set("X-Api-Key", a.merchant.APIKey)
		req.Header.Set("X-Api-Secret", a.merchant.APISecret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

// --- Integration Tests ---

func TestIntegration_PaymentSettlesAndWebhookDelivers(t *testing.T) {
	app := newTestApp(t, true)
	defer app.close()

	order := app.createOrder(t, 50000)
	vpa := "customer@upi"
	payment, replayed, err := app.paymentSvc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: app.merchant.ID,
		OrderID:    order.ID,
		Method:     domain.PaymentMethodUPI,
		VPA:        &vpa,
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, domain.PaymentStatusProcessing, payment.Status)

	// Payment worker settles, webhook worker delivers.
	require.Eventually(t, func() bool {
		return app.sink.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	settled, err := app.paymentRepo.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, settled.Status)
	assert.True(t, settled.Captured)

	// Delivered payload carries the settled payment and a valid signature.
	got := app.sink.last()
	var envelope struct {
		Event     string `json:"event"`
		Timestamp int64  `json:"timestamp"`
		Data      struct {
			Payment *domain.Payment `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &envelope))
	assert.Equal(t, domain.EventPaymentSuccess, envelope.Event)
	assert.Equal(t, payment.ID, envelope.Data.Payment.ID)

	sigSvc := service.NewHMACSignatureService()
	assert.True(t, sigSvc.Verify(*app.merchant.WebhookSecret, got.body, got.signature))

	// Audit record reaches success with a recorded response code.
	require.Eventually(t, func() bool {
		logs, _, err := app.webhookRepo.ListByMerchant(context.Background(), app.merchant.ID, 10, 0)
		require.NoError(t, err)
		return len(logs) == 1 && logs[0].Status == domain.WebhookStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIntegration_FailedPaymentEmitsFailureEvent(t *testing.T) {
	app := newTestApp(t, false)
	defer app.close()

	order := app.createOrder(t, 50000)
	vpa := "customer@upi"
	payment, _, err := app.paymentSvc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: app.merchant.ID,
		OrderID:    order.ID,
		Method:     domain.PaymentMethodUPI,
		VPA:        &vpa,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return app.sink.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	settled, err := app.paymentRepo.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, settled.Status)
	require.NotNil(t, settled.ErrorCode)

	var envelope struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(app.sink.last().body, &envelope))
	assert.Equal(t, domain.EventPaymentFailed, envelope.Event)
}

func TestIntegration_RefundFlow(t *testing.T) {
	app := newTestApp(t, true)
	defer app.close()

	order := app.createOrder(t, 50000)
	vpa := "customer@upi"
	payment, _, err := app.paymentSvc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: app.merchant.ID,
		OrderID:    order.ID,
		Method:     domain.PaymentMethodUPI,
		VPA:        &vpa,
	})
	require.NoError(t, err)

	// Wait for settlement before refunding.
	require.Eventually(t, func() bool {
		p, err := app.paymentRepo.GetByID(context.Background(), payment.ID)
		require.NoError(t, err)
		return p.Status == domain.PaymentStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	refund, err := app.refundSvc.CreateRefund(context.Background(), ports.CreateRefundRequest{
		MerchantID: app.merchant.ID,
		PaymentID:  payment.ID,
		Amount:     20000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPending, refund.Status)

	require.Eventually(t, func() bool {
		r, err := app.refundRepo.GetByID(context.Background(), refund.ID)
		require.NoError(t, err)
		return r.Status == domain.RefundStatusProcessed
	}, 5*time.Second, 10*time.Millisecond)

	// payment.success then refund.processed
	require.Eventually(t, func() bool {
		return app.sink.count() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	var envelope struct {
		Event string `json:"event"`
		Data  struct {
			Refund *domain.Refund `json:"refund"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(app.sink.last().body, &envelope))
	assert.Equal(t, domain.EventRefundProcessed, envelope.Event)
	assert.Equal(t, refund.ID, envelope.Data.Refund.ID)
}

func TestIntegration_IdempotentCreateReplaysResponse(t *testing.T) {
	app := newTestApp(t, true)
	defer app.close()

	order := app.createOrder(t, 50000)
	vpa := "customer@upi"
	key := "idem-key-1"
	req := ports.CreatePaymentRequest{
		MerchantID:     app.merchant.ID,
		OrderID:        order.ID,
		Method:         domain.PaymentMethodUPI,
		VPA:            &vpa,
		IdempotencyKey: &key,
	}

	first, replayed, err := app.paymentSvc.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := app.paymentSvc.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	// Only one settlement job was ever enqueued, so only one delivery.
	require.Eventually(t, func() bool {
		return app.sink.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, app.sink.count())
}

func TestIntegration_OpsEndpoints(t *testing.T) {
	app := newTestApp(t, true)
	defer app.close()

	resp, body := app.opsGet(t, "/health", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	order := app.createOrder(t, 50000)
	vpa := "customer@upi"
	_, _, err := app.paymentSvc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: app.merchant.ID,
		OrderID:    order.ID,
		Method:     domain.PaymentMethodUPI,
		VPA:        &vpa,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return app.sink.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	resp, body = app.opsGet(t, "/api/v1/jobs/status", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["worker_running"])

	// Webhook log listing requires merchant credentials.
	resp, _ = app.opsGet(t, "/api/v1/webhooks", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = app.opsGet(t, "/api/v1/webhooks", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.GreaterOrEqual(t, data["total"].(float64), float64(1))
}

func TestIntegration_ManualRetryRedelivers(t *testing.T) {
	app := newTestApp(t, true)
	defer app.close()

	order := app.createOrder(t, 50000)
	vpa := "customer@upi"
	_, _, err := app.paymentSvc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: app.merchant.ID,
		OrderID:    order.ID,
		Method:     domain.PaymentMethodUPI,
		VPA:        &vpa,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		logs, _, err := app.webhookRepo.ListByMerchant(context.Background(), app.merchant.ID, 10, 0)
		require.NoError(t, err)
		return len(logs) == 1 && logs[0].Status == domain.WebhookStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	logs, _, err := app.webhookRepo.ListByMerchant(context.Background(), app.merchant.ID, 10, 0)
	require.NoError(t, err)
	webhookID := logs[0].ID
	before := app.sink.count()

	req, err := http.NewRequest(http.MethodPost, app.opsSrv.URL+"/api/v1/webhooks/"+webhookID+"/retry", nil)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", app.merchant.APIKey)
	req.Header.Set("X-Api-Secret", app.merchant.APISecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return app.sink.count() > before
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		rec, err := app.webhookRepo.GetByID(context.Background(), webhookID)
		require.NoError(t, err)
		return rec.Status == domain.WebhookStatusSuccess && rec.Attempts == 1
	}, 5*time.Second, 10*time.Millisecond)
}
