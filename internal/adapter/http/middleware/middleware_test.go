package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"async-payment-gateway/internal/core/domain"
	"async-payment-gateway/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(merchantRepo *mocks.MockMerchantRepository) *gin.Engine {
	router := gin.New()
	router.GET("/test", APIKeyAuth(merchantRepo, zerolog.Nop()), func(c *gin.Context) {
		id, _ := MerchantID(c)
		c.JSON(http.StatusOK, gin.H{"merchant_id": id.String()})
	})
	return router
}

func TestAPIKeyAuth_MissingHeaders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	router := authRouter(merchantRepo)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_UnknownKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	merchantRepo.EXPECT().GetByAPIKey(gomock.Any(), "key_unknown").Return(nil, nil)
	router := authRouter(merchantRepo)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "key_unknown")
	req.Header.Set(HeaderAPISecret, "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_WrongSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	merchantRepo.EXPECT().GetByAPIKey(gomock.Any(), "key_live").Return(&domain.Merchant{
		ID:        uuid.New(),
		APIKey:    "key_live",
		APISecret: "real-secret",
	}, nil)
	router := authRouter(merchantRepo)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "key_live")
	req.Header.Set(HeaderAPISecret, "wrong-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	merchantID := uuid.New()
	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	merchantRepo.EXPECT().GetByAPIKey(gomock.Any(), "key_live").Return(&domain.Merchant{
		ID:        merchantID,
		APIKey:    "key_live",
		APISecret: "real-secret",
	}, nil)
	router := authRouter(merchantRepo)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "key_live")
	req.Header.Set(HeaderAPISecret, "real-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), merchantID.String())
}

func TestAPIKeyAuth_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	merchantRepo.EXPECT().GetByAPIKey(gomock.Any(), "key_live").Return(nil, errors.New("db down"))
	router := authRouter(merchantRepo)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "key_live")
	req.Header.Set(HeaderAPISecret, "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecovery_Panic(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SYS_001")
}

func TestMaxBodySize_RejectsOversizedBody(t *testing.T) {
	router := gin.New()
	router.Use(MaxBodySize(16))
	router.POST("/test", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 64)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRequestID_SetOnContext(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		v, ok := c.Get(CtxRequestID)
		assert.True(t, ok)
		_, err := uuid.Parse(v.(string))
		assert.NoError(t, err)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
