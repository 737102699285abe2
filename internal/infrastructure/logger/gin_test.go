package logger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedRouter(level zapcore.Level) (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(level)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Request-ID"); id != "" {
			c.Set(ginRequestIDKey, id)
		}
		c.Next()
	})
	router.Use(GinMiddleware(zap.New(core)))
	return router, recorded
}

func requestEntry(t *testing.T, recorded *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()
	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	return entries[0]
}

func TestGinMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  zapcore.Level
	}{
		{"success", "/api/v1/sync/jobs", http.StatusOK, zapcore.InfoLevel},
		{"client error", "/api/v1/sync/jobs", http.StatusBadRequest, zapcore.WarnLevel},
		{"server error", "/api/v1/sync/jobs", http.StatusServiceUnavailable, zapcore.ErrorLevel},
		{"health probe", "/healthz", http.StatusOK, zapcore.DebugLevel},
		{"failing probe", "/healthz", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, recorded := newLoggedRouter(zapcore.DebugLevel)
			router.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.level, requestEntry(t, recorded).Level)
		})
	}
}

func TestGinMiddleware_Fields(t *testing.T) {
	router, recorded := newLoggedRouter(zapcore.InfoLevel)
	router.POST("/webhooks/:platform", func(c *gin.Context) {
		c.Set(ginPlatformKey, "SHOPEE")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopee?shop_id=1001", nil)
	req.Header.Set("X-Request-ID", "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	fields := requestEntry(t, recorded).ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/webhooks/shopee", fields["path"])
	assert.Equal(t, "/webhooks/:platform", fields["route"])
	assert.Equal(t, "shop_id=1001", fields["query"])
	assert.Equal(t, "SHOPEE", fields["platform"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Contains(t, fields, "latency")
	assert.Contains(t, fields, "client_ip")
}

func TestGinMiddleware_PropagatesRequestContext(t *testing.T) {
	router, recorded := newLoggedRouter(zapcore.InfoLevel)
	router.GET("/api/v1/sync/jobs", func(c *gin.Context) {
		ctx := c.Request.Context()
		assert.Equal(t, "req-7", GetRequestID(ctx))
		L(ctx).Info("Listing sync jobs")
		assert.Same(t, GetGinLogger(c), FromContext(ctx))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs", nil)
	req.Header.Set("X-Request-ID", "req-7")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.FilterMessage("Listing sync jobs").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("adapter blew up") })

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, 1, recorded.FilterMessage("Panic recovered").Len())
}

func TestGetGinLogger_NotSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	log := GetGinLogger(c)
	require.NotNil(t, log)
	assert.NotPanics(t, func() { log.Info("no middleware") })
}
