// Package metrics 提供 Prometheus 指标收集单元测试
package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestMetrics 使用独立 Registry，避免重复注册
func newTestMetrics(t *testing.T) *Metrics {
	m := New("test", prometheus.NewRegistry())
	require.NotNil(t, m)
	return m
}

func TestNew(t *testing.T) {
	t.Run("使用默认命名空间", func(t *testing.T) {
		m := New("", prometheus.NewRegistry())
		require.NotNil(t, m)
		assert.NotNil(t, m.httpRequestsTotal)
		assert.NotNil(t, m.botUpdatesTotal)
		assert.NotNil(t, m.workdayCloseTotal)
		assert.NotNil(t, m.dailyReportRuns)
		assert.NotNil(t, m.recordSourceErrors)
		assert.NotNil(t, m.llmRequestsTotal)
	})

	t.Run("同一 Registry 重复注册会 panic", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		New("dup", reg)
		assert.Panics(t, func() { New("dup", reg) })
	})
}

func TestGetMetrics(t *testing.T) {
	m1 := GetMetrics()
	m2 := Init("ignored")
	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
}

func TestMetrics_RecordUpdate(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordUpdate("message")
	m.RecordUpdate("message")
	m.RecordUpdate("callback")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.botUpdatesTotal.WithLabelValues("message")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.botUpdatesTotal.WithLabelValues("callback")))
}

func TestMetrics_RecordWorkdayClose(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordWorkdayClose("request")
	m.RecordWorkdayClose("confirm")
	m.RecordWorkdayClose("cancel")
	m.RecordWorkdayClose("cancel")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.workdayCloseTotal.WithLabelValues("cancel")))
}

func TestMetrics_RecordDailyReport(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDailyReport("sent", 2*time.Second)
	m.RecordDailyReport("empty", time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.dailyReportRuns.WithLabelValues("sent")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.dailyReportDuration))
}

func TestMetrics_RecordSourceCall(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSourceCall("list_rows", 10*time.Millisecond, nil)
	m.RecordSourceCall("list_rows", 10*time.Millisecond, errors.New("boom"))
	m.RecordSourceCall("create_row", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordSourceErrors.WithLabelValues("list_rows")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordSourceErrors.WithLabelValues("create_row")))
}

func TestMetrics_RecordLLMRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordLLMRequest("ok")
	m.RecordLLMRequest("error")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.llmRequestsTotal.WithLabelValues("ok")))
}

func TestGlobalRecorders(t *testing.T) {
	// 不会panic即为成功
	RecordUpdateGlobal("message")
	RecordWorkdayCloseGlobal("expired")
	RecordDailyReportGlobal("failed", time.Second)
	RecordSourceCallGlobal("table_id", time.Now(), nil)
	RecordLLMRequestGlobal("empty")
}

func TestMetrics_Middleware(t *testing.T) {
	m := newTestMetrics(t)

	router := gin.New()
	router.Use(m.Middleware("/metrics"))

	router.POST("/telegram/webhook", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, "metrics")
	})

	t.Run("记录请求指标", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/telegram/webhook", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), testutil.ToFloat64(
			m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/telegram/webhook", "200")))
	})

	t.Run("跳过/metrics端点", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), testutil.ToFloat64(
			m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/metrics", "200")))
	})
}

func TestHandler(t *testing.T) {
	router := gin.New()
	router.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	// Go 运行时指标
	assert.Contains(t, w.Body.String(), "go_")
}
