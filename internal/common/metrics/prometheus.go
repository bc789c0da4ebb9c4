// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	botUpdatesTotal      *prometheus.CounterVec
	workdayCloseTotal    *prometheus.CounterVec
	dailyReportRuns      *prometheus.CounterVec
	dailyReportDuration  prometheus.Histogram
	recordSourceErrors   *prometheus.CounterVec
	recordSourceDuration *prometheus.HistogramVec
	llmRequestsTotal     *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Init 初始化默认指标收集器，注册到默认 Registerer
func Init(namespace string) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(namespace, prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New 创建指标收集器并注册到 reg
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "realty_crm"
	}
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		botUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_updates_total",
				Help:      "Total number of chat updates handled",
			},
			[]string{"kind"},
		),
		workdayCloseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workday_close_total",
				Help:      "Workday close flow transitions",
			},
			[]string{"action"},
		),
		dailyReportRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "daily_report_runs_total",
				Help:      "Daily broadcast job runs by result",
			},
			[]string{"result"},
		),
		dailyReportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "daily_report_duration_seconds",
				Help:      "Daily broadcast job duration in seconds",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		recordSourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_source_errors_total",
				Help:      "Record source failures by operation",
			},
			[]string{"op"},
		),
		recordSourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_source_duration_seconds",
				Help:      "Record source call duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Language model requests by result",
			},
			[]string{"result"},
		),
	}
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	return Init("")
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware(skipPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 跳过 metrics 端点本身
		if c.Request.URL.Path == skipPath {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP 处理器
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordUpdate 记录一次聊天更新，kind 为 message / callback
func (m *Metrics) RecordUpdate(kind string) {
	m.botUpdatesTotal.WithLabelValues(kind).Inc()
}

// RecordWorkdayClose 记录收工流程的状态迁移
func (m *Metrics) RecordWorkdayClose(action string) {
	m.workdayCloseTotal.WithLabelValues(action).Inc()
}

// RecordDailyReport 记录每日播报结果与耗时
func (m *Metrics) RecordDailyReport(result string, duration time.Duration) {
	m.dailyReportRuns.WithLabelValues(result).Inc()
	m.dailyReportDuration.Observe(duration.Seconds())
}

// RecordSourceCall 记录表格存储调用，err 非空时计入错误
func (m *Metrics) RecordSourceCall(op string, duration time.Duration, err error) {
	m.recordSourceDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.recordSourceErrors.WithLabelValues(op).Inc()
	}
}

// RecordLLMRequest 记录大模型请求
func (m *Metrics) RecordLLMRequest(result string) {
	m.llmRequestsTotal.WithLabelValues(result).Inc()
}

// RecordUpdateGlobal 全局记录聊天更新
func RecordUpdateGlobal(kind string) {
	GetMetrics().RecordUpdate(kind)
}

// RecordWorkdayCloseGlobal 全局记录收工流程
func RecordWorkdayCloseGlobal(action string) {
	GetMetrics().RecordWorkdayClose(action)
}

// RecordDailyReportGlobal 全局记录每日播报
func RecordDailyReportGlobal(result string, duration time.Duration) {
	GetMetrics().RecordDailyReport(result, duration)
}

// RecordSourceCallGlobal 全局记录表格存储调用
func RecordSourceCallGlobal(op string, start time.Time, err error) {
	GetMetrics().RecordSourceCall(op, time.Since(start), err)
}

// RecordLLMRequestGlobal 全局记录大模型请求
func RecordLLMRequestGlobal(result string) {
	GetMetrics().RecordLLMRequest(result)
}
