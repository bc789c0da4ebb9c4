// Package main 是应用程序入口
package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/config"
	"github.com/dumeirei/realty-crm-bot/internal/common/metrics"
	commonMiddleware "github.com/dumeirei/realty-crm-bot/internal/common/middleware"
	"github.com/dumeirei/realty-crm-bot/internal/common/response"
	"github.com/dumeirei/realty-crm-bot/internal/handler/webhook"
	"github.com/dumeirei/realty-crm-bot/internal/middleware"
)

// webhookPath Telegram 推送更新的路径
const webhookPath = "/telegram/webhook"

// maxUpdateSize 单条更新请求体上限
const maxUpdateSize = 1 << 20

// setupRouter 设置路由
// webhookH 为空时（长轮询模式）不注册 webhook 路由
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	webhookH *webhook.Handler,
	checks map[string]Check,
) {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := []string{"/health", "/ping", "/ready", cfg.Metrics.Path}

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(&middleware.LoggingConfig{Logger: logger, SkipPaths: skip}))
	if cfg.Tracing.Enabled {
		r.Use(commonMiddleware.Tracing(&commonMiddleware.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SkipPaths:   skip,
		}))
	}
	if cfg.Metrics.Enabled {
		r.Use(metrics.GetMetrics().Middleware(cfg.Metrics.Path))
	}

	// 健康检查
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(checks))

	// Prometheus 指标
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}

	if webhookH != nil {
		r.POST(webhookPath, middleware.RequestSizeLimiter(maxUpdateSize), webhookH.Receive)
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "")
	})
}

// ginMode 按 server.mode 选择 gin 运行模式
func ginMode(cfg *config.Config) string {
	switch {
	case cfg.IsRelease():
		return gin.ReleaseMode
	case cfg.Server.Mode == "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
