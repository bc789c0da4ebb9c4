// Package main 是应用程序入口
package main

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/realty-crm-bot/internal/common/response"
)

// readyTimeout 单项依赖检查超时
const readyTimeout = 3 * time.Second

// Check 依赖连通性检查
type Check func(ctx context.Context) error

// healthHandler 健康检查（简单版）
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// pingHandler Ping 检查
func pingHandler(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// readyHandler 就绪检查（检查 Redis 与表格存储）
func readyHandler(checks map[string]Check) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		results := make(map[string]interface{}, len(checks))
		allHealthy := true

		for _, name := range names {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				results[name] = "error: " + err.Error()
				allHealthy = false
				continue
			}
			results[name] = "ok"
		}

		resp := HealthResponse{
			Status:    "ready",
			Timestamp: time.Now().Unix(),
			Checks:    results,
		}
		if !allHealthy {
			resp.Status = "not ready"
			response.ServiceUnavailable(c, resp.Status, resp)
			return
		}
		response.Success(c, resp)
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]interface{} `json:"checks,omitempty"`
}
