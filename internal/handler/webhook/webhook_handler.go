// Package webhook 提供 Telegram webhook 的 HTTP Handler
package webhook

import (
	"context"
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/response"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// SecretHeader Telegram 携带 webhook 密钥的请求头
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler 处理单条更新
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) error
}

// Handler webhook 处理器
type Handler struct {
	dispatcher UpdateHandler
	secret     string
	log        *zap.Logger
}

// NewHandler 创建 webhook 处理器，secret 为空时不校验请求头
func NewHandler(dispatcher UpdateHandler, secret string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{dispatcher: dispatcher, secret: secret, log: log.Named("webhook")}
}

// Receive 接收 Telegram 推送的更新
// 处理失败同样返回 200，避免 Telegram 反复重投同一更新
func (h *Handler) Receive(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			response.Unauthorized(c, "invalid secret token")
			return
		}
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.BadRequest(c, "invalid update")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.dispatcher.HandleUpdate(ctx, upd); err != nil {
		h.log.Error("failed to handle update",
			logger.Int64("update_id", upd.UpdateID), logger.Err(err))
	}
	response.Success(c, nil)
}
