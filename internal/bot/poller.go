package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// UpdateSource 长轮询获取更新
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
}

// UpdateHandler 处理单条更新
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) error
}

// Poller 长轮询循环
type Poller struct {
	source  UpdateSource
	handler UpdateHandler
	timeout int
	retry   time.Duration
	log     *zap.Logger
}

// NewPoller 创建长轮询器，timeout 为 getUpdates 的秒数
func NewPoller(source UpdateSource, handler UpdateHandler, timeout int, log *zap.Logger) *Poller {
	if timeout < 0 {
		timeout = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		source:  source,
		handler: handler,
		timeout: timeout,
		retry:   3 * time.Second,
		log:     log.Named("poller"),
	}
}

// Run 持续拉取并顺序处理更新，直到 ctx 取消
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("polling started", logger.Int("timeout", p.timeout))

	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if ctx.Err() != nil {
			p.log.Info("polling stopped")
			return nil
		}
		if err != nil {
			p.log.Warn("getUpdates failed", logger.Err(err))
			select {
			case <-ctx.Done():
				p.log.Info("polling stopped")
				return nil
			case <-time.After(p.retry):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			p.dispatch(ctx, upd)
		}
	}
}

// dispatch 处理单条更新，错误与 panic 只记录日志
func (p *Poller) dispatch(ctx context.Context, upd telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("update handler panic",
				logger.Int64("update_id", upd.UpdateID), logger.Any("panic", r))
		}
	}()

	if err := p.handler.HandleUpdate(ctx, upd); err != nil {
		p.log.Error("failed to handle update",
			logger.Int64("update_id", upd.UpdateID), logger.Err(err))
	}
}
