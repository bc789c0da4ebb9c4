// Package workday 提供收工报告的申请、确认与取消
package workday

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/metrics"
	"github.com/dumeirei/realty-crm-bot/internal/common/tracing"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// 回复给申请人的确认文本
const (
	AckCancelled = "Операция отменена."
	AckConfirmed = "Рабочий день завершён. Отчет отправлен руководителю."
)

// DefaultPendingTTL 待确认报告默认有效期
const DefaultPendingTTL = time.Hour

// Summarizer 单个经纪人的业绩汇总
type Summarizer interface {
	Summarize(ctx context.Context, agentID int64, date string) (*models.AgentSummary, error)
}

// PendingStore 待确认报告存储
type PendingStore interface {
	Save(ctx context.Context, agentID int64, text string, ttl time.Duration) error
	Take(ctx context.Context, agentID int64) (string, bool, error)
	Delete(ctx context.Context, agentID int64) error
}

// Requester 发起收工的员工
type Requester struct {
	ID   int64
	Name string
}

// Config 收工流程配置
type Config struct {
	ManagerID       int64
	ProcessLogTable string
	PendingTTL      time.Duration
	Location        *time.Location
}

// Service 收工流程
type Service struct {
	summarizer Summarizer
	pending    PendingStore
	source     repository.RecordSource
	sender     telegram.Sender
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

// NewService 创建收工流程服务
func NewService(
	summarizer Summarizer,
	pending PendingStore,
	source repository.RecordSource,
	sender telegram.Sender,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		summarizer: summarizer,
		pending:    pending,
		source:     source,
		sender:     sender,
		cfg:        cfg,
		log:        log.Named("workday"),
		now:        time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today 当前业务日期 YYYY-MM-DD
func (s *Service) Today() string {
	return s.now().In(s.cfg.Location).Format("2006-01-02")
}

// FormatReport 渲染收工报告文本
func FormatReport(date, name string, summary *models.AgentSummary) string {
	return fmt.Sprintf("Отчет за %s для %s:\nСделки: %d (комиссия %d), штрафы: %d, чистыми: %d",
		date, name, summary.DealCount, summary.TotalCommission, summary.TotalFines, summary.Net)
}

// RequestClose 计算当日汇总并暂存报告，返回报告文本
// 再次申请会覆盖旧报告并重新计时
func (s *Service) RequestClose(ctx context.Context, req Requester) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "workday.RequestClose", tracing.WithAgentID(req.ID))
	defer span.End()

	date := s.Today()
	summary, err := s.summarizer.Summarize(ctx, req.ID, date)
	if err != nil {
		tracing.SetError(ctx, err)
		return "", err
	}

	text := FormatReport(date, req.Name, summary)
	if err := s.pending.Save(ctx, req.ID, text, s.cfg.PendingTTL); err != nil {
		tracing.SetError(ctx, err)
		return "", err
	}

	metrics.RecordWorkdayCloseGlobal("requested")
	s.log.Info("workday close requested",
		logger.AgentID(req.ID),
		logger.String("date", date),
		logger.Int("deal_count", summary.DealCount),
		logger.Int64("net", summary.Net),
	)
	return text, nil
}

// Cancel 放弃待确认报告，可重复调用
func (s *Service) Cancel(ctx context.Context, req Requester) (string, error) {
	if err := s.pending.Delete(ctx, req.ID); err != nil {
		return "", err
	}
	metrics.RecordWorkdayCloseGlobal("cancelled")
	s.log.Info("workday close cancelled", logger.AgentID(req.ID))
	return AckCancelled, nil
}

// Confirm 提交待确认报告：转发给负责人并写入流程日志
// 没有待确认报告（已提交、已过期或从未申请）时等同于 Cancel
func (s *Service) Confirm(ctx context.Context, req Requester) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "workday.Confirm", tracing.WithAgentID(req.ID))
	defer span.End()

	text, ok, err := s.pending.Take(ctx, req.ID)
	if err != nil {
		tracing.SetError(ctx, err)
		return "", err
	}
	if !ok {
		tracing.AddEvent(ctx, "nothing pending")
		metrics.RecordWorkdayCloseGlobal("expired")
		return AckCancelled, nil
	}

	if s.cfg.ManagerID != 0 {
		if _, err := s.sender.SendMessage(ctx, s.cfg.ManagerID, text, nil); err != nil {
			tracing.SetError(ctx, err)
			s.log.Error("failed to forward workday report",
				logger.AgentID(req.ID), logger.ChatID(s.cfg.ManagerID), logger.Err(err))
			return "", errors.ErrNotifyFailed.WithError(err)
		}
	}

	s.audit(ctx, req, text)

	metrics.RecordWorkdayCloseGlobal("confirmed")
	s.log.Info("workday close confirmed", logger.AgentID(req.ID))
	return AckConfirmed, nil
}

// audit 写流程日志，失败只记录日志
func (s *Service) audit(ctx context.Context, req Requester, text string) {
	entry := models.ProcessLogEntry{
		Title:   "Отчет " + req.Name,
		Notes:   text,
		Date:    s.now(),
		OwnerTG: req.ID,
	}

	tableID, err := s.source.TableID(ctx, s.cfg.ProcessLogTable)
	if err != nil {
		s.auditFailed("process log table unavailable, audit row skipped", req, err)
		return
	}
	if _, err := s.source.CreateRow(ctx, tableID, entry.Fields()); err != nil {
		s.auditFailed("failed to write audit row", req, err)
	}
}

// auditFailed 审计写入失败不影响确认；非预期错误以 error 级别记录
func (s *Service) auditFailed(msg string, req Requester, err error) {
	fields := []zap.Field{logger.Table(s.cfg.ProcessLogTable), logger.AgentID(req.ID), logger.Err(err)}
	if errors.IsDegradable(err) || errors.IsBestEffort(err) {
		s.log.Warn(msg, fields...)
		return
	}
	s.log.Error(msg, fields...)
}
