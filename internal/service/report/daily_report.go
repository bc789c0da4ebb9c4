// Package report 提供每日全员业绩播报
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
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

// Header 播报标题
const Header = "Ежедневный автоматический отчет по агентам:\n"

// Summarizer 单个经纪人的业绩汇总
type Summarizer interface {
	Summarize(ctx context.Context, agentID int64, date string) (*models.AgentSummary, error)
}

// Config 播报配置
type Config struct {
	ManagerID  int64
	DealsTable string
	FetchLimit int
	Location   *time.Location
}

// DailyReportJob 每日全员业绩播报
type DailyReportJob struct {
	source     repository.RecordSource
	summarizer Summarizer
	sender     telegram.Sender
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

// NewDailyReportJob 创建播报任务
func NewDailyReportJob(
	source repository.RecordSource,
	summarizer Summarizer,
	sender telegram.Sender,
	cfg Config,
	log *zap.Logger,
) *DailyReportJob {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 1000
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DailyReportJob{
		source:     source,
		summarizer: summarizer,
		sender:     sender,
		cfg:        cfg,
		log:        log.Named("daily_report"),
		now:        time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (j *DailyReportJob) SetClock(now func() time.Time) {
	j.now = now
}

// Run 汇总成交表中出现的所有经纪人并把报告发给负责人
//
// 读取成交表失败时整个任务放弃（记录日志，不发送）；单个经纪人汇总失败
// 只在报告中写一行错误。没有经纪人时不发送。
func (j *DailyReportJob) Run(ctx context.Context) error {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "report.DailyReport", tracing.WithJob("daily_report"))
	defer span.End()

	text, agents, err := j.Build(ctx)
	if err != nil {
		tracing.SetError(ctx, err)
		metrics.RecordDailyReportGlobal("aborted", time.Since(start))
		j.log.Error("daily report aborted", logger.Err(err))
		return err
	}
	if agents == 0 {
		metrics.RecordDailyReportGlobal("empty", time.Since(start))
		j.log.Info("daily report skipped, no agents")
		return nil
	}

	if j.cfg.ManagerID != 0 {
		if _, err := j.sender.SendMessage(ctx, j.cfg.ManagerID, text, nil); err != nil {
			tracing.SetError(ctx, err)
			metrics.RecordDailyReportGlobal("failed", time.Since(start))
			j.log.Error("failed to send daily report", logger.ChatID(j.cfg.ManagerID), logger.Err(err))
			return errors.ErrNotifyFailed.WithError(err)
		}
	}

	metrics.RecordDailyReportGlobal("sent", time.Since(start))
	j.log.Info("daily report sent", logger.Int("agents", agents))
	return nil
}

// Build 生成播报文本，返回文本与经纪人数量
func (j *DailyReportJob) Build(ctx context.Context) (string, int, error) {
	agentIDs, err := j.agents(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(agentIDs) == 0 {
		return "", 0, nil
	}

	date := j.now().In(j.cfg.Location).Format("2006-01-02")

	var b strings.Builder
	b.WriteString(Header)
	for _, id := range agentIDs {
		summary, err := j.summarizer.Summarize(ctx, id, date)
		if err != nil {
			j.log.Warn("agent summary failed", logger.AgentID(id), logger.Err(err))
			fmt.Fprintf(&b, "Agent %d: ошибка при сборе данных\n", id)
			continue
		}
		fmt.Fprintf(&b, "Agent %d: доходы %d, штрафы %d, чистыми %d\n",
			id, summary.TotalCommission, summary.TotalFines, summary.Net)
	}
	return b.String(), len(agentIDs), nil
}

// agents 成交表中出现过的经纪人（去重，升序，忽略 0 与无法解析的值）
func (j *DailyReportJob) agents(ctx context.Context) ([]int64, error) {
	tableID, err := j.source.TableID(ctx, j.cfg.DealsTable)
	if err != nil {
		return nil, err
	}
	rows, err := j.source.ListRows(ctx, tableID, j.cfg.FetchLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	for _, row := range rows {
		id, ok := row.Int(models.DealFieldAgentID)
		if !ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}
