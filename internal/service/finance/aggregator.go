// Package finance 提供经纪人业绩汇总
package finance

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/tracing"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
)

// DefaultFetchLimit 单表最多读取的行数，超出部分不参与汇总
const DefaultFetchLimit = 1000

// AggregatorConfig 汇总配置
type AggregatorConfig struct {
	DealsTable    string
	CashPoolTable string
	FineType      string
	FetchLimit    int
}

// Aggregator 按经纪人和日期汇总佣金与罚款
type Aggregator struct {
	source repository.RecordSource
	cfg    AggregatorConfig
	log    *zap.Logger
}

// NewAggregator 创建汇总器
func NewAggregator(source repository.RecordSource, cfg AggregatorConfig, log *zap.Logger) *Aggregator {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{source: source, cfg: cfg, log: log.Named("aggregator")}
}

// Summarize 汇总经纪人在 date 当天的成交与罚款
//
// date 按字符串前缀匹配行的 date 字段。某张表无法读取时该部分按 0 计；
// 只有上下文取消时返回错误。
func (a *Aggregator) Summarize(ctx context.Context, agentID int64, date string) (*models.AgentSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "finance.Summarize",
		tracing.WithAgentID(agentID),
		tracing.WithDate(date),
	)
	defer span.End()

	summary := &models.AgentSummary{AgentID: agentID, Date: date}

	deals, err := a.fetch(ctx, a.cfg.DealsTable)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	for _, row := range deals {
		deal, ok := models.DealFromRow(row)
		if !ok || deal.AgentID != agentID || !strings.HasPrefix(deal.Date, date) {
			continue
		}
		summary.DealCount++
		summary.TotalCommission += deal.CommissionAmount
	}

	entries, err := a.fetch(ctx, a.cfg.CashPoolTable)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	for _, row := range entries {
		entry, ok := models.LedgerEntryFromRow(row)
		if !ok || entry.FromAgent != agentID || entry.Type != a.cfg.FineType || !strings.HasPrefix(entry.Date, date) {
			continue
		}
		summary.TotalFines += entry.Amount
	}

	summary.Net = summary.TotalCommission - summary.TotalFines

	tracing.SetAttributes(ctx,
		attribute.Int("deal_count", summary.DealCount),
		attribute.Int64("net", summary.Net),
	)
	return summary, nil
}

// fetch 读取整表（受 FetchLimit 限制），失败降级为空，仅上下文取消时返回错误
func (a *Aggregator) fetch(ctx context.Context, table string) ([]models.Row, error) {
	tableID, err := a.source.TableID(ctx, table)
	if err != nil {
		return a.degrade(ctx, table, "resolve table", err)
	}

	rows, err := a.source.ListRows(ctx, tableID, a.cfg.FetchLimit)
	if err != nil {
		return a.degrade(ctx, table, "list rows", err)
	}
	if len(rows) >= a.cfg.FetchLimit {
		a.log.Debug("fetch limit reached, later rows are not counted",
			logger.Table(table), logger.Int("limit", a.cfg.FetchLimit))
	}
	return rows, nil
}

func (a *Aggregator) degrade(ctx context.Context, table, step string, err error) ([]models.Row, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	switch {
	case errors.Is(err, errors.ErrTableNotFound):
		a.log.Debug("table not found, counting as empty", logger.Table(table))
	case errors.IsDegradable(err):
		a.log.Warn("record source failed, counting as empty",
			logger.Table(table), logger.String("step", step), logger.Err(err))
	default:
		// 非预期错误同样按空表计入，但以 error 级别上报
		a.log.Error("unexpected record source error, counting as empty",
			logger.Table(table), logger.String("step", step), logger.Err(err))
	}
	return nil, nil
}
