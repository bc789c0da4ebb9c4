// Package finance 业绩汇总单元测试
package finance

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/testutil"
)

const (
	testDeals    = "Успешные Сделки"
	testCashPool = "Общак"
	testFine     = "Штраф"
)

func setupAggregator(t *testing.T, limit int) (*Aggregator, *testutil.MockRecordSource) {
	t.Helper()
	source := testutil.NewMockRecordSource()
	agg := NewAggregator(source, AggregatorConfig{
		DealsTable:    testDeals,
		CashPoolTable: testCashPool,
		FineType:      testFine,
		FetchLimit:    limit,
	}, nil)
	return agg, source
}

func deal(agent interface{}, commission interface{}, date string) models.Row {
	return models.Row{"agent_id": agent, "commission_amount": commission, "date": date}
}

func ledger(agent interface{}, amount interface{}, typ interface{}, date string) models.Row {
	return models.Row{"from_agent": agent, "amount": amount, "type": typ, "date": date}
}

func TestAggregator_Summarize(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals,
		deal(7, 1000, "2024-05-01"),
		deal(7, 500, "2024-05-01T18:30:00"),
		deal(8, 900, "2024-05-01"),
		deal(7, 300, "2024-05-02"),
	)
	source.AddTable(testCashPool,
		ledger(7, 200, testFine, "2024-05-01"),
		ledger(7, 50, "Взнос", "2024-05-01"),
		ledger(8, 100, testFine, "2024-05-01"),
		ledger(7, 70, testFine, "2024-04-30"),
	)

	summary, err := agg.Summarize(context.Background(), 7, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.AgentID)
	assert.Equal(t, "2024-05-01", summary.Date)
	assert.Equal(t, 2, summary.DealCount)
	assert.Equal(t, int64(1500), summary.TotalCommission)
	assert.Equal(t, int64(200), summary.TotalFines)
	assert.Equal(t, int64(1300), summary.Net)
}

func TestAggregator_Idempotent(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals, deal(1, 100, "2024-01-02"), deal(1, 250, "2024-01-02"))
	source.AddTable(testCashPool, ledger(1, 40, testFine, "2024-01-02"))
	ctx := context.Background()

	first, err := agg.Summarize(ctx, 1, "2024-01-02")
	require.NoError(t, err)
	second, err := agg.Summarize(ctx, 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 汇总不写入任何数据
	assert.Len(t, source.Rows(testDeals), 2)
	assert.Len(t, source.Rows(testCashPool), 1)
}

func TestAggregator_ZeroFloor(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals, deal(2, 100, "2024-01-02"))
	source.AddTable(testCashPool, ledger(2, 40, testFine, "2024-01-02"))

	summary, err := agg.Summarize(context.Background(), 99, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, &models.AgentSummary{AgentID: 99, Date: "2024-01-02"}, summary)
}

func TestAggregator_NetCanBeNegative(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals, deal(3, 100, "2024-01-02"))
	source.AddTable(testCashPool,
		ledger(3, 300, testFine, "2024-01-02"),
		ledger(3, 50, testFine, "2024-01-02"),
	)

	summary, err := agg.Summarize(context.Background(), 3, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, int64(350), summary.TotalFines)
	assert.Equal(t, int64(-250), summary.Net)
	assert.Equal(t, summary.TotalCommission-summary.TotalFines, summary.Net)
}

func TestAggregator_DatePrefix(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals,
		deal(4, 100, "2024-01-02T09:15:00"),
		deal(4, 200, "2024-01-03T09:15:00"),
		deal(4, 400, ""),
		deal(4, 800, "02.01.2024"),
	)

	summary, err := agg.Summarize(context.Background(), 4, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DealCount)
	assert.Equal(t, int64(100), summary.TotalCommission)

	// 前缀匹配：按月查询也会命中
	monthly, err := agg.Summarize(context.Background(), 4, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, 2, monthly.DealCount)
}

func TestAggregator_MalformedRows(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals,
		deal("abc", 100, "2024-01-02"),
		deal("5", "1500.00", "2024-01-02"),
		deal(5, "n/a", "2024-01-02"),
		deal(nil, 700, "2024-01-02"),
	)
	source.AddTable(testCashPool,
		ledger(5, 30, map[string]interface{}{"id": 1, "value": testFine}, "2024-01-02"),
		ledger("x", 999, testFine, "2024-01-02"),
	)

	summary, err := agg.Summarize(context.Background(), 5, "2024-01-02")
	require.NoError(t, err)
	// 无法解析的佣金按 0 计但行仍计数
	assert.Equal(t, 2, summary.DealCount)
	assert.Equal(t, int64(1500), summary.TotalCommission)
	assert.Equal(t, int64(30), summary.TotalFines)

	// 缺失 agent_id 按 0 计
	zero, err := agg.Summarize(context.Background(), 0, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, zero.DealCount)
	assert.Equal(t, int64(700), zero.TotalCommission)
}

func TestAggregator_FetchCapBoundary(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	rows := make([]models.Row, 0, DefaultFetchLimit+1)
	for i := 0; i < DefaultFetchLimit+1; i++ {
		rows = append(rows, deal(6, 10, "2024-01-02"))
	}
	source.AddTable(testDeals, rows...)

	summary, err := agg.Summarize(context.Background(), 6, "2024-01-02")
	require.NoError(t, err)
	// 超出上限的行不参与汇总
	assert.Equal(t, DefaultFetchLimit, summary.DealCount)
	assert.Equal(t, int64(10*DefaultFetchLimit), summary.TotalCommission)
	assert.Contains(t, source.ListRowsCalls, DefaultFetchLimit)
}

func TestAggregator_CustomFetchLimit(t *testing.T) {
	agg, source := setupAggregator(t, 3)
	source.AddTable(testDeals,
		deal(1, 1, "2024-01-02"),
		deal(1, 1, "2024-01-02"),
		deal(1, 1, "2024-01-02"),
		deal(1, 1, "2024-01-02"),
	)

	summary, err := agg.Summarize(context.Background(), 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.DealCount)
}

func TestAggregator_MissingTables(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testCashPool, ledger(1, 40, testFine, "2024-01-02"))

	summary, err := agg.Summarize(context.Background(), 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DealCount)
	assert.Equal(t, int64(40), summary.TotalFines)
	assert.Equal(t, int64(-40), summary.Net)
}

func TestAggregator_FetchErrorDegrades(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals, deal(1, 100, "2024-01-02"))
	cashID := source.AddTable(testCashPool, ledger(1, 40, testFine, "2024-01-02"))
	source.ListRowsErr[cashID] = errors.ErrFetchRows.WithError(stderrors.New("502 bad gateway"))

	summary, err := agg.Summarize(context.Background(), 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, int64(100), summary.TotalCommission)
	assert.Equal(t, int64(0), summary.TotalFines)

	source.TableIDErr[testDeals] = stderrors.New("dial tcp: connection refused")
	summary, err = agg.Summarize(context.Background(), 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, &models.AgentSummary{AgentID: 1, Date: "2024-01-02"}, summary)
}

func TestAggregator_DegradeLogLevelByKind(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	source := testutil.NewMockRecordSource()
	agg := NewAggregator(source, AggregatorConfig{
		DealsTable:    testDeals,
		CashPoolTable: testCashPool,
		FineType:      testFine,
	}, zap.New(core))

	dealsID := source.AddTable(testDeals, deal(1, 100, "2024-01-02"))
	cashID := source.AddTable(testCashPool, ledger(1, 40, testFine, "2024-01-02"))
	source.ListRowsErr[dealsID] = errors.ErrFetchRows.WithError(stderrors.New("502 bad gateway"))
	source.ListRowsErr[cashID] = stderrors.New("unexpected EOF")

	summary, err := agg.Summarize(context.Background(), 1, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, &models.AgentSummary{AgentID: 1, Date: "2024-01-02"}, summary)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, testDeals, warns[0].ContextMap()["table"])

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Equal(t, testCashPool, errs[0].ContextMap()["table"])
}

func TestAggregator_ContextCanceled(t *testing.T) {
	agg, source := setupAggregator(t, 0)
	source.AddTable(testDeals, deal(1, 100, "2024-01-02"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := agg.Summarize(ctx, 1, "2024-01-02")
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, context.Canceled)
}
