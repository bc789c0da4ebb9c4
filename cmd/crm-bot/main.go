// Package main 是应用程序入口
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dumeirei/realty-crm-bot/internal/bot"
	"github.com/dumeirei/realty-crm-bot/internal/common/cache"
	"github.com/dumeirei/realty-crm-bot/internal/common/config"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/metrics"
	"github.com/dumeirei/realty-crm-bot/internal/common/tracing"
	"github.com/dumeirei/realty-crm-bot/internal/handler/webhook"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/policy"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/internal/scheduler"
	"github.com/dumeirei/realty-crm-bot/internal/service/assistant"
	"github.com/dumeirei/realty-crm-bot/internal/service/crm"
	"github.com/dumeirei/realty-crm-bot/internal/service/finance"
	"github.com/dumeirei/realty-crm-bot/internal/service/report"
	"github.com/dumeirei/realty-crm-bot/internal/service/workday"
	"github.com/dumeirei/realty-crm-bot/pkg/llm"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

const version = "1.0.0"

// historyTurns 每次提问附带的历史条数
const historyTurns = 6

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (default ./configs/config.yaml)")
	pflag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()
	log.Info("Starting Realty CRM Bot",
		zap.String("version", version),
		zap.String("env", cfg.Server.Mode),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("telegram_mode", cfg.Telegram.Mode),
	)

	if err := run(cfg, log); err != nil {
		log.Error("bot exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	log.Info("bot exited")
}

// run 组装依赖并运行到收到退出信号
func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Namespace)
	}

	tracer, err := tracing.Init(&tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Mode,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(ctx)
	}()

	// 初始化 Redis 连接
	redisClient, err := cache.Init(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = cache.Close() }()
	log.Info("Redis connected successfully")

	// 表格存储
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tables := models.TableNames{
		Deals:      cfg.Business.Tables.Deals,
		CashPool:   cfg.Business.Tables.CashPool,
		ProcessLog: cfg.Business.Tables.ProcessLog,
		Tasks:      cfg.Business.Tables.Tasks,
		Objects:    cfg.Business.Tables.Objects,
	}

	// 建表失败不阻止启动，后续读写按表缺失处理
	res, err := crm.NewSchemaService(st.source, models.Schema(tables), log).EnsureTablesAndFields(ctx)
	if err != nil {
		return err
	}
	log.Info("schema ensured",
		zap.Int("tables_created", res.TablesCreated),
		zap.Int("fields_ensured", res.FieldsEnsured),
		zap.Int("failures", res.Failures))

	loc := cfg.Scheduler.Location()

	tg := telegram.NewClient(&telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: time.Duration(cfg.Telegram.PollTimeout+10) * time.Second,
	})

	// 仓储
	pendingRepo := repository.NewPendingReportRepository(redisClient)
	dialogRepo := repository.NewDialogStateRepository(redisClient)
	memoryRepo := repository.NewMemoryRepository(redisClient, cfg.Memory.MaxEntries, cfg.Memory.TTL())

	// 服务
	aggregator := finance.NewAggregator(st.source, finance.AggregatorConfig{
		DealsTable:    tables.Deals,
		CashPoolTable: tables.CashPool,
		FineType:      cfg.Business.FineType,
		FetchLimit:    cfg.Business.FetchLimit,
	}, log)

	workdaySvc := workday.NewService(aggregator, pendingRepo, st.source, tg, workday.Config{
		ManagerID:       cfg.Telegram.ManagerID,
		ProcessLogTable: tables.ProcessLog,
		PendingTTL:      cfg.Business.PendingTTLDuration(),
		Location:        loc,
	}, log)

	crmSvc := crm.NewService(st.source, tg, crm.Config{
		ManagerID:      cfg.Telegram.ManagerID,
		Tables:         tables,
		PreviewRows:    cfg.Business.PreviewRows,
		TableListLimit: cfg.Business.TableListLimit,
		Location:       loc,
	}, log)

	var chatter llm.Chatter
	if cfg.LLM.Enabled {
		chatter = llm.NewClient(&llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.Timeout) * time.Second,
		})
	}
	assistantSvc := assistant.NewService(chatter, memoryRepo, assistant.Config{
		Policy:         policy.Load(cfg.Policy.DocxPath, log),
		PolicyMaxChars: cfg.LLM.PolicyMaxChars,
		HistoryTurns:   historyTurns,
	}, log)

	dailyJob := report.NewDailyReportJob(st.source, aggregator, tg, report.Config{
		ManagerID:  cfg.Telegram.ManagerID,
		DealsTable: tables.Deals,
		FetchLimit: cfg.Business.FetchLimit,
		Location:   loc,
	}, log)

	dispatcher := bot.NewDispatcher(tg, workdaySvc, crmSvc, assistantSvc, dialogRepo, dailyJob, bot.Config{
		ManagerID:  cfg.Telegram.ManagerID,
		Tables:     tables,
		DetailsTTL: cfg.Business.DetailsTTLDuration(),
	}, log)

	// HTTP 服务
	gin.SetMode(ginMode(cfg))

	var webhookH *webhook.Handler
	if cfg.Telegram.Mode == config.TelegramModeWebhook {
		webhookH = webhook.NewHandler(dispatcher, cfg.Telegram.WebhookSecret, log)
	}

	engine := gin.New()
	setupRouter(engine, cfg, log, webhookH, map[string]Check{
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		"storage": st.check,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// 接收更新
	switch cfg.Telegram.Mode {
	case config.TelegramModeWebhook:
		if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("set webhook: %w", err)
		}
		log.Info("webhook registered", zap.String("url", cfg.Telegram.WebhookURL))
	default:
		if err := tg.DeleteWebhook(ctx, true); err != nil {
			log.Warn("failed to delete webhook", zap.Error(err))
		}
		poller := bot.NewPoller(tg, dispatcher, cfg.Telegram.PollTimeout, log)
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	// 定时任务
	if cfg.Scheduler.Enabled {
		// 时间格式已在 Validate 中校验
		hour, minute, _ := cfg.Scheduler.DailyReportClock()
		lockTTL := time.Duration(cfg.Scheduler.LockTTL) * time.Second
		sched := scheduler.NewScheduler(log)
		// 单次执行不超过锁的有效期
		sched.SetTimeout(lockTTL)
		tasks := scheduler.NewTaskHandler(dailyJob, redisClient, lockTTL, loc, log)
		tasks.Register(sched, hour, minute)
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	return g.Wait()
}
