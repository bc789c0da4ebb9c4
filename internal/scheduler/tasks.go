// Package scheduler 提供定时任务
package scheduler

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/cache"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
)

// 任务名
const (
	TaskDailyReport = "daily_report"
)

// DefaultLockTTL 任务锁默认有效期
const DefaultLockTTL = 5 * time.Minute

// Job 可执行的任务
type Job interface {
	Run(ctx context.Context) error
}

// TaskHandler 任务处理器
// 多实例部署时用 Redis 锁保证同一天的播报只发送一次
type TaskHandler struct {
	dailyReport Job
	locker      *redislock.Client
	lockTTL     time.Duration
	loc         *time.Location
	now         func() time.Time
	log         *zap.Logger
}

// NewTaskHandler 创建任务处理器，rdb 为空时不加锁
func NewTaskHandler(dailyReport Job, rdb *redis.Client, lockTTL time.Duration, loc *time.Location, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if loc == nil {
		loc = time.Local
	}
	h := &TaskHandler{
		dailyReport: dailyReport,
		lockTTL:     lockTTL,
		loc:         loc,
		now:         time.Now,
		log:         log.Named("tasks"),
	}
	if rdb != nil {
		h.locker = redislock.New(rdb)
	}
	return h
}

// SetClock 替换时间源（测试用）
func (h *TaskHandler) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// DailyReportLockKey 返回某天播报任务的锁键
func DailyReportLockKey(date string) string {
	return cache.BuildKey(cache.KeyPrefixLock, TaskDailyReport, date)
}

// DailyReport 执行每日播报
// 锁按日期区分且不主动释放，到期前其他实例的同日触发都会跳过
func (h *TaskHandler) DailyReport(ctx context.Context) error {
	if h.locker == nil {
		return h.dailyReport.Run(ctx)
	}

	date := h.now().In(h.loc).Format("2006-01-02")
	key := DailyReportLockKey(date)

	_, err := h.locker.Obtain(ctx, key, h.lockTTL, nil)
	if err == redislock.ErrNotObtained {
		h.log.Info("daily report already taken by another instance",
			logger.Job(TaskDailyReport), logger.String("date", date))
		return nil
	} else if err != nil {
		h.log.Warn("failed to obtain daily report lock, running anyway",
			logger.Job(TaskDailyReport), logger.Err(err))
	}

	return h.dailyReport.Run(ctx)
}

// Register 把所有任务注册到调度器
func (h *TaskHandler) Register(s *Scheduler, hour, minute int) {
	s.AddTask(TaskDailyReport, DailyAt(hour, minute, h.loc), h.DailyReport)
}
