// Package scheduler 提供定时任务调度
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
)

// DefaultTaskTimeout 单次任务执行超时
const DefaultTaskTimeout = 5 * time.Minute

// Schedule 计算下一次执行时间
type Schedule interface {
	Next(after time.Time) time.Time
}

// DailyAt 每天在 loc 时区的 hour:minute 执行
func DailyAt(hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.Local
	}
	return daily{hour: hour, minute: minute, loc: loc}
}

type daily struct {
	hour   int
	minute int
	loc    *time.Location
}

func (d daily) Next(after time.Time) time.Time {
	t := after.In(d.loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Scheduler 定时任务调度器
type Scheduler struct {
	tasks   []*Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Task 定时任务
type Task struct {
	Name     string
	Schedule Schedule
	Handler  func(ctx context.Context) error
}

// NewScheduler 创建调度器
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:   make([]*Task, 0),
		ctx:     ctx,
		cancel:  cancel,
		timeout: DefaultTaskTimeout,
		now:     time.Now,
		log:     log.Named("scheduler"),
	}
}

// SetClock 替换时间源（测试用）
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetTimeout 设置单次任务超时
func (s *Scheduler) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// AddTask 添加任务
func (s *Scheduler) AddTask(name string, schedule Schedule, handler func(ctx context.Context) error) {
	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Schedule: schedule,
		Handler:  handler,
	})
}

// Tasks 返回已注册的任务
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.log.Info("scheduler starting", logger.Int("tasks", len(s.tasks)))

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.log.Info("scheduler stopping")
	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Run 启动调度器并阻塞到 ctx 结束，便于放入 errgroup
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	s.Stop()
	return nil
}

// runTask 运行单个任务
func (s *Scheduler) runTask(task *Task) {
	defer s.wg.Done()

	// 时钟回拨时不早于上一次的计划时间，避免同一时刻重复执行
	var last time.Time
	for {
		now := s.now()
		from := now
		if last.After(from) {
			from = last
		}
		next := task.Schedule.Next(from)
		last = next
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		s.log.Info("task scheduled",
			logger.Job(task.Name),
			logger.String("next_run", next.Format(time.RFC3339)))

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.log.Info("task stopped", logger.Job(task.Name))
			return
		case <-timer.C:
			s.executeTask(task)
		}
	}
}

// executeTask 执行任务，panic 不会终止调度循环
func (s *Scheduler) executeTask(task *Task) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logger.Job(task.Name), logger.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := task.Handler(ctx); err != nil {
		s.log.Error("task failed", logger.Job(task.Name), logger.Err(err))
		return
	}
	s.log.Info("task completed", logger.Job(task.Name), logger.Latency(time.Since(start)))
}
