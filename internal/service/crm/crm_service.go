// Package crm 提供任务、房源、日报与表格浏览等 CRM 操作
package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/tracing"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// 默认值
const (
	DefaultPreviewRows    = 20
	DefaultTableListLimit = 100
	DefaultTaskTitle      = "Задача"
	DefaultObjectTitle    = "Объект"
	DefaultReportTitle    = "Отчет"
)

// Author 操作发起人
type Author struct {
	ID   int64
	Name string
}

// Config CRM 服务配置
type Config struct {
	ManagerID      int64
	Tables         models.TableNames
	PreviewRows    int
	TableListLimit int
	Location       *time.Location
}

// Service CRM 服务
type Service struct {
	source repository.RecordSource
	sender telegram.Sender
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

// NewService 创建 CRM 服务
func NewService(source repository.RecordSource, sender telegram.Sender, cfg Config, log *zap.Logger) *Service {
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.TableListLimit <= 0 {
		cfg.TableListLimit = DefaultTableListLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source: source,
		sender: sender,
		cfg:    cfg,
		log:    log.Named("crm"),
		now:    time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// TableNames 配置的 CRM 表名
func (s *Service) TableNames() models.TableNames {
	return s.cfg.Tables
}

// AddTask 为发起人本人新增一条任务
func (s *Service) AddTask(ctx context.Context, author Author, details string) (models.Row, error) {
	task := models.Task{
		Title:      DefaultTaskTitle,
		Details:    details,
		AssignedTo: author.ID,
		CreatedBy:  author.ID,
		Status:     models.TaskStatusNew,
		Date:       s.now().In(s.cfg.Location),
	}
	return s.insert(ctx, s.cfg.Tables.Tasks, task.Fields())
}

// AddObject 新增房源，首行作为标题
func (s *Service) AddObject(ctx context.Context, author Author, description string) (models.Row, error) {
	obj := models.PropertyObject{
		Title:       objectTitle(description),
		Description: description,
		OwnerTG:     author.ID,
		Status:      models.ObjectStatusActive,
		Date:        s.now().In(s.cfg.Location),
	}
	return s.insert(ctx, s.cfg.Tables.Objects, obj.Fields())
}

func objectTitle(description string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(description), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return DefaultObjectTitle
	}
	runes := []rune(line)
	if len(runes) > 80 {
		return string(runes[:80]) + "…"
	}
	return line
}

// CreateReport 保存员工日报并转发给负责人
// 写表失败只记录日志；转发失败返回 ErrNotifyFailed
func (s *Service) CreateReport(ctx context.Context, author Author, text string) error {
	ctx, span := tracing.StartSpan(ctx, "crm.CreateReport", tracing.WithAgentID(author.ID))
	defer span.End()

	entry := models.ProcessLogEntry{
		Title:   DefaultReportTitle,
		Notes:   text,
		Date:    s.now(),
		OwnerTG: author.ID,
	}
	if _, err := s.insert(ctx, s.cfg.Tables.ProcessLog, entry.Fields()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("failed to save daily report row", logger.AgentID(author.ID), logger.Err(err))
	}

	if s.cfg.ManagerID == 0 {
		return nil
	}
	msg := fmt.Sprintf("Ежедневный отчет от %s:\n%s", author.Name, text)
	if _, err := s.sender.SendMessage(ctx, s.cfg.ManagerID, msg, nil); err != nil {
		tracing.SetError(ctx, err)
		return errors.ErrNotifyFailed.WithError(err)
	}
	return nil
}

// MyTasks 列出分配给用户的任务
func (s *Service) MyTasks(ctx context.Context, userID int64) (string, error) {
	rows, err := s.rowsOf(ctx, s.cfg.Tables.Tasks)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, row := range rows {
		if row.IntOrZero("assigned_to") != userID {
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s: %s (%s, %s)",
			row.String("title"), row.String("details"), row.String("status"), row.String("date")))
	}
	if len(lines) == 0 {
		return "У вас нет задач.", nil
	}
	return "Ваши задачи:\n" + strings.Join(lines, "\n"), nil
}

// MyObjects 列出用户负责的房源
func (s *Service) MyObjects(ctx context.Context, userID int64) (string, error) {
	rows, err := s.rowsOf(ctx, s.cfg.Tables.Objects)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, row := range rows {
		if row.IntOrZero("owner_tg") != userID {
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s (%s)", row.String("title"), row.String("status")))
	}
	if len(lines) == 0 {
		return "У вас нет объектов.", nil
	}
	return "Ваши объекты:\n" + strings.Join(lines, "\n"), nil
}

// TablePreview 表格前若干行的文本预览
// 表不存在时返回 ErrTableNotFound
func (s *Service) TablePreview(ctx context.Context, table string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "crm.TablePreview", tracing.WithTable(table))
	defer span.End()

	tableID, err := s.source.TableID(ctx, table)
	if err != nil {
		return "", err
	}
	rows, err := s.source.ListRows(ctx, tableID, s.cfg.TableListLimit)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return fmt.Sprintf("Таблица «%s» пуста.", table), nil
	}
	if len(rows) > s.cfg.PreviewRows {
		rows = rows[:s.cfg.PreviewRows]
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.Preview())
	}
	return fmt.Sprintf("«%s» (первые %d):\n", table, s.cfg.PreviewRows) + strings.Join(lines, "\n"), nil
}

func (s *Service) rowsOf(ctx context.Context, table string) ([]models.Row, error) {
	tableID, err := s.source.TableID(ctx, table)
	if errors.Is(err, errors.ErrTableNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.source.ListRows(ctx, tableID, s.cfg.TableListLimit)
}

func (s *Service) insert(ctx context.Context, table string, fields map[string]interface{}) (models.Row, error) {
	ctx, span := tracing.StartSpan(ctx, "crm.Insert", tracing.WithTable(table))
	defer span.End()

	tableID, err := s.source.TableID(ctx, table)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	row, err := s.source.CreateRow(ctx, tableID, fields)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	s.log.Debug("row created", logger.Table(table), logger.Int64("row_id", row.ID()))
	return row, nil
}
