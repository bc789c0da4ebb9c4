package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/metrics"
	"github.com/dumeirei/realty-crm-bot/internal/common/tracing"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/internal/service/assistant"
	"github.com/dumeirei/realty-crm-bot/internal/service/crm"
	"github.com/dumeirei/realty-crm-bot/internal/service/workday"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// 回复文本
const (
	MsgChooseSection  = "Выберите раздел (используйте inline-кнопки):"
	MsgMainMenu       = "Главное меню:"
	MsgConfirmFinish  = "Подтвердите завершение рабочего дня:"
	MsgTableNotFound  = "Таблица не найдена"
	MsgTaskAdded      = "Задача добавлена ✅"
	MsgObjectAdded    = "Объект добавлен ✅"
	MsgReportSent     = "Отчет сформирован и отправлен руководителю ✅"
	MsgAgentsReport   = "Отчет по агентам отправлен руководителю."
	MsgTryLater       = "Сервис временно недоступен, попробуйте позже."
	MsgUnknownCommand = "Неизвестная команда"
)

// DefaultDetailsTTL 等待用户补充内容的有效期
const DefaultDetailsTTL = 10 * time.Minute

// DialogState 等待补充内容的对话状态
type DialogState interface {
	SetAwaiting(ctx context.Context, userID int64, action repository.PendingAction, ttl time.Duration) error
	TakeAwaiting(ctx context.Context, userID int64) (*repository.PendingAction, error)
}

// Broadcaster 立即执行的全员播报
type Broadcaster interface {
	Run(ctx context.Context) error
}

// Config 分发器配置
type Config struct {
	ManagerID  int64
	Tables     models.TableNames
	DetailsTTL time.Duration
}

// Dispatcher 按更新类型分发到各业务服务
type Dispatcher struct {
	bot       telegram.Bot
	workday   *workday.Service
	crm       *crm.Service
	assistant *assistant.Service
	dialog    DialogState
	reports   Broadcaster
	cfg       Config
	tables    []TableEntry
	log       *zap.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(
	bot telegram.Bot,
	workdaySvc *workday.Service,
	crmSvc *crm.Service,
	assistantSvc *assistant.Service,
	dialog DialogState,
	reports Broadcaster,
	cfg Config,
	log *zap.Logger,
) *Dispatcher {
	if cfg.DetailsTTL <= 0 {
		cfg.DetailsTTL = DefaultDetailsTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		bot:       bot,
		workday:   workdaySvc,
		crm:       crmSvc,
		assistant: assistantSvc,
		dialog:    dialog,
		reports:   reports,
		cfg:       cfg,
		tables:    TableEntries(cfg.Tables),
		log:       log.Named("dispatcher"),
	}
}

// HandleUpdate 处理一条更新
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		metrics.RecordUpdateGlobal("callback")
		return d.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.IsCommand("start"):
		metrics.RecordUpdateGlobal("command")
		_, err := d.bot.SendMessage(ctx, upd.Message.Chat.ID, MsgChooseSection, MainMenu(d.tables))
		return err
	case upd.Message != nil && upd.Message.Text != "":
		metrics.RecordUpdateGlobal("text")
		return d.handleText(ctx, upd.Message)
	default:
		metrics.RecordUpdateGlobal("other")
		return nil
	}
}

// ==================== 文本消息 ====================

func (d *Dispatcher) handleText(ctx context.Context, m *telegram.Message) error {
	if m.From == nil {
		return nil
	}
	user := m.From
	chatID := m.Chat.ID

	ctx, span := tracing.StartSpan(ctx, "bot.Text",
		tracing.WithAgentID(user.ID),
		tracing.WithChatID(chatID),
	)
	defer span.End()

	pending, err := d.dialog.TakeAwaiting(ctx, user.ID)
	if err != nil {
		d.log.Warn("dialog state unavailable", logger.AgentID(user.ID), logger.Err(err))
	}

	if pending != nil {
		handled, err := d.handleDetails(ctx, chatID, user, *pending, m.Text)
		if handled || err != nil {
			return err
		}
	}

	role := d.RoleOf(user.ID)
	reply := d.assistant.Reply(ctx, user.ID, role, m.Text)
	if _, err := d.bot.SendMessage(ctx, chatID, reply, nil); err != nil {
		return err
	}
	d.assistant.Remember(ctx, user.ID, role, m.Text, map[string]string{"source": "text"})
	d.assistant.RememberAnswer(ctx, user.ID, reply)
	return nil
}

// handleDetails 处理用户对子菜单操作补充的内容
func (d *Dispatcher) handleDetails(ctx context.Context, chatID int64, user *telegram.User, action repository.PendingAction, text string) (bool, error) {
	author := crm.Author{ID: user.ID, Name: user.FullName()}

	switch action.Group + ":" + action.Action {
	case GroupTasks + ":" + ItemAddTask:
		if _, err := d.crm.AddTask(ctx, author, text); err != nil {
			d.log.Error("failed to add task", logger.AgentID(user.ID), logger.Err(err))
		}
		return true, d.send(ctx, chatID, MsgTaskAdded)

	case GroupObjects + ":" + ItemAddObject:
		if _, err := d.crm.AddObject(ctx, author, text); err != nil {
			d.log.Error("failed to add object", logger.AgentID(user.ID), logger.Err(err))
		}
		return true, d.send(ctx, chatID, MsgObjectAdded)

	case GroupReports + ":" + ItemCreateReport:
		if err := d.crm.CreateReport(ctx, author, text); err != nil {
			return true, err
		}
		return true, d.send(ctx, chatID, MsgReportSent)
	}
	return false, nil
}

// ==================== 回调 ====================

func (d *Dispatcher) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	chatID := cq.From.ID
	var messageID int64
	if cq.Message != nil {
		chatID = cq.Message.Chat.ID
		messageID = cq.Message.MessageID
	}

	ctx, span := tracing.StartSpan(ctx, "bot.Callback",
		tracing.WithAgentID(cq.From.ID),
		tracing.WithChatID(chatID),
		tracing.WithOperation(cq.Data),
	)
	defer span.End()

	var err error
	answered := false
	data := cq.Data
	switch {
	case data == CallbackBack:
		err = d.edit(ctx, chatID, messageID, MsgMainMenu, MainMenu(d.tables))

	case strings.HasPrefix(data, CallbackSubmenu):
		g, ok := FindGroup(strings.TrimPrefix(data, CallbackSubmenu))
		if !ok {
			answered, err = true, d.answer(ctx, cq, MsgUnknownCommand, false)
			break
		}
		err = d.edit(ctx, chatID, messageID, g.Title+":", Submenu(g))

	case strings.HasPrefix(data, CallbackTable):
		answered, err = d.openTable(ctx, cq, chatID, strings.TrimPrefix(data, CallbackTable))

	case strings.HasPrefix(data, CallbackAction):
		answered, err = d.handleAction(ctx, cq, chatID, strings.TrimPrefix(data, CallbackAction))

	case strings.HasPrefix(data, CallbackConfirm):
		err = d.confirmFinish(ctx, cq, chatID, strings.TrimPrefix(data, CallbackConfirm))

	default:
		answered, err = true, d.answer(ctx, cq, MsgUnknownCommand, false)
	}

	if err != nil {
		tracing.SetError(ctx, err)
	}
	if !answered {
		if aerr := d.answer(ctx, cq, "", false); aerr != nil {
			d.log.Debug("failed to answer callback", logger.Err(aerr))
		}
	}
	return err
}

func (d *Dispatcher) openTable(ctx context.Context, cq *telegram.CallbackQuery, chatID int64, key string) (bool, error) {
	name := ""
	for _, t := range d.tables {
		if t.Key == key {
			name = t.Name
			break
		}
	}
	if name == "" {
		return true, d.answer(ctx, cq, MsgTableNotFound, true)
	}

	text, err := d.crm.TablePreview(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !errors.Is(err, errors.ErrTableNotFound) {
			d.log.Warn("table preview failed", logger.Table(name), logger.Err(err))
		}
		return true, d.answer(ctx, cq, MsgTableNotFound, true)
	}
	return false, d.send(ctx, chatID, text)
}

func (d *Dispatcher) handleAction(ctx context.Context, cq *telegram.CallbackQuery, chatID int64, payload string) (bool, error) {
	groupKey, itemKey, _ := strings.Cut(payload, ":")
	g, item, ok := FindItem(groupKey, itemKey)
	if !ok {
		return true, d.answer(ctx, cq, MsgUnknownCommand, false)
	}
	user := cq.From

	switch g.Key + ":" + item.Key {
	case GroupReports + ":" + ItemFinishDay:
		return false, d.requestFinish(ctx, chatID, &user)

	case GroupReports + ":" + ItemAgentsReport:
		if !d.requireManager(ctx, cq) {
			return true, nil
		}
		if err := d.reports.Run(ctx); err != nil {
			d.log.Error("manual daily report failed", logger.AgentID(user.ID), logger.Err(err))
			return false, d.send(ctx, chatID, MsgTryLater)
		}
		return false, d.send(ctx, chatID, MsgAgentsReport)

	case GroupTasks + ":" + ItemMyTasks:
		text, err := d.crm.MyTasks(ctx, user.ID)
		if err != nil {
			d.log.Warn("failed to list tasks", logger.AgentID(user.ID), logger.Err(err))
			text = MsgTryLater
		}
		return false, d.send(ctx, chatID, text)

	case GroupObjects + ":" + ItemMyObjects:
		text, err := d.crm.MyObjects(ctx, user.ID)
		if err != nil {
			d.log.Warn("failed to list objects", logger.AgentID(user.ID), logger.Err(err))
			text = MsgTryLater
		}
		return false, d.send(ctx, chatID, text)
	}

	prompt := fmt.Sprintf("Вы выбрали: %s → %s. Напишите детали (одним сообщением).", g.Title, item.Title)
	if err := d.send(ctx, chatID, prompt); err != nil {
		return false, err
	}
	action := repository.PendingAction{Group: g.Key, Action: item.Key}
	if err := d.dialog.SetAwaiting(ctx, user.ID, action, d.cfg.DetailsTTL); err != nil {
		d.log.Error("failed to store pending action", logger.AgentID(user.ID), logger.Err(err))
		return false, err
	}
	return false, nil
}

func (d *Dispatcher) requestFinish(ctx context.Context, chatID int64, user *telegram.User) error {
	text, err := d.workday.RequestClose(ctx, workday.Requester{ID: user.ID, Name: user.FullName()})
	if err != nil {
		d.log.Error("workday close request failed", logger.AgentID(user.ID), logger.Err(err))
		return d.send(ctx, chatID, MsgTryLater)
	}
	if err := d.send(ctx, chatID, text); err != nil {
		return err
	}
	_, err = d.bot.SendMessage(ctx, chatID, MsgConfirmFinish, ConfirmFinishKeyboard())
	return err
}

func (d *Dispatcher) confirmFinish(ctx context.Context, cq *telegram.CallbackQuery, chatID int64, choice string) error {
	req := workday.Requester{ID: cq.From.ID, Name: cq.From.FullName()}

	var (
		ack string
		err error
	)
	if choice == ConfirmYes {
		ack, err = d.workday.Confirm(ctx, req)
	} else {
		ack, err = d.workday.Cancel(ctx, req)
	}
	if err != nil {
		d.log.Error("workday close failed", logger.AgentID(req.ID), logger.Action(choice), logger.Err(err))
		return d.send(ctx, chatID, MsgTryLater)
	}
	return d.send(ctx, chatID, ack)
}

// ==================== 发送辅助 ====================

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) error {
	_, err := d.bot.SendMessage(ctx, chatID, text, nil)
	return err
}

func (d *Dispatcher) edit(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	if messageID == 0 {
		_, err := d.bot.SendMessage(ctx, chatID, text, markup)
		return err
	}
	return d.bot.EditMessageText(ctx, chatID, messageID, text, markup)
}

func (d *Dispatcher) answer(ctx context.Context, cq *telegram.CallbackQuery, text string, alert bool) error {
	return d.bot.AnswerCallbackQuery(ctx, cq.ID, text, alert)
}
