// Package bot 实现 Telegram 菜单对话：菜单、回调分发与长轮询
package bot

import (
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// 回调数据前缀
// Telegram 限制 callback_data 不超过 64 字节，按钮数据只携带短键
const (
	CallbackTable   = "table:"
	CallbackSubmenu = "submenu:"
	CallbackAction  = "action:"
	CallbackBack    = "back:main"
	CallbackConfirm = "confirm_finish:"

	ConfirmYes = "yes"
	ConfirmNo  = "no"
)

// 子菜单键
const (
	GroupTasks   = "tasks"
	GroupObjects = "objects"
	GroupReports = "reports"
)

// 子菜单项键
const (
	ItemAddTask      = "add_task"
	ItemMyTasks      = "my_tasks"
	ItemAddObject    = "add_object"
	ItemMyObjects    = "my_objects"
	ItemCreateReport = "create_report"
	ItemFinishDay    = "finish_day"
	ItemAgentsReport = "agents_report"
)

// 表键
const (
	TableTasks      = "tasks"
	TableObjects    = "objects"
	TableDeals      = "deals"
	TableCashPool   = "cash_pool"
	TableProcessLog = "process_log"
)

// MenuItem 子菜单项
type MenuItem struct {
	Key   string
	Title string
}

// MenuGroup 子菜单
type MenuGroup struct {
	Key   string
	Title string
	Items []MenuItem
}

// Groups 子菜单定义
var Groups = []MenuGroup{
	{
		Key:   GroupTasks,
		Title: "Задачи",
		Items: []MenuItem{
			{Key: ItemAddTask, Title: "Добавить задачу"},
			{Key: ItemMyTasks, Title: "Мои задачи"},
		},
	},
	{
		Key:   GroupObjects,
		Title: "Объекты",
		Items: []MenuItem{
			{Key: ItemAddObject, Title: "Добавить объект"},
			{Key: ItemMyObjects, Title: "Мои объекты"},
		},
	},
	{
		Key:   GroupReports,
		Title: "Отчетность",
		Items: []MenuItem{
			{Key: ItemCreateReport, Title: "Создать отчет"},
			{Key: ItemFinishDay, Title: "Закончить рабочий день"},
			{Key: ItemAgentsReport, Title: "Отчет по агентам"},
		},
	},
}

// FindGroup 按键查找子菜单
func FindGroup(key string) (MenuGroup, bool) {
	for _, g := range Groups {
		if g.Key == key {
			return g, true
		}
	}
	return MenuGroup{}, false
}

// FindItem 按键查找子菜单项
func FindItem(groupKey, itemKey string) (MenuGroup, MenuItem, bool) {
	g, ok := FindGroup(groupKey)
	if !ok {
		return MenuGroup{}, MenuItem{}, false
	}
	for _, it := range g.Items {
		if it.Key == itemKey {
			return g, it, true
		}
	}
	return g, MenuItem{}, false
}

// TableEntry 主菜单中的表按钮
type TableEntry struct {
	Key  string
	Name string
}

// TableEntries 主菜单展示的表
func TableEntries(names models.TableNames) []TableEntry {
	return []TableEntry{
		{Key: TableTasks, Name: names.Tasks},
		{Key: TableObjects, Name: names.Objects},
		{Key: TableDeals, Name: names.Deals},
		{Key: TableCashPool, Name: names.CashPool},
		{Key: TableProcessLog, Name: names.ProcessLog},
	}
}

// MainMenu 主菜单：表按钮每行两个，其后为子菜单入口
func MainMenu(tables []TableEntry) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(tables)/2+3)

	var row []telegram.InlineKeyboardButton
	for _, t := range tables {
		row = append(row, telegram.NewButton(t.Name, CallbackTable+t.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	tasks, _ := FindGroup(GroupTasks)
	objects, _ := FindGroup(GroupObjects)
	reports, _ := FindGroup(GroupReports)
	rows = append(rows,
		[]telegram.InlineKeyboardButton{
			telegram.NewButton(tasks.Title+" ▾", CallbackSubmenu+tasks.Key),
			telegram.NewButton(objects.Title+" ▾", CallbackSubmenu+objects.Key),
		},
		[]telegram.InlineKeyboardButton{
			telegram.NewButton(reports.Title+" ▾", CallbackSubmenu+reports.Key),
		},
	)
	return telegram.NewKeyboard(rows...)
}

// Submenu 子菜单：每项一行，最后是返回按钮
func Submenu(g MenuGroup) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(g.Items)+1)
	for _, it := range g.Items {
		rows = append(rows, []telegram.InlineKeyboardButton{
			telegram.NewButton(it.Title, CallbackAction+g.Key+":"+it.Key),
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{telegram.NewButton("⬅️ Назад", CallbackBack)})
	return telegram.NewKeyboard(rows...)
}

// ConfirmFinishKeyboard 收工确认按钮
func ConfirmFinishKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.NewKeyboard([]telegram.InlineKeyboardButton{
		telegram.NewButton("✅ Подтвердить и отправить", CallbackConfirm+ConfirmYes),
		telegram.NewButton("❌ Отмена", CallbackConfirm+ConfirmNo),
	})
}
