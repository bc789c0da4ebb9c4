package bot

import (
	"context"

	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/service/assistant"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// MsgManagerOnly 非负责人访问受限操作时的提示
const MsgManagerOnly = "Доступ запрещен: только руководитель."

// IsManager 是否为负责人；未配置负责人时任何人都不是
func (d *Dispatcher) IsManager(userID int64) bool {
	return d.cfg.ManagerID != 0 && userID == d.cfg.ManagerID
}

// RoleOf 用户在助手提示中的角色
func (d *Dispatcher) RoleOf(userID int64) string {
	if d.IsManager(userID) {
		return assistant.RoleManager
	}
	return assistant.RoleStaff
}

// requireManager 非负责人时弹窗提示并返回 false
func (d *Dispatcher) requireManager(ctx context.Context, cq *telegram.CallbackQuery) bool {
	if d.IsManager(cq.From.ID) {
		return true
	}
	d.log.Warn("manager-only action denied", logger.AgentID(cq.From.ID), logger.Action(cq.Data))
	if err := d.bot.AnswerCallbackQuery(ctx, cq.ID, MsgManagerOnly, true); err != nil {
		d.log.Warn("failed to answer callback", logger.Err(err))
	}
	return false
}
