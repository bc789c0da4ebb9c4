package models

import (
	"time"
)

// Deal 成交记录（“Успешные Сделки”表中的一行）
type Deal struct {
	AgentID          int64
	CommissionAmount int64
	Date             string
}

// 成交表字段名
const (
	DealFieldAgentID    = "agent_id"
	DealFieldCommission = "commission_amount"
	DealFieldDate       = "date"
)

// DealFromRow 从行解析成交记录，agent_id 无法解析时返回 false
func DealFromRow(r Row) (Deal, bool) {
	agentID, ok := r.Int(DealFieldAgentID)
	if !ok {
		return Deal{}, false
	}
	return Deal{
		AgentID:          agentID,
		CommissionAmount: r.IntOrZero(DealFieldCommission),
		Date:             r.String(DealFieldDate),
	}, true
}

// LedgerEntry 公共资金池流水（“Общак”表中的一行）
type LedgerEntry struct {
	FromAgent int64
	Amount    int64
	Type      string
	Date      string
}

// 资金池表字段名
const (
	LedgerFieldFromAgent = "from_agent"
	LedgerFieldAmount    = "amount"
	LedgerFieldType      = "type"
	LedgerFieldDate      = "date"
)

// LedgerEntryFromRow 从行解析流水，from_agent 无法解析时返回 false
func LedgerEntryFromRow(r Row) (LedgerEntry, bool) {
	fromAgent, ok := r.Int(LedgerFieldFromAgent)
	if !ok {
		return LedgerEntry{}, false
	}
	return LedgerEntry{
		FromAgent: fromAgent,
		Amount:    r.IntOrZero(LedgerFieldAmount),
		Type:      r.String(LedgerFieldType),
		Date:      r.String(LedgerFieldDate),
	}, true
}

// AgentSummary 经纪人当日业绩汇总（按需计算，不落库）
type AgentSummary struct {
	AgentID         int64  `json:"agent_id"`
	Date            string `json:"date"`
	DealCount       int    `json:"deal_count"`
	TotalCommission int64  `json:"total_commission"`
	TotalFines      int64  `json:"total_fines"`
	Net             int64  `json:"net"`
}

// ProcessLogEntry 工作流程日志（审计行）
type ProcessLogEntry struct {
	Title   string
	Notes   string
	Date    time.Time
	OwnerTG int64
}

// Fields 转换为表格字段
func (e ProcessLogEntry) Fields() map[string]interface{} {
	return map[string]interface{}{
		"title":    e.Title,
		"notes":    e.Notes,
		"date":     e.Date.UTC().Format("2006-01-02T15:04:05.000000"),
		"owner_tg": e.OwnerTG,
	}
}

// Task 任务
type Task struct {
	Title      string
	Details    string
	AssignedTo int64
	CreatedBy  int64
	Status     string
	Date       time.Time
}

// 任务状态
const (
	TaskStatusNew  = "Новая"
	TaskStatusDone = "Выполнена"
)

// Fields 转换为表格字段
func (t Task) Fields() map[string]interface{} {
	return map[string]interface{}{
		"title":       t.Title,
		"details":     t.Details,
		"assigned_to": t.AssignedTo,
		"created_by":  t.CreatedBy,
		"status":      t.Status,
		"date":        t.Date.Format("2006-01-02"),
	}
}

// PropertyObject 房源对象
type PropertyObject struct {
	Title       string
	Description string
	OwnerTG     int64
	Status      string
	Date        time.Time
}

// 房源状态
const (
	ObjectStatusActive = "В работе"
)

// Fields 转换为表格字段
func (o PropertyObject) Fields() map[string]interface{} {
	return map[string]interface{}{
		"title":       o.Title,
		"description": o.Description,
		"owner_tg":    o.OwnerTG,
		"status":      o.Status,
		"date":        o.Date.Format("2006-01-02"),
	}
}
