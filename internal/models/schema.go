package models

import (
	"time"
)

// 字段类型（与 Baserow 字段类型一致）
const (
	FieldTypeText     = "text"
	FieldTypeLongText = "long_text"
	FieldTypeNumber   = "number"
)

// FieldDefinition 字段定义
type FieldDefinition struct {
	Name string
	Type string
}

// TableDefinition 表定义
type TableDefinition struct {
	Name   string
	Fields []FieldDefinition
}

// TableNames CRM 使用的表名，允许通过配置覆盖
type TableNames struct {
	Deals      string
	CashPool   string
	ProcessLog string
	Tasks      string
	Objects    string
}

// Schema 按表名生成 CRM 表结构
// 日期统一存为 ISO 文本，按前缀过滤
func Schema(names TableNames) []TableDefinition {
	return []TableDefinition{
		{
			Name: names.Tasks,
			Fields: []FieldDefinition{
				{Name: "title", Type: FieldTypeText},
				{Name: "details", Type: FieldTypeLongText},
				{Name: "assigned_to", Type: FieldTypeNumber},
				{Name: "created_by", Type: FieldTypeNumber},
				{Name: "status", Type: FieldTypeText},
				{Name: "date", Type: FieldTypeText},
			},
		},
		{
			Name: names.Objects,
			Fields: []FieldDefinition{
				{Name: "title", Type: FieldTypeText},
				{Name: "description", Type: FieldTypeLongText},
				{Name: "owner_tg", Type: FieldTypeNumber},
				{Name: "status", Type: FieldTypeText},
				{Name: "date", Type: FieldTypeText},
			},
		},
		{
			Name: names.Deals,
			Fields: []FieldDefinition{
				{Name: DealFieldAgentID, Type: FieldTypeNumber},
				{Name: "object", Type: FieldTypeText},
				{Name: "client", Type: FieldTypeText},
				{Name: DealFieldCommission, Type: FieldTypeNumber},
				{Name: DealFieldDate, Type: FieldTypeText},
			},
		},
		{
			Name: names.CashPool,
			Fields: []FieldDefinition{
				{Name: LedgerFieldFromAgent, Type: FieldTypeNumber},
				{Name: LedgerFieldAmount, Type: FieldTypeNumber},
				{Name: LedgerFieldType, Type: FieldTypeText},
				{Name: LedgerFieldDate, Type: FieldTypeText},
				{Name: "comment", Type: FieldTypeLongText},
			},
		},
		{
			Name: names.ProcessLog,
			Fields: []FieldDefinition{
				{Name: "title", Type: FieldTypeText},
				{Name: "notes", Type: FieldTypeLongText},
				{Name: "date", Type: FieldTypeText},
				{Name: "owner_tg", Type: FieldTypeNumber},
			},
		},
	}
}

// CrmTable 数据库存储后端：表
type CrmTable struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null;uniqueIndex;column:name" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at" json:"created_at"`
}

// TableName 表名
func (CrmTable) TableName() string {
	return "crm_tables"
}

// CrmField 数据库存储后端：字段
type CrmField struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	TableID   int64     `gorm:"not null;uniqueIndex:idx_crm_field_table_name;column:table_id" json:"table_id"`
	Name      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_crm_field_table_name;column:name" json:"name"`
	Type      string    `gorm:"type:varchar(20);not null;column:type" json:"type"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at" json:"created_at"`
}

// TableName 表名
func (CrmField) TableName() string {
	return "crm_fields"
}

// CrmRow 数据库存储后端：行，字段以 JSON 文本保存
type CrmRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	TableID   int64     `gorm:"not null;index;column:table_id" json:"table_id"`
	Data      string    `gorm:"type:text;not null;column:data" json:"data"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at" json:"created_at"`
}

// TableName 表名
func (CrmRow) TableName() string {
	return "crm_rows"
}
