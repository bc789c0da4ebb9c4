// Package repository 提供数据访问层
package repository

import (
	"context"

	"github.com/dumeirei/realty-crm-bot/internal/models"
)

// RecordSource 表格型记录存储（Baserow 或 SQL 数据库）
//
// 错误约定：
//   - 表不存在返回 errors.ErrTableNotFound
//   - 读取失败返回 errors.ErrFetchRows
//   - 写入失败返回 errors.ErrCreateRow / ErrCreateTable / ErrEnsureField
//   - 上下文取消时原样返回 ctx.Err()
type RecordSource interface {
	// TableID 按表名解析表 ID
	TableID(ctx context.Context, name string) (int64, error)
	// ListRows 读取表中最多 limit 行，limit<=0 表示不限
	ListRows(ctx context.Context, tableID int64, limit int) ([]models.Row, error)
	// CreateRow 新增一行
	CreateRow(ctx context.Context, tableID int64, fields map[string]interface{}) (models.Row, error)
	// ListTables 列出全部表
	ListTables(ctx context.Context) ([]models.Table, error)
	// CreateTable 创建表并返回 ID
	CreateTable(ctx context.Context, name string) (int64, error)
	// EnsureField 字段不存在时创建
	EnsureField(ctx context.Context, tableID int64, name, fieldType string) error
}
