package repository

import (
	"context"
	"time"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/common/metrics"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/pkg/baserow"
)

// BaserowAPI BaserowSource 依赖的客户端接口
type BaserowAPI interface {
	ListTables(ctx context.Context) ([]baserow.Table, error)
	CreateTable(ctx context.Context, name string) (*baserow.Table, error)
	ListFields(ctx context.Context, tableID int64) ([]baserow.Field, error)
	CreateField(ctx context.Context, tableID int64, name, fieldType string) (*baserow.Field, error)
	ListRows(ctx context.Context, tableID int64, limit int) ([]map[string]interface{}, error)
	CreateRow(ctx context.Context, tableID int64, fields map[string]interface{}) (map[string]interface{}, error)
}

// BaserowSource 基于 Baserow 的记录存储
type BaserowSource struct {
	client BaserowAPI
}

// NewBaserowSource 创建 Baserow 记录存储
func NewBaserowSource(client BaserowAPI) *BaserowSource {
	return &BaserowSource{client: client}
}

// TableID 按表名解析表 ID
func (s *BaserowSource) TableID(ctx context.Context, name string) (id int64, err error) {
	defer observe("table_id", time.Now(), &err)

	tables, err := s.client.ListTables(ctx)
	if err != nil {
		return 0, wrapSourceErr(ctx, errors.ErrFetchRows, err)
	}
	for _, t := range tables {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return 0, errors.ErrTableNotFound.WithMessage("table not found: " + name)
}

// ListRows 读取表中最多 limit 行
func (s *BaserowSource) ListRows(ctx context.Context, tableID int64, limit int) (rows []models.Row, err error) {
	defer observe("list_rows", time.Now(), &err)

	raw, err := s.client.ListRows(ctx, tableID, limit)
	if err != nil {
		return nil, wrapSourceErr(ctx, errors.ErrFetchRows, err)
	}
	rows = make([]models.Row, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, models.Row(r))
	}
	return rows, nil
}

// CreateRow 新增一行
func (s *BaserowSource) CreateRow(ctx context.Context, tableID int64, fields map[string]interface{}) (row models.Row, err error) {
	defer observe("create_row", time.Now(), &err)

	created, err := s.client.CreateRow(ctx, tableID, fields)
	if err != nil {
		return nil, wrapSourceErr(ctx, errors.ErrCreateRow, err)
	}
	return models.Row(created), nil
}

// ListTables 列出全部表
func (s *BaserowSource) ListTables(ctx context.Context) (tables []models.Table, err error) {
	defer observe("list_tables", time.Now(), &err)

	raw, err := s.client.ListTables(ctx)
	if err != nil {
		return nil, wrapSourceErr(ctx, errors.ErrFetchRows, err)
	}
	tables = make([]models.Table, 0, len(raw))
	for _, t := range raw {
		tables = append(tables, models.Table{ID: t.ID, Name: t.Name})
	}
	return tables, nil
}

// CreateTable 创建表
func (s *BaserowSource) CreateTable(ctx context.Context, name string) (id int64, err error) {
	defer observe("create_table", time.Now(), &err)

	t, err := s.client.CreateTable(ctx, name)
	if err != nil {
		return 0, wrapSourceErr(ctx, errors.ErrCreateTable, err)
	}
	return t.ID, nil
}

// EnsureField 字段不存在时创建
func (s *BaserowSource) EnsureField(ctx context.Context, tableID int64, name, fieldType string) (err error) {
	defer observe("ensure_field", time.Now(), &err)

	fields, err := s.client.ListFields(ctx, tableID)
	if err != nil {
		return wrapSourceErr(ctx, errors.ErrEnsureField, err)
	}
	for _, f := range fields {
		if f.Name == name {
			return nil
		}
	}
	if _, err = s.client.CreateField(ctx, tableID, name, fieldType); err != nil {
		return wrapSourceErr(ctx, errors.ErrEnsureField, err)
	}
	return nil
}

// wrapSourceErr 上下文取消原样返回，其余包装为业务错误码
func wrapSourceErr(ctx context.Context, kind *errors.AppError, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return kind.WithError(err)
}

// observe 记录调用耗时与错误；表不存在不计入错误
func observe(op string, start time.Time, errp *error) {
	err := *errp
	if err != nil && errors.Is(err, errors.ErrTableNotFound) {
		err = nil
	}
	metrics.RecordSourceCallGlobal(op, start, err)
}
