package repository

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/models"
)

// TableRepository 基于 SQL 数据库的记录存储，行数据以 JSON 保存
type TableRepository struct {
	db *gorm.DB
}

// NewTableRepository 创建表格仓储
func NewTableRepository(db *gorm.DB) *TableRepository {
	return &TableRepository{db: db}
}

// AutoMigrate 创建存储表
func (r *TableRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.CrmTable{}, &models.CrmField{}, &models.CrmRow{})
}

// TableID 按表名解析表 ID
func (r *TableRepository) TableID(ctx context.Context, name string) (id int64, err error) {
	defer observe("table_id", time.Now(), &err)

	var table models.CrmTable
	err = r.db.WithContext(ctx).Where("name = ?", name).First(&table).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errors.ErrTableNotFound.WithMessage("table not found: " + name)
		}
		return 0, wrapSourceErr(ctx, errors.ErrFetchRows, err)
	}
	return table.ID, nil
}

// ListRows 按 ID 升序读取最多 limit 行
func (r *TableRepository) ListRows(ctx context.Context, tableID int64, limit int) (rows []models.Row, err error) {
	defer observe("list_rows", time.Now(), &err)

	query := r.db.WithContext(ctx).Where("table_id = ?", tableID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.CrmRow
	if err = query.Find(&records).Error; err != nil {
		return nil, wrapSourceErr(ctx, errors.ErrFetchRows, err)
	}

	rows = make([]models.Row, 0, len(records))
	for _, rec := range records {
		row, decodeErr := decodeRow(rec)
		if decodeErr != nil {
			// 损坏的行只保留 id
			row = models.Row{"id": rec.ID}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CreateRow 新增一行
func (r *TableRepository) CreateRow(ctx context.Context, tableID int64, fields map[string]interface{}) (row models.Row, err error) {
	defer observe("create_row", time.Now(), &err)

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.ErrCreateRow.WithError(err)
	}
	rec := &models.CrmRow{TableID: tableID, Data: string(data)}
	if err = r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, wrapSourceErr(ctx, errors.ErrCreateRow, err)
	}
	return decodeRow(*rec)
}

// ListTables 列出全部表
func (r *TableRepository) ListTables(ctx context.Context) (tables []models.Table, err error) {
	defer observe("list_tables", time.Now(), &err)

	var records []models.CrmTable
	if err = r.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, wrapSourceErr(ctx, errors.ErrFetchRows, err)
	}
	tables = make([]models.Table, 0, len(records))
	for _, t := range records {
		tables = append(tables, models.Table{ID: t.ID, Name: t.Name})
	}
	return tables, nil
}

// CreateTable 创建表，同名表已存在时返回其 ID
func (r *TableRepository) CreateTable(ctx context.Context, name string) (id int64, err error) {
	defer observe("create_table", time.Now(), &err)

	table := models.CrmTable{Name: name}
	if err = r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&table).Error; err != nil {
		return 0, wrapSourceErr(ctx, errors.ErrCreateTable, err)
	}
	return table.ID, nil
}

// EnsureField 字段不存在时创建
func (r *TableRepository) EnsureField(ctx context.Context, tableID int64, name, fieldType string) (err error) {
	defer observe("ensure_field", time.Now(), &err)

	field := models.CrmField{TableID: tableID, Name: name, Type: fieldType}
	err = r.db.WithContext(ctx).
		Where("table_id = ? AND name = ?", tableID, name).
		FirstOrCreate(&field).Error
	if err != nil {
		return wrapSourceErr(ctx, errors.ErrEnsureField, err)
	}
	return nil
}

// decodeRow 解析 JSON 行并补充 id；数字保留为 json.Number，与 Baserow 客户端一致
func decodeRow(rec models.CrmRow) (models.Row, error) {
	row := models.Row{}
	dec := json.NewDecoder(bytes.NewReader([]byte(rec.Data)))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, errors.ErrRowParse.WithError(err)
	}
	if row == nil {
		row = models.Row{}
	}
	row["id"] = rec.ID
	return row, nil
}
