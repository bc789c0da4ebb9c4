package crm

import (
	"context"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
)

// SchemaResult 建表结果
type SchemaResult struct {
	TablesCreated int
	FieldsEnsured int
	Failures      int
}

// SchemaService 启动时确保 CRM 表和字段存在
type SchemaService struct {
	source repository.RecordSource
	tables []models.TableDefinition
	log    *zap.Logger
}

// NewSchemaService 创建建表服务
func NewSchemaService(source repository.RecordSource, tables []models.TableDefinition, log *zap.Logger) *SchemaService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SchemaService{source: source, tables: tables, log: log.Named("schema")}
}

// EnsureTablesAndFields 创建缺失的表并补齐字段
// 单个表或字段失败只记录日志并跳过；仅上下文取消时返回错误
func (s *SchemaService) EnsureTablesAndFields(ctx context.Context) (SchemaResult, error) {
	var res SchemaResult

	existing := make(map[string]int64)
	tables, err := s.source.ListTables(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Failures++
		s.log.Error("failed to list tables", logger.Err(err))
	}
	for _, t := range tables {
		existing[t.Name] = t.ID
	}

	for _, def := range s.tables {
		tableID, ok := existing[def.Name]
		if !ok {
			tableID, err = s.source.CreateTable(ctx, def.Name)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failures++
				s.log.Error("failed to create table", logger.Table(def.Name), logger.Err(err))
				continue
			}
			if tableID == 0 {
				continue
			}
			res.TablesCreated++
			s.log.Info("table created", logger.Table(def.Name), logger.TableID(tableID))
		}

		for _, f := range def.Fields {
			if err := s.source.EnsureField(ctx, tableID, f.Name, f.Type); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failures++
				s.log.Error("failed to ensure field",
					logger.Table(def.Name), logger.String("field", f.Name), logger.Err(err))
				continue
			}
			res.FieldsEnsured++
		}
	}

	s.log.Info("schema ensured",
		logger.Int("tables_created", res.TablesCreated),
		logger.Int("fields", res.FieldsEnsured),
		logger.Int("failures", res.Failures),
	)
	return res, nil
}
