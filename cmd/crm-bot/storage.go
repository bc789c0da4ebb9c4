// Package main 是应用程序入口
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/config"
	"github.com/dumeirei/realty-crm-bot/internal/common/database"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/pkg/baserow"
)

// store 表格存储及其就绪检查与关闭函数
type store struct {
	source repository.RecordSource
	check  Check
	close  func() error
}

// openStore 按 storage.backend 打开表格存储
func openStore(cfg *config.Config, log *zap.Logger) (*store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBaserow:
		client := baserow.NewClient(&baserow.Config{
			BaseURL:    cfg.Baserow.URL,
			JWT:        cfg.Baserow.JWT,
			Token:      cfg.Baserow.Token,
			DatabaseID: cfg.Baserow.DatabaseID,
			PageSize:   cfg.Baserow.PageSize,
			Timeout:    time.Duration(cfg.Baserow.Timeout) * time.Second,
		})
		source := repository.NewBaserowSource(client)
		log.Info("using baserow storage", zap.String("url", cfg.Baserow.URL))
		return &store{
			source: source,
			check: func(ctx context.Context) error {
				_, err := source.ListTables(ctx)
				return err
			},
			close: func() error { return nil },
		}, nil

	case config.StorageDatabase:
		db, err := database.Init(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		repo := repository.NewTableRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate crm tables: %w", err)
		}
		log.Info("using database storage", zap.String("driver", cfg.Database.Driver))
		return &store{
			source: repo,
			check: func(ctx context.Context) error {
				return database.Ping(ctx, db)
			},
			close: database.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
