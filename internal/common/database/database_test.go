// Package database 数据库模块单元测试
package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/realty-crm-bot/internal/common/config"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, getLogLevel(true))
	assert.Equal(t, logger.Warn, getLogLevel(false))
}

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "crm.db"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: 1,
	}

	gdb, err := Init(cfg)
	require.NoError(t, err)
	require.NotNil(t, gdb)
	t.Cleanup(func() { _ = Close() })

	assert.NoError(t, Ping(context.Background(), gdb))
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
