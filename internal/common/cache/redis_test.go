// Package cache Redis 模块单元测试
package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/realty-crm-bot/internal/common/config"
)

func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestInit_Success(t *testing.T) {
	s := setupMiniRedis(t)

	client, err := Init(&config.RedisConfig{
		Host:         s.Host(),
		Port:         s.Server().Addr().Port,
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  5,
		ReadTimeout:  3,
		WriteTimeout: 3,
	})
	require.NoError(t, err)
	assert.NotNil(t, client)
	t.Cleanup(func() { _ = Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestInit_ConnectionFailed(t *testing.T) {
	client, err := Init(&config.RedisConfig{
		Host:        "127.0.0.1",
		Port:        1,
		DialTimeout: 1,
	})
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect redis")
}

func TestClose_WithNilClient(t *testing.T) {
	rdb = nil
	assert.NoError(t, Close())
}

func TestIsNil(t *testing.T) {
	s := setupMiniRedis(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.Get(context.Background(), "missing").Result()
	assert.True(t, IsNil(err))
	assert.False(t, IsNil(nil))
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "lock:daily_report:2024-01-02", BuildKey(KeyPrefixLock, "daily_report", "2024-01-02"))
	assert.Equal(t, "memory:dialog:42", BuildKey(KeyPrefixMemory, "42"))
}

func TestUserKey(t *testing.T) {
	assert.Equal(t, "pending_finish:42", UserKey(KeyPrefixPendingFinish, 42))
	assert.Equal(t, "await_details:-7", UserKey(KeyPrefixAwaitDetails, -7))
}
