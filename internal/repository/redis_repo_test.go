// Package repository Redis 仓储单元测试
package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
)

// setupRedis 启动 miniredis 并返回客户端
func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestPendingReportRepository_SaveAndGet(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewPendingReportRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, "report", time.Hour))

	text, ok, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "report", text)

	// 键名与有效期
	assert.True(t, s.Exists("pending_finish:42"))
	assert.Equal(t, time.Hour, s.TTL("pending_finish:42"))

	ttl, err := repo.TTL(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)
}

func TestPendingReportRepository_Overwrite(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewPendingReportRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 1, "first", time.Hour))
	s.FastForward(30 * time.Minute)
	require.NoError(t, repo.Save(ctx, 1, "second", time.Hour))

	text, ok, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", text)
	// 覆盖后有效期重新计算
	assert.Equal(t, time.Hour, s.TTL("pending_finish:1"))
}

func TestPendingReportRepository_TakeOnce(t *testing.T) {
	_, client := setupRedis(t)
	repo := NewPendingReportRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 7, "report", time.Hour))

	text, ok, err := repo.Take(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "report", text)

	_, ok, err = repo.Take(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingReportRepository_Expired(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewPendingReportRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 7, "report", time.Hour))
	s.FastForward(time.Hour + time.Second)

	_, ok, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingReportRepository_Delete(t *testing.T) {
	_, client := setupRedis(t)
	repo := NewPendingReportRepository(client)
	ctx := context.Background()

	// 不存在时也不报错
	require.NoError(t, repo.Delete(ctx, 9))

	require.NoError(t, repo.Save(ctx, 9, "x", time.Hour))
	require.NoError(t, repo.Delete(ctx, 9))
	_, ok, err := repo.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingReportRepository_StoreUnavailable(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewPendingReportRepository(client)
	s.Close()

	err := repo.Save(context.Background(), 1, "x", time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))

	_, _, err = repo.Take(context.Background(), 1)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
}

func TestDialogStateRepository(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewDialogStateRepository(client)
	ctx := context.Background()

	t.Run("记录并取出", func(t *testing.T) {
		err := repo.SetAwaiting(ctx, 5, PendingAction{Group: "Задачи", Action: "Добавить задачу"}, 10*time.Minute)
		require.NoError(t, err)

		val, err := s.Get("await_details:5")
		require.NoError(t, err)
		assert.Equal(t, "Задачи|Добавить задачу", val)

		action, err := repo.TakeAwaiting(ctx, 5)
		require.NoError(t, err)
		require.NotNil(t, action)
		assert.Equal(t, "Задачи", action.Group)
		assert.Equal(t, "Добавить задачу", action.Action)

		action, err = repo.TakeAwaiting(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, action)
	})

	t.Run("过期后不存在", func(t *testing.T) {
		require.NoError(t, repo.SetAwaiting(ctx, 6, PendingAction{Group: "Отчетность", Action: "Создать отчет"}, 10*time.Minute))
		s.FastForward(11 * time.Minute)

		action, err := repo.TakeAwaiting(ctx, 6)
		require.NoError(t, err)
		assert.Nil(t, action)
	})

	t.Run("格式错误的值被忽略", func(t *testing.T) {
		require.NoError(t, s.Set("await_details:8", "garbage"))
		action, err := repo.TakeAwaiting(ctx, 8)
		require.NoError(t, err)
		assert.Nil(t, action)
	})
}

func TestMemoryRepository(t *testing.T) {
	s, client := setupRedis(t)
	repo := NewMemoryRepository(client, 3, 24*time.Hour)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Append(ctx, 11, DialogEntry{Role: "Сотрудник", Text: text, Meta: map[string]string{"source": "text"}}))
	}

	entries, err := repo.Recent(ctx, 11, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "b", entries[0].Text)
	assert.Equal(t, "d", entries[2].Text)
	assert.Equal(t, "text", entries[2].Meta["source"])
	assert.False(t, entries[2].At.IsZero())

	assert.Equal(t, 24*time.Hour, s.TTL("memory:dialog:11"))

	last, err := repo.Recent(ctx, 11, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "d", last[0].Text)

	none, err := repo.Recent(ctx, 11, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
