package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/realty-crm-bot/internal/common/cache"
	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
)

// PendingReportRepository 待确认的收工报告，键 pending_finish:{agent_id}
type PendingReportRepository struct {
	rdb *redis.Client
}

// NewPendingReportRepository 创建待确认报告仓储
func NewPendingReportRepository(rdb *redis.Client) *PendingReportRepository {
	return &PendingReportRepository{rdb: rdb}
}

// Save 保存报告文本并设置有效期，覆盖旧值并重置有效期
func (r *PendingReportRepository) Save(ctx context.Context, agentID int64, text string, ttl time.Duration) error {
	key := cache.UserKey(cache.KeyPrefixPendingFinish, agentID)
	if err := r.rdb.Set(ctx, key, text, ttl).Err(); err != nil {
		return errors.ErrStoreUnavailable.WithError(err)
	}
	return nil
}

// Get 读取报告文本，不存在时 ok 为 false
func (r *PendingReportRepository) Get(ctx context.Context, agentID int64) (string, bool, error) {
	key := cache.UserKey(cache.KeyPrefixPendingFinish, agentID)
	text, err := r.rdb.Get(ctx, key).Result()
	if cache.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.ErrStoreUnavailable.WithError(err)
	}
	return text, true, nil
}

// Take 原子地读取并删除报告文本（GETDEL），同一值只会被取到一次
func (r *PendingReportRepository) Take(ctx context.Context, agentID int64) (string, bool, error) {
	key := cache.UserKey(cache.KeyPrefixPendingFinish, agentID)
	text, err := r.rdb.GetDel(ctx, key).Result()
	if cache.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.ErrStoreUnavailable.WithError(err)
	}
	return text, true, nil
}

// Delete 删除报告，不存在时不报错
func (r *PendingReportRepository) Delete(ctx context.Context, agentID int64) error {
	key := cache.UserKey(cache.KeyPrefixPendingFinish, agentID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return errors.ErrStoreUnavailable.WithError(err)
	}
	return nil
}

// TTL 剩余有效期
func (r *PendingReportRepository) TTL(ctx context.Context, agentID int64) (time.Duration, error) {
	key := cache.UserKey(cache.KeyPrefixPendingFinish, agentID)
	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, errors.ErrStoreUnavailable.WithError(err)
	}
	return ttl, nil
}
