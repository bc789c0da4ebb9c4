package repository

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/realty-crm-bot/internal/common/cache"
	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
)

// PendingAction 用户在子菜单中选择、等待补充内容的操作
type PendingAction struct {
	Group  string
	Action string
}

// DialogStateRepository 对话状态，键 await_details:{user_id}，值 "group|action"
type DialogStateRepository struct {
	rdb *redis.Client
}

// NewDialogStateRepository 创建对话状态仓储
func NewDialogStateRepository(rdb *redis.Client) *DialogStateRepository {
	return &DialogStateRepository{rdb: rdb}
}

// SetAwaiting 记录等待补充内容的操作
func (r *DialogStateRepository) SetAwaiting(ctx context.Context, userID int64, action PendingAction, ttl time.Duration) error {
	key := cache.UserKey(cache.KeyPrefixAwaitDetails, userID)
	if err := r.rdb.Set(ctx, key, action.Group+"|"+action.Action, ttl).Err(); err != nil {
		return errors.ErrStoreUnavailable.WithError(err)
	}
	return nil
}

// TakeAwaiting 取出并清除等待中的操作
func (r *DialogStateRepository) TakeAwaiting(ctx context.Context, userID int64) (*PendingAction, error) {
	key := cache.UserKey(cache.KeyPrefixAwaitDetails, userID)
	val, err := r.rdb.GetDel(ctx, key).Result()
	if cache.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrStoreUnavailable.WithError(err)
	}

	group, action, ok := strings.Cut(val, "|")
	if !ok {
		return nil, nil
	}
	return &PendingAction{Group: group, Action: action}, nil
}
