package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/realty-crm-bot/internal/common/cache"
	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
)

// DialogEntry 对话记忆条目
type DialogEntry struct {
	Role string            `json:"role"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
	At   time.Time         `json:"at"`
}

// MemoryRepository 对话记忆，每个用户一个 Redis 列表，保留最近 maxEntries 条
type MemoryRepository struct {
	rdb        *redis.Client
	maxEntries int
	ttl        time.Duration
}

// NewMemoryRepository 创建对话记忆仓储
func NewMemoryRepository(rdb *redis.Client, maxEntries int, ttl time.Duration) *MemoryRepository {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &MemoryRepository{rdb: rdb, maxEntries: maxEntries, ttl: ttl}
}

func memoryKey(userID int64) string {
	return cache.BuildKey(cache.KeyPrefixMemory, strconv.FormatInt(userID, 10))
}

// Append 追加一条记忆并裁剪到上限
func (r *MemoryRepository) Append(ctx context.Context, userID int64, entry DialogEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := memoryKey(userID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-r.maxEntries), -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.ErrStoreUnavailable.WithError(err)
	}
	return nil
}

// Recent 按时间顺序返回最近 n 条记忆
func (r *MemoryRepository) Recent(ctx context.Context, userID int64, n int) ([]DialogEntry, error) {
	if n <= 0 {
		return []DialogEntry{}, nil
	}
	vals, err := r.rdb.LRange(ctx, memoryKey(userID), int64(-n), -1).Result()
	if err != nil {
		return nil, errors.ErrStoreUnavailable.WithError(err)
	}

	entries := make([]DialogEntry, 0, len(vals))
	for _, v := range vals {
		var e DialogEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
