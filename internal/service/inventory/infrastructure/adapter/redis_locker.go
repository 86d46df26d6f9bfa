package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lingap/internal/pkg/logger"
	redispkg "lingap/internal/pkg/redis"
)

const unlockScriptName = "unlock_stock_item"

// 只有持有令牌的一方才能释放锁，防止超时后误删别人的锁。
var unlockScript = `
-- KEYS[1]: 锁的 Key, 例如: inventory:lock:{item-42}
-- ARGV[1]: 加锁时生成的令牌
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// RedisItemLocker 基于 SETNX + 令牌化释放的分布式库存锁。
type RedisItemLocker struct {
	client        *redispkg.Client
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisItemLocker 创建 redis 锁实现，初始化时加载释放脚本。
func NewRedisItemLocker(client *redispkg.Client, ttl time.Duration) (*RedisItemLocker, error) {
	if err := client.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load unlock script: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisItemLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 20 * time.Millisecond,
	}, nil
}

func lockKey(itemID int64) string {
	return fmt.Sprintf("inventory:lock:{item-%d}", itemID)
}

func (l *RedisItemLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	key := lockKey(itemID)
	token := uuid.New().String()

	for {
		ok, err := l.client.GetClient().SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx on %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for stock lock on item %d: %w", itemID, ctx.Err())
		case <-time.After(l.retryInterval):
		}
	}

	unlock := func() {
		// 释放锁不使用调用方 context，补偿路径的锁也必须能释放
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := l.client.RunScript(releaseCtx, unlockScriptName, []string{key}, token); err != nil {
			logger.L().Warn().Str("key", key).Err(err).Msg("failed to release stock lock, it will expire by TTL")
		}
	}
	return unlock, nil
}
