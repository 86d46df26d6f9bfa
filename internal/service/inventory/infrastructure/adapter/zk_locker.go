package adapter

import (
	"context"
	"fmt"
	"time"

	"lingap/internal/pkg/logger"
	"lingap/internal/pkg/zookeeper"
)

// ZkItemLocker 用 ZooKeeper 临时顺序节点实现库存锁。
// 与 Redis 实现等价，给已经运维 ZooKeeper 的部署一个不引入新组件的选项。
type ZkItemLocker struct {
	conn        *zookeeper.Conn
	waitTimeout time.Duration
}

// NewZkItemLocker 创建 ZooKeeper 锁实现。
func NewZkItemLocker(conn *zookeeper.Conn, waitTimeout time.Duration) *ZkItemLocker {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &ZkItemLocker{conn: conn, waitTimeout: waitTimeout}
}

func (l *ZkItemLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, fmt.Sprintf("stock-item-%d", itemID))
	if err != nil {
		return nil, err
	}

	wait := l.waitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	if err := lock.Lock(wait); err != nil {
		return nil, fmt.Errorf("zookeeper lock for item %d: %w", itemID, err)
	}

	unlock := func() {
		if err := lock.Unlock(); err != nil {
			logger.L().Warn().Int64("item_id", itemID).Err(err).Msg("failed to release zookeeper stock lock")
		}
	}
	return unlock, nil
}
