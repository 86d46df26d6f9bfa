package adapter

import (
	"context"
	"sync"
)

// LocalItemLocker 用进程内互斥锁串行化同一库存单元的扣减。
// 只适用于单实例部署与测试；多实例要换 Redis 或 ZooKeeper 实现。
type LocalItemLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLocalItemLocker 创建进程内锁。
func NewLocalItemLocker() *LocalItemLocker {
	return &LocalItemLocker{locks: make(map[int64]*sync.Mutex)}
}

func (l *LocalItemLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[itemID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[itemID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
