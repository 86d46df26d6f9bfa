package port

import "context"

// ItemLocker 将针对同一库存单元的读改写串行化。
// 两个并发扣减绝不允许都基于同一份过期读数通过充足性检查。
type ItemLocker interface {
	// Lock 阻塞直到拿到 itemID 对应的锁，返回解锁函数。
	Lock(ctx context.Context, itemID int64) (func(), error)
}
