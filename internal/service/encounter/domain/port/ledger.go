package port

import "context"

// InventoryLedger 是库存台账服务的契约，由 inventory 服务实现。
type InventoryLedger interface {
	// GetAvailable 是咨询性读数，权威检查在 Deduct 内部。
	GetAvailable(ctx context.Context, stockItemID int64) (int, error)
	// Deduct 扣减库存并追加台账记录，返回台账 id。
	Deduct(ctx context.Context, stockItemID int64, quantity int, actor, reason string) (int64, error)
	// Reverse 幂等地冲正一次扣减。applied 为 false 表示之前已冲正过。
	Reverse(ctx context.Context, transactionID int64, actor string) (applied bool, err error)
}
