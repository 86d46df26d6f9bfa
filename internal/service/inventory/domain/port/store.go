package port

import (
	"context"

	"lingap/internal/service/inventory/domain"
)

// StockStore 是库存与台账协作方的出站端口。
// UpdateQuantity 与 AppendTransaction 必须在同一把单元锁内成对调用，
// 这是台账服务对外承诺的最小原子单元。
type StockStore interface {
	// GetItem 读取当前库存快照。
	GetItem(ctx context.Context, itemID int64) (*domain.StockItem, error)
	// UpdateQuantity 覆写可用数量，同时由协作方刷新库存记录的最后修改时间。
	UpdateQuantity(ctx context.Context, itemID int64, quantity int) error
	// AppendTransaction 追加一条台账记录，返回其 id。
	AppendTransaction(ctx context.Context, tx *domain.StockTransaction) (int64, error)
	// GetTransaction 读取一条台账记录。
	GetTransaction(ctx context.Context, txID int64) (*domain.StockTransaction, error)
	// MarkReversed 给原始台账记录打上已冲正标记。
	MarkReversed(ctx context.Context, txID int64) error
}
