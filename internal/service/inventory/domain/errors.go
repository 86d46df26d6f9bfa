package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound 表示库存单元不存在。
	ErrItemNotFound = errors.New("stock item not found")
	// ErrTransactionNotFound 表示台账条目不存在。
	ErrTransactionNotFound = errors.New("stock transaction not found")
)

// InsufficientStockError 表示请求的扣减数量超过当前可用库存。
// 扣减被整体拒绝，库存与台账都不会被改动。
type InsufficientStockError struct {
	StockItemID int64
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: requested %d, available %d",
		e.StockItemID, e.Requested, e.Available)
}
