package domain

import "time"

// StockItem 是一个库存跟踪的药品单元的远端快照。
// AvailableQuantity 是唯一会被多个并发提交修改的共享状态。
type StockItem struct {
	ID                int64
	AvailableQuantity int
	Unit              string
}

// TransactionAction 标记台账条目的动作类型。
type TransactionAction string

const (
	ActionDeduct  TransactionAction = "DEDUCT"
	ActionReverse TransactionAction = "REVERSE"
)

// StockDivergence 描述一次数量与台账的失配: 自动回退没能让两笔写
// 成对生效，余量和台账之和已经对不上，需要人工核账。
type StockDivergence struct {
	StockItemID      int64     `json:"stockItemId"`
	ExpectedQuantity int       `json:"expectedQuantity"`
	Detail           string    `json:"detail"`
	At               time.Time `json:"at"`
}

// StockTransaction 是台账中一条只追加的数量变更记录。
// 永不更新、永不删除；纠错只能追加反号的冲正条目。
type StockTransaction struct {
	ID          int64
	StockItemID int64
	Delta       int
	Action      TransactionAction
	Actor       string
	Reason      string
	Reversed    bool
	CreatedAt   time.Time
}
