package port

import (
	"context"

	"lingap/internal/service/inventory/domain"
)

// DivergenceAlerter 在台账服务自身无法把数量与台账恢复成对时，
// 把失配事实推到运营审核队列，而不是只留一行错误日志。
type DivergenceAlerter interface {
	AlertStockDivergence(ctx context.Context, d *domain.StockDivergence) error
}
