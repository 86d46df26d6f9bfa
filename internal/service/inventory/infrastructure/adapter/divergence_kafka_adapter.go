package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"lingap/internal/pkg/mq"
	"lingap/internal/service/inventory/domain"
	"lingap/internal/service/inventory/domain/port"
)

// DivergenceKafkaAdapter 把库存失配告警发布到审核队列主题，
// 和部分回滚的人工审核事件走同一条通道。消息 key 用库存单元 id。
type DivergenceKafkaAdapter struct {
	writer *kafka.Writer
}

func NewDivergenceKafkaAdapter(writer *kafka.Writer) *DivergenceKafkaAdapter {
	return &DivergenceKafkaAdapter{writer: writer}
}

func (a *DivergenceKafkaAdapter) AlertStockDivergence(ctx context.Context, d *domain.StockDivergence) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal divergence alert: %w", err)
	}
	key := []byte(strconv.FormatInt(d.StockItemID, 10))
	if err := mq.ProduceMessage(ctx, a.writer, key, payload); err != nil {
		return fmt.Errorf("publish divergence alert: %w", err)
	}
	return nil
}

var _ port.DivergenceAlerter = (*DivergenceKafkaAdapter)(nil)
