package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"lingap/internal/pkg/mq"
	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// ReviewKafkaAdapter 把人工审核事件发布到审核队列主题。
// 消息 key 用提交 id，同一提交的事件落在同一分区保序。
type ReviewKafkaAdapter struct {
	writer *kafka.Writer
}

func NewReviewKafkaAdapter(writer *kafka.Writer) *ReviewKafkaAdapter {
	return &ReviewKafkaAdapter{writer: writer}
}

func (a *ReviewKafkaAdapter) NotifyReviewRequired(ctx context.Context, event *domain.ReviewRequired) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.SubmissionID), payload); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}
	return nil
}

var _ port.ReviewNotifier = (*ReviewKafkaAdapter)(nil)
