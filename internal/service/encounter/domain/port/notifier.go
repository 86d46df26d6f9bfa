package port

import (
	"context"

	"lingap/internal/service/encounter/domain"
)

// ReviewNotifier 把需要人工介入的提交发布到运维审核队列。
type ReviewNotifier interface {
	NotifyReviewRequired(ctx context.Context, event *domain.ReviewRequired) error
}
