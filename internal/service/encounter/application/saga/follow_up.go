package saga

import (
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// FollowUpHandler 创建可选的复诊安排。未申请复诊时整步跳过，
// 后面的笔记步骤仍会执行(笔记可以不关联复诊)。
type FollowUpHandler struct {
	NextHandler
}

func (h *FollowUpHandler) Handle(cc *ChainContext) error {
	if cc.Input.FollowUp == nil {
		return h.executeNext(cc)
	}

	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateFollowUpVisit")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 4: 创建复诊安排...")

	id, err := cc.Clinical.CreateFollowUp(ctx, cc.Chain.PatientRecordID, cc.Input.FollowUp.Date, cc.Input.FollowUp.Description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "follow-up creation failed")
		return &domain.StepFailed{Step: domain.StepFollowUpVisit, Cause: err}
	}

	cc.Chain.FollowUpID = id
	cc.recordCreated(ctx, domain.StepFollowUpVisit, domain.KindFollowUpVisit, id)

	return h.executeNext(cc)
}
