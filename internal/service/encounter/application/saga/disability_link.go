package saga

import (
	"errors"

	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// DisabilityLinkHandler 把已登记的残障记录挂到本次就诊的记录容器上。
// 未填写时整步跳过。
type DisabilityLinkHandler struct {
	NextHandler
}

func (h *DisabilityLinkHandler) Handle(cc *ChainContext) error {
	if len(cc.Input.DisabilityIDs) == 0 {
		return h.executeNext(cc)
	}

	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateDisabilityLinks")
	defer span.End()

	logger.Ctx(ctx).Info().
		Int("links", len(cc.Input.DisabilityIDs)).
		Msg("【Saga】=> 步骤 10: 关联残障记录...")

	if cc.Chain.PatientRecordID == 0 {
		err := errors.New("missing patient record id from previous step")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepDisabilityLink, Cause: err}
	}

	for _, disabilityID := range cc.Input.DisabilityIDs {
		id, err := cc.Clinical.CreateDisabilityLink(ctx, cc.Chain.PatientRecordID, disabilityID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "disability link creation failed")
			return &domain.StepFailed{Step: domain.StepDisabilityLink, Cause: err}
		}
		cc.Chain.DisabilityLinkIDs = append(cc.Chain.DisabilityLinkIDs, id)
		cc.recordCreated(ctx, domain.StepDisabilityLink, domain.KindDisabilityLink, id)
	}

	return h.executeNext(cc)
}
