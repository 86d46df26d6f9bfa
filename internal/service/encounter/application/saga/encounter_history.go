package saga

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// EncounterHistoryHandler 创建就诊的状态快照(recorded/check-up/immunization)。
// 历史只追加新行，永不原地更新。
type EncounterHistoryHandler struct {
	NextHandler
}

func (h *EncounterHistoryHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateEncounterHistory")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 3: 创建就诊历史快照...")

	if cc.Chain.EncounterID == 0 {
		err := errors.New("missing encounter id from previous step")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepEncounterHistory, Cause: err}
	}
	if cc.Input.Status == "" {
		err := errors.New("missing encounter status")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepEncounterHistory, Cause: err}
	}

	span.SetAttributes(attribute.String("encounter.status", cc.Input.Status))

	id, err := cc.Clinical.CreateHistory(ctx, cc.Chain.EncounterID, cc.Input.Status, cc.Input.TetanusToxoidStatus)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history creation failed")
		return &domain.StepFailed{Step: domain.StepEncounterHistory, Cause: err}
	}

	cc.Chain.HistoryID = id
	cc.recordCreated(ctx, domain.StepEncounterHistory, domain.KindEncounterHistory, id)

	return h.executeNext(cc)
}
