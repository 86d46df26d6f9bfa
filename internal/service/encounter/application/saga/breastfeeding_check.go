package saga

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// BreastfeedingCheckHandler 追加可选的母乳喂养检查记录，每条输入一行。
// 未填写时整步跳过。
type BreastfeedingCheckHandler struct {
	NextHandler
}

func (h *BreastfeedingCheckHandler) Handle(cc *ChainContext) error {
	if len(cc.Input.BreastfeedingChecks) == 0 {
		return h.executeNext(cc)
	}

	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateBreastfeedingChecks")
	defer span.End()

	logger.Ctx(ctx).Info().
		Int("rows", len(cc.Input.BreastfeedingChecks)).
		Msg("【Saga】=> 步骤 9: 追加母乳喂养检查记录...")

	if cc.Chain.EncounterID == 0 {
		err := errors.New("missing encounter id from previous step")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepBreastfeedingCheck, Cause: err}
	}
	span.SetAttributes(attribute.Int("breastfeeding.rows", len(cc.Input.BreastfeedingChecks)))

	for _, check := range cc.Input.BreastfeedingChecks {
		id, err := cc.Clinical.CreateBreastfeedingCheck(ctx, cc.Chain.EncounterID, check.AgeRange, check.Status)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "breastfeeding check creation failed")
			return &domain.StepFailed{Step: domain.StepBreastfeedingCheck, Cause: err}
		}
		cc.Chain.BreastfeedingCheckIDs = append(cc.Chain.BreastfeedingCheckIDs, id)
		cc.recordCreated(ctx, domain.StepBreastfeedingCheck, domain.KindBreastfeedingCheck, id)
	}

	return h.executeNext(cc)
}
