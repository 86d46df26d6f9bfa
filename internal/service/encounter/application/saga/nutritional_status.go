package saga

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// NutritionalStatusHandler 落盘派生的营养分类。
// 分类在提交前已由计算器算好并通过了水肿条件校验，这里只负责持久化。
type NutritionalStatusHandler struct {
	NextHandler
}

func (h *NutritionalStatusHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateNutritionalStatus")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 8: 记录营养状态分类...")

	if cc.Chain.VitalsID == 0 {
		err := errors.New("missing vitals id from previous step")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepNutritionalStatus, Cause: err}
	}
	if cc.Nutrition == nil {
		err := errors.New("missing nutrition classification result")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepNutritionalStatus, Cause: err}
	}

	span.SetAttributes(attribute.String("nutrition.weight_for_height", cc.Nutrition.WeightForHeight))

	id, err := cc.Clinical.CreateNutritionalStatus(ctx, &port.NutritionalStatusCreate{
		VitalsID:        cc.Chain.VitalsID,
		WeightForAge:    cc.Nutrition.WeightForAge,
		HeightForAge:    cc.Nutrition.HeightForAge,
		WeightForHeight: cc.Nutrition.WeightForHeight,
		MUACCm:          cc.Input.MUACCm,
		EdemaSeverity:   cc.Input.EdemaSeverity,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nutritional status creation failed")
		return &domain.StepFailed{Step: domain.StepNutritionalStatus, Cause: err}
	}

	cc.Chain.NutritionalStatusID = id
	cc.recordCreated(ctx, domain.StepNutritionalStatus, domain.KindNutritionalStatus, id)

	return h.executeNext(cc)
}
