package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// BodyMeasurementHandler 记录体重/身高/月龄快照。
type BodyMeasurementHandler struct {
	NextHandler
}

func (h *BodyMeasurementHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateBodyMeasurement")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 6: 创建体格测量快照...")

	span.SetAttributes(
		attribute.Float64("measurement.weight_kg", cc.Input.WeightKg),
		attribute.Float64("measurement.height_cm", cc.Input.HeightCm),
		attribute.Int("measurement.age_months", cc.Input.AgeMonths),
	)

	id, err := cc.Clinical.CreateMeasurement(ctx, cc.Chain.PatientRecordID, cc.Input.WeightKg, cc.Input.HeightCm, cc.Input.AgeMonths)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "measurement creation failed")
		return &domain.StepFailed{Step: domain.StepBodyMeasurement, Cause: err}
	}

	cc.Chain.MeasurementID = id
	cc.recordCreated(ctx, domain.StepBodyMeasurement, domain.KindBodyMeasurement, id)

	return h.executeNext(cc)
}
