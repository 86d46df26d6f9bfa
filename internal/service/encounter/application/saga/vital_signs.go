package saga

import (
	"errors"

	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// VitalSignsHandler 创建生命体征观察，把测量、历史、笔记三个引用钉在一起。
type VitalSignsHandler struct {
	NextHandler
}

func (h *VitalSignsHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateVitalSigns")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 7: 创建生命体征观察...")

	if cc.Chain.MeasurementID == 0 || cc.Chain.HistoryID == 0 || cc.Chain.NoteID == 0 {
		err := errors.New("missing measurement, history or note id from previous steps")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepVitalSigns, Cause: err}
	}

	id, err := cc.Clinical.CreateVitals(ctx, cc.Input.TemperatureC, cc.Chain.MeasurementID, cc.Chain.HistoryID, cc.Chain.NoteID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vital signs creation failed")
		return &domain.StepFailed{Step: domain.StepVitalSigns, Cause: err}
	}

	cc.Chain.VitalsID = id
	cc.recordCreated(ctx, domain.StepVitalSigns, domain.KindVitalSigns, id)

	return h.executeNext(cc)
}
