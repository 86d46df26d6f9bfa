package saga

import (
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// PatientRecordHandler 创建 "Child Health Record" 类型的就诊记录容器，是整条链的根。
type PatientRecordHandler struct {
	NextHandler
}

func (h *PatientRecordHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreatePatientRecord")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 1: 创建就诊记录容器...")

	id, err := cc.Clinical.CreatePatientRecord(ctx, cc.Input.PatientID, domain.RecordTypeChildHealth)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patient record creation failed")
		return &domain.StepFailed{Step: domain.StepPatientRecord, Cause: err}
	}

	cc.Chain.PatientRecordID = id
	cc.recordCreated(ctx, domain.StepPatientRecord, domain.KindPatientRecord, id)
	span.AddEvent("Patient record created")

	return h.executeNext(cc)
}
