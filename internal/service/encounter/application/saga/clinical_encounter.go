package saga

import (
	"errors"

	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// ClinicalEncounterHandler 创建就诊实体本身，引用上一步的记录容器。
type ClinicalEncounterHandler struct {
	NextHandler
}

func (h *ClinicalEncounterHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateClinicalEncounter")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 2: 创建就诊实体...")

	if cc.Chain.PatientRecordID == 0 {
		err := errors.New("missing patient record id from previous step")
		span.RecordError(err)
		return &domain.StepFailed{Step: domain.StepClinicalEncounter, Cause: err}
	}

	id, err := cc.Clinical.CreateEncounter(ctx, &port.EncounterCreate{
		PatientRecordID: cc.Chain.PatientRecordID,
		StaffID:         cc.Input.StaffID,
		EncounterDate:   cc.Input.EncounterDate,
		DeliveryInfo:    cc.Input.DeliveryInfo,
		Occupation:      cc.Input.Occupation,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encounter creation failed")
		return &domain.StepFailed{Step: domain.StepClinicalEncounter, Cause: err}
	}

	cc.Chain.EncounterID = id
	cc.recordCreated(ctx, domain.StepClinicalEncounter, domain.KindClinicalEncounter, id)

	return h.executeNext(cc)
}
