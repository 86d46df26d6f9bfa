package saga

import (
	"go.opentelemetry.io/otel/codes"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/domain"
)

// EncounterNoteHandler 创建就诊笔记。FollowUpID 为 0 时协作方收到 null 引用。
type EncounterNoteHandler struct {
	NextHandler
}

func (h *EncounterNoteHandler) Handle(cc *ChainContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "saga.CreateEncounterNote")
	defer span.End()

	logger.Ctx(ctx).Info().Msg("【Saga】=> 步骤 5: 创建就诊笔记...")

	id, err := cc.Clinical.CreateNote(ctx, cc.Input.NoteText, cc.Input.StaffID, cc.Chain.FollowUpID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "note creation failed")
		return &domain.StepFailed{Step: domain.StepEncounterNote, Cause: err}
	}

	cc.Chain.NoteID = id
	cc.recordCreated(ctx, domain.StepEncounterNote, domain.KindEncounterNote, id)

	return h.executeNext(cc)
}
