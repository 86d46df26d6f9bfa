package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/application/saga"
	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
	invdomain "lingap/internal/service/inventory/domain"
)

// EncounterApplicationService 编排一次就诊提交的全过程:
// 预校验 → 临床链创建 → 发药 → 提交，任一阶段失败则补偿回滚。
type EncounterApplicationService struct {
	repo       domain.SubmissionRepository
	clinical   port.ClinicalRecordService
	ledger     port.InventoryLedger
	calculator port.NutritionCalculator
	rules      domain.RuleEngine
	notifier   port.ReviewNotifier
	tracer     trace.Tracer

	compensator *Compensator

	processingTimeout time.Duration
	dispenseWorkers   int
	edemaRule         string
}

type ServiceOptions struct {
	Repo       domain.SubmissionRepository
	Clinical   port.ClinicalRecordService
	Ledger     port.InventoryLedger
	Calculator port.NutritionCalculator
	Rules      domain.RuleEngine
	Notifier   port.ReviewNotifier
	Tracer     trace.Tracer

	ProcessingTimeout time.Duration
	DispenseWorkers   int
	EdemaRule         string
}

func NewEncounterApplicationService(opts ServiceOptions) *EncounterApplicationService {
	if opts.DispenseWorkers < 1 {
		opts.DispenseWorkers = 1
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 30 * time.Second
	}
	return &EncounterApplicationService{
		repo:              opts.Repo,
		clinical:          opts.Clinical,
		ledger:            opts.Ledger,
		calculator:        opts.Calculator,
		rules:             opts.Rules,
		notifier:          opts.Notifier,
		tracer:            opts.Tracer,
		compensator:       NewCompensator(opts.Tracer),
		processingTimeout: opts.ProcessingTimeout,
		dispenseWorkers:   opts.DispenseWorkers,
		edemaRule:         opts.EdemaRule,
	}
}

// SubmitEncounter 处理一次提交并跑到终态。返回的 error 只在校验失败
// 或内部错误时非空；业务上的失败(已回滚)通过 Outcome 表达。
func (s *EncounterApplicationService) SubmitEncounter(ctx context.Context, req *SubmitEncounterRequest) (*SubmitEncounterResponse, error) {
	ctx, span := s.tracer.Start(ctx, "encounter.Submit")
	defer span.End()

	input := req.ToInput()
	span.SetAttributes(
		attribute.Int64("encounter.patient_id", input.PatientID),
		attribute.Int("encounter.medicine_lines", len(input.Medicines)),
	)

	// 阶段 0: 纯本地校验 + 派生分类 + 条件规则，全部通过前零副作用
	if err := s.preflight(ctx, input); err != nil {
		span.RecordError(err)
		return nil, err
	}
	nutrition, err := s.calculator.Classify(ctx, input.WeightKg, input.HeightCm, input.AgeMonths)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("nutrition classification: %w", err)
	}
	if err := s.checkEdemaRule(input, nutrition); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sub, err := domain.NewSubmission(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}
	span.SetAttributes(attribute.String("encounter.submission_id", sub.ID))
	logger.Ctx(ctx).Info().
		Str("submission_id", sub.ID).
		Int64("patient_id", input.PatientID).
		Msg("【Saga】开始处理就诊提交")

	// 整个编排有统一的处理时限，超时也走补偿
	procCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	cc := &saga.ChainContext{
		Ctx:       procCtx,
		Tracer:    s.tracer,
		Input:     input,
		Nutrition: nutrition,
		Chain:     &domain.ClinicalChain{},
		Actor:     fmt.Sprintf("staff:%d", input.StaffID),
		Clinical:  s.clinical,
		Ledger:    s.ledger,
		Steps:     &stepLogRecorder{repo: s.repo, submissionID: sub.ID},
	}

	if err := s.process(procCtx, sub, cc); err != nil {
		return s.failAndCompensate(ctx, sub, cc, err)
	}

	submissionsTotal.WithLabelValues(string(domain.OutcomeCommitted)).Inc()
	logger.Ctx(ctx).Info().
		Str("submission_id", sub.ID).
		Msg("【Saga】就诊提交全部完成")
	return &SubmitEncounterResponse{
		SubmissionID: sub.ID,
		Outcome:      string(domain.OutcomeCommitted),
		Chain:        chainDTO(cc.Chain),
	}, nil
}

// preflight 做提交前的本地校验和库存咨询性预检。
// 预检读数只用于提前拒绝明显不可能成功的请求，权威检查仍在扣减内部。
func (s *EncounterApplicationService) preflight(ctx context.Context, input *domain.EncounterInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	for i, line := range input.Medicines {
		available, err := s.ledger.GetAvailable(ctx, line.StockItemID)
		if err != nil {
			return fmt.Errorf("stock pre-check for item %d: %w", line.StockItemID, err)
		}
		if available < line.Quantity {
			return &domain.ValidationError{
				Field:  "medicines",
				Reason: fmt.Sprintf("stock item %d has %d available, requested %d", line.StockItemID, available, line.Quantity),
				Index:  i,
			}
		}
	}
	return nil
}

func (s *EncounterApplicationService) checkEdemaRule(input *domain.EncounterInput, nutrition *domain.NutritionResult) error {
	ok, err := s.rules.Evaluate(s.edemaRule, domain.Fact{
		WeightForAge:    nutrition.WeightForAge,
		HeightForAge:    nutrition.HeightForAge,
		WeightForHeight: nutrition.WeightForHeight,
		EdemaSeverity:   input.EdemaSeverity,
		MUACCm:          input.MUACCm,
	})
	if err != nil {
		return fmt.Errorf("evaluate clinical rule: %w", err)
	}
	if !ok {
		return &domain.ValidationError{
			Field:  "edemaSeverity",
			Reason: "required for this nutritional classification",
		}
	}
	return nil
}

// process 跑完链创建和发药两个阶段。返回 error 表示需要补偿。
func (s *EncounterApplicationService) process(ctx context.Context, sub *domain.Submission, cc *saga.ChainContext) error {
	if err := sub.BeginChainBuilding(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	if err := s.buildChain().Handle(cc); err != nil {
		return err
	}

	// 链创建完成后、触碰库存之前是最后一个取消点。
	// 一旦进入发药阶段就必须跑到终态，不再响应取消。
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before dispensing: %w", err)
	}

	if len(cc.Input.Medicines) > 0 {
		if err := sub.BeginDispensing(); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, sub); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
		if err := s.dispense(ctx, cc); err != nil {
			return err
		}
	}

	if err := sub.MarkCommitted(); err != nil {
		return err
	}
	return s.repo.Save(ctx, sub)
}

// buildChain 按依赖顺序组装临床链，尾部两步可选。
func (s *EncounterApplicationService) buildChain() saga.Handler {
	head := &saga.PatientRecordHandler{}
	head.
		SetNext(&saga.ClinicalEncounterHandler{}).
		SetNext(&saga.EncounterHistoryHandler{}).
		SetNext(&saga.FollowUpHandler{}).
		SetNext(&saga.EncounterNoteHandler{}).
		SetNext(&saga.BodyMeasurementHandler{}).
		SetNext(&saga.VitalSignsHandler{}).
		SetNext(&saga.NutritionalStatusHandler{}).
		SetNext(&saga.BreastfeedingCheckHandler{}).
		SetNext(&saga.DisabilityLinkHandler{})
	return head
}

// dispense 执行发药阶段: 先建 "Medicine Request" 记录容器，
// 再对每条药品并发地走 扣库存 → 登记发药 → 挂补充剂链接。
func (s *EncounterApplicationService) dispense(ctx context.Context, cc *saga.ChainContext) error {
	ctx, span := s.tracer.Start(ctx, "saga.Dispense")
	defer span.End()

	logger.Ctx(ctx).Info().
		Int("lines", len(cc.Input.Medicines)).
		Msg("【Saga】=> 步骤 11: 开始发药...")

	recordID, err := cc.Clinical.CreatePatientRecord(ctx, cc.Input.PatientID, domain.RecordTypeMedicineRequest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "medicine record creation failed")
		return &domain.StepFailed{Step: domain.StepDispense, Cause: err}
	}
	cc.Chain.MedicineRecordID = recordID
	cc.Steps.Record(ctx, domain.StepDispense, domain.KindPatientRecord, recordID, 0)
	cc.AddDelete(saga.Compensation{
		Label: fmt.Sprintf("delete %s %d", domain.KindPatientRecord, recordID),
		Kind:  string(domain.KindPatientRecord),
		Ref:   fmt.Sprintf("%d", recordID),
		Run: func(compCtx context.Context) error {
			return cc.Clinical.Delete(compCtx, domain.KindPatientRecord, recordID)
		},
	})

	type lineResult struct {
		txID   int64
		dispID int64
		linkID int64
	}
	results := make([]lineResult, len(cc.Input.Medicines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.dispenseWorkers)
	for i, line := range cc.Input.Medicines {
		i, line := i, line
		g.Go(func() error {
			res, err := s.dispenseLine(gctx, cc, recordID, line)
			if err != nil {
				return err
			}
			results[i] = lineResult{txID: res.txID, dispID: res.dispID, linkID: res.linkID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispensing failed")
		return err
	}

	for _, r := range results {
		cc.Chain.TransactionIDs = append(cc.Chain.TransactionIDs, r.txID)
		cc.Chain.DispensationIDs = append(cc.Chain.DispensationIDs, r.dispID)
		cc.Chain.SupplementLinkIDs = append(cc.Chain.SupplementLinkIDs, r.linkID)
	}

	logger.Ctx(ctx).Info().
		Int("lines", len(results)).
		Msg("【Saga】发药全部完成")
	return nil
}

type dispensedLine struct {
	txID   int64
	dispID int64
	linkID int64
}

// dispenseLine 处理单条药品。每一步成功后立刻登记补偿，
// 所以即使同批其它行失败，已提交的部分也能被回滚。
func (s *EncounterApplicationService) dispenseLine(ctx context.Context, cc *saga.ChainContext, recordID int64, line domain.MedicineLine) (*dispensedLine, error) {
	ctx, span := s.tracer.Start(ctx, "saga.DispenseLine",
		trace.WithAttributes(
			attribute.Int64("stock.item_id", line.StockItemID),
			attribute.Int("stock.quantity", line.Quantity),
		))
	defer span.End()

	txID, err := cc.Ledger.Deduct(ctx, line.StockItemID, line.Quantity, cc.Actor, line.Reason)
	if err != nil {
		var insufficient *invdomain.InsufficientStockError
		if errors.As(err, &insufficient) {
			insufficientStockTotal.Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock deduction failed")
		return nil, &domain.StepFailed{Step: domain.StepDispense, Cause: err}
	}
	cc.Steps.Record(ctx, domain.StepDispense, "", 0, txID)
	cc.AddReversal(reversalCompensation(cc.Ledger, txID, cc.Actor))

	dispID, err := cc.Clinical.CreateDispensation(ctx, recordID, line.StockItemID, line.Quantity, line.Reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispensation creation failed")
		return nil, &domain.StepFailed{Step: domain.StepDispense, Cause: err}
	}
	cc.Steps.Record(ctx, domain.StepDispense, domain.KindDispensation, dispID, 0)
	cc.AddDelete(deleteCompensation(cc.Clinical, domain.KindDispensation, dispID))

	linkID, err := cc.Clinical.CreateSupplementLink(ctx, cc.Chain.HistoryID, dispID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "supplement link creation failed")
		return nil, &domain.StepFailed{Step: domain.StepDispense, Cause: err}
	}
	cc.Steps.Record(ctx, domain.StepDispense, domain.KindSupplementLink, linkID, 0)
	cc.AddDelete(deleteCompensation(cc.Clinical, domain.KindSupplementLink, linkID))

	return &dispensedLine{txID: txID, dispID: dispID, linkID: linkID}, nil
}

// reversalCompensation 把一次台账冲正包装成补偿动作。
// 冲正早已生效时 applied 为 false，映射成幂等跳过。
func reversalCompensation(ledger port.InventoryLedger, txID int64, actor string) saga.Compensation {
	return saga.Compensation{
		Label: fmt.Sprintf("reverse stock transaction %d", txID),
		Kind:  "stock_transaction",
		Ref:   fmt.Sprintf("%d", txID),
		Run: func(compCtx context.Context) error {
			applied, err := ledger.Reverse(compCtx, txID, actor)
			if err != nil {
				return err
			}
			if !applied {
				return domain.ErrAlreadyCompensated
			}
			return nil
		},
	}
}

func deleteCompensation(clinical port.ClinicalRecordService, kind domain.EntityKind, id int64) saga.Compensation {
	return saga.Compensation{
		Label: fmt.Sprintf("delete %s %d", kind, id),
		Kind:  string(kind),
		Ref:   fmt.Sprintf("%d", id),
		Run: func(compCtx context.Context) error {
			return clinical.Delete(compCtx, kind, id)
		},
	}
}

// failAndCompensate 回滚已提交的步骤并给提交记一个终局结果。
// 补偿在脱离调用方取消的上下文里执行，只保留 trace 关联。
func (s *EncounterApplicationService) failAndCompensate(ctx context.Context, sub *domain.Submission, cc *saga.ChainContext, cause error) (*SubmitEncounterResponse, error) {
	compCtx := trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx))

	logger.Ctx(compCtx).Warn().Err(cause).
		Str("submission_id", sub.ID).
		Msg("【Saga】提交失败，开始补偿回滚")

	if err := sub.BeginCompensating(); err != nil {
		logger.Ctx(compCtx).Error().Err(err).Str("submission_id", sub.ID).Msg("illegal state transition into compensating")
	}
	if err := s.repo.Save(compCtx, sub); err != nil {
		logger.Ctx(compCtx).Error().Err(err).Str("submission_id", sub.ID).Msg("failed to persist compensating state")
	}

	report := s.compensator.Run(compCtx, cc.Reversals(), cc.Deletes())

	outcome := domain.OutcomeFullyRolledBack
	var leftovers []domain.Leftover
	if report.HasFailures() {
		outcome = domain.OutcomePartiallyRolledBack
		leftovers = report.Leftovers()
		s.notifyReview(compCtx, sub, leftovers)
	}

	if err := sub.MarkFailed(outcome); err != nil {
		logger.Ctx(compCtx).Error().Err(err).Str("submission_id", sub.ID).Msg("illegal state transition into failed")
	}
	if err := s.repo.Save(compCtx, sub); err != nil {
		logger.Ctx(compCtx).Error().Err(err).Str("submission_id", sub.ID).Msg("failed to persist terminal state")
	}

	submissionsTotal.WithLabelValues(string(outcome)).Inc()
	logger.Ctx(compCtx).Warn().
		Str("submission_id", sub.ID).
		Str("outcome", string(outcome)).
		Int("leftovers", len(leftovers)).
		Msg("【Saga】补偿结束")

	return &SubmitEncounterResponse{
		SubmissionID: sub.ID,
		Outcome:      string(outcome),
		Leftovers:    leftovers,
		Error:        cause.Error(),
	}, nil
}

func (s *EncounterApplicationService) notifyReview(ctx context.Context, sub *domain.Submission, leftovers []domain.Leftover) {
	event := &domain.ReviewRequired{
		SubmissionID: sub.ID,
		PatientID:    sub.PatientID,
		Leftovers:    leftovers,
		TraceID:      trace.SpanContextFromContext(ctx).TraceID().String(),
		At:           time.Now(),
	}
	if err := s.notifier.NotifyReviewRequired(ctx, event); err != nil {
		// 审核通知失败不能再让补偿流程失败，只能大声记下来
		logger.Ctx(ctx).Error().Err(err).
			Str("submission_id", sub.ID).
			Msg("CRITICAL: failed to publish review-required event, leftovers are only in the step log")
	}
}

// RecoverPending 在进程启动时把上次崩溃留下的未完成提交全部补偿掉。
// 补偿动作从持久化的步骤日志重建，天然幂等: 已删除的实体和
// 已冲正的台账记录都会被跳过。
func (s *EncounterApplicationService) RecoverPending(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "encounter.RecoverPending")
	defer span.End()

	pending, err := s.repo.FindUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished submissions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	logger.Ctx(ctx).Warn().Int("count", len(pending)).Msg("recovering unfinished submissions from previous run")

	for _, sub := range pending {
		if err := s.recoverOne(ctx, sub); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("submission_id", sub.ID).Msg("failed to recover submission")
		}
	}
	return nil
}

func (s *EncounterApplicationService) recoverOne(ctx context.Context, sub *domain.Submission) error {
	steps, err := s.repo.Steps(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("load step log: %w", err)
	}

	// 按记录顺序的逆序重建补偿，冲正与删除分开
	var reversals, deletes []saga.Compensation
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.TransactionID != 0 {
			reversals = append(reversals, reversalCompensation(s.ledger, step.TransactionID, "system:recovery"))
			continue
		}
		if step.RemoteID != 0 {
			deletes = append(deletes, deleteCompensation(s.clinical, step.EntityKind, step.RemoteID))
		}
	}

	if err := sub.BeginCompensating(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return err
	}

	report := s.compensator.Run(ctx, reversals, deletes)
	outcome := domain.OutcomeFullyRolledBack
	if report.HasFailures() {
		outcome = domain.OutcomePartiallyRolledBack
		s.notifyReview(ctx, sub, report.Leftovers())
	}
	if err := sub.MarkFailed(outcome); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return err
	}

	submissionsTotal.WithLabelValues(string(outcome)).Inc()
	logger.Ctx(ctx).Info().
		Str("submission_id", sub.ID).
		Str("outcome", string(outcome)).
		Msg("recovered unfinished submission")
	return nil
}

// stepLogRecorder 把链路产出的标识符立刻写进步骤日志。
// 写失败只告警: 步骤日志是崩溃恢复的保险，不应反过来弄断主流程。
type stepLogRecorder struct {
	repo         domain.SubmissionRepository
	submissionID string
}

func (r *stepLogRecorder) Record(ctx context.Context, step string, kind domain.EntityKind, remoteID, txID int64) {
	// 崩溃恢复靠这份日志，而取消/超时路径上恰恰最需要它写成功，
	// 所以写入挂在脱离调用方的短期上下文上，只保留 trace 关联
	writeCtx, cancel := context.WithTimeout(
		trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx)),
		2*time.Second)
	defer cancel()

	rec := &domain.StepRecord{
		Step:          step,
		EntityKind:    kind,
		RemoteID:      remoteID,
		TransactionID: txID,
		RecordedAt:    time.Now(),
	}
	if err := r.repo.AppendStep(writeCtx, r.submissionID, rec); err != nil {
		logger.Ctx(writeCtx).Warn().Err(err).
			Str("submission_id", r.submissionID).
			Str("step", step).
			Msg("failed to append step log entry")
	}
}
