package application

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/encounter/application/saga"
	"lingap/internal/service/encounter/domain"
)

// CompensationStatus 是单条补偿动作的结果。
type CompensationStatus string

const (
	CompensationSucceeded CompensationStatus = "Succeeded"
	CompensationFailed    CompensationStatus = "Failed"
	CompensationSkipped   CompensationStatus = "Skipped"
)

// CompensationItem 记录一条补偿动作的执行结果。
type CompensationItem struct {
	Label  string
	Kind   string
	Ref    string
	Status CompensationStatus
	Err    error
}

// CompensationReport 汇总一次回滚的全部结果。
type CompensationReport struct {
	Items []CompensationItem
}

// HasFailures 表示是否有补偿动作失败，失败意味着残留。
func (r *CompensationReport) HasFailures() bool {
	for _, it := range r.Items {
		if it.Status == CompensationFailed {
			return true
		}
	}
	return false
}

// Leftovers 返回失败动作对应的残留清单，供人工审核队列使用。
func (r *CompensationReport) Leftovers() []domain.Leftover {
	var out []domain.Leftover
	for _, it := range r.Items {
		if it.Status != CompensationFailed {
			continue
		}
		out = append(out, domain.Leftover{Kind: it.Kind, Ref: it.Ref, Err: it.Err.Error()})
	}
	return out
}

// Compensator 逐条执行补偿动作。某条失败不会中断后续动作:
// 残留越少越好，剩下的进报告。
type Compensator struct {
	tracer trace.Tracer
}

func NewCompensator(tracer trace.Tracer) *Compensator {
	return &Compensator{tracer: tracer}
}

// Run 先执行台账冲正，再按 LIFO 执行实体删除。
// 冲正在前: 库存是共享账本，把钱还回去比删病历记录更紧急。
func (c *Compensator) Run(ctx context.Context, reversals, deletes []saga.Compensation) *CompensationReport {
	ctx, span := c.tracer.Start(ctx, "saga.Compensate")
	defer span.End()

	report := &CompensationReport{}
	for _, comp := range append(reversals, deletes...) {
		report.Items = append(report.Items, c.runOne(ctx, comp))
	}
	return report
}

func (c *Compensator) runOne(ctx context.Context, comp saga.Compensation) CompensationItem {
	item := CompensationItem{Label: comp.Label, Kind: comp.Kind, Ref: comp.Ref}

	err := comp.Run(ctx)
	switch {
	case err == nil:
		item.Status = CompensationSucceeded
		logger.Ctx(ctx).Info().Str("action", comp.Label).Msg("【Saga】<= 补偿成功")
	case errors.Is(err, domain.ErrAlreadyCompensated), errors.Is(err, domain.ErrNotFound):
		// 目标早已不在了，说明这条补偿之前已经生效过，幂等跳过
		item.Status = CompensationSkipped
		logger.Ctx(ctx).Info().Str("action", comp.Label).Msg("【Saga】<= 补偿跳过(已回滚过)")
	default:
		item.Status = CompensationFailed
		item.Err = err
		compensationFailuresTotal.Inc()
		logger.Ctx(ctx).Error().Err(err).
			Str("action", comp.Label).
			Str("kind", comp.Kind).
			Str("ref", comp.Ref).
			Msg("【Saga】<= 补偿失败，残留待人工处理")
	}
	return item
}
