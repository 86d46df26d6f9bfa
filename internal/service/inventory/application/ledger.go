package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lingap/internal/pkg/logger"
	"lingap/internal/service/inventory/domain"
	"lingap/internal/service/inventory/domain/port"
)

// LedgerService 实现库存台账服务。
// 核心不变量:
//  1. available_quantity 永不为负；
//  2. available_quantity == 初始量 + 所有台账 delta 之和；
//  3. 数量更新与台账追加要么都生效要么都不生效。
//
// 全局可变的库存余量只能在这里做串行化的读改写，
// 任何调用方都不允许在进程内缓存余量再自行判断。
type LedgerService struct {
	store   port.StockStore
	locker  port.ItemLocker
	alerter port.DivergenceAlerter
	tracer  trace.Tracer
}

// NewLedgerService 创建台账服务。alerter 可以为 nil，此时失配只记日志。
func NewLedgerService(store port.StockStore, locker port.ItemLocker, alerter port.DivergenceAlerter, tracer trace.Tracer) *LedgerService {
	return &LedgerService{store: store, locker: locker, alerter: alerter, tracer: tracer}
}

// undoCtx 给事后清理写入一个不随调用方取消的有限期上下文，只保留
// trace 关联。台账写入失败的原因可能正是调用方超时，回退要是复用
// 同一个 context 就注定跟着失败。锁释放用的是同一套做法。
func undoCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	return context.WithTimeout(detached, 5*time.Second)
}

// alertDivergence 把失配事实推给运营审核侧。告警失败只记日志，
// 不能再让错误处理路径自己出错。
func (s *LedgerService) alertDivergence(ctx context.Context, d *domain.StockDivergence) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.AlertStockDivergence(ctx, d); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("item_id", d.StockItemID).
			Msg("failed to publish stock divergence alert")
	}
}

// GetAvailable 读取当前可用数量，仅供编排层做咨询性预检。
// 权威的充足性检查发生在 Deduct 内部的锁临界区里。
func (s *LedgerService) GetAvailable(ctx context.Context, itemID int64) (int, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.AvailableQuantity, nil
}

// Deduct 扣减库存并追加一条 delta = -quantity 的台账记录，返回台账 id。
// 余量不足返回 *domain.InsufficientStockError，此时库存与台账都保持原样。
func (s *LedgerService) Deduct(ctx context.Context, itemID int64, quantity int, actor, reason string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Deduct")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("stock.item_id", itemID),
		attribute.Int("stock.quantity", quantity),
	)

	if quantity <= 0 {
		return 0, fmt.Errorf("deduct quantity must be positive, got %d", quantity)
	}

	unlock, err := s.locker.Lock(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("acquire stock lock for item %d: %w", itemID, err)
	}
	defer unlock()

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if quantity > item.AvailableQuantity {
		err := &domain.InsufficientStockError{StockItemID: itemID, Requested: quantity, Available: item.AvailableQuantity}
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if err := s.store.UpdateQuantity(ctx, itemID, item.AvailableQuantity-quantity); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("update stock quantity for item %d: %w", itemID, err)
	}

	txID, err := s.store.AppendTransaction(ctx, &domain.StockTransaction{
		StockItemID: itemID,
		Delta:       -quantity,
		Action:      domain.ActionDeduct,
		Actor:       actor,
		Reason:      reason,
	})
	if err != nil {
		// 台账写入失败时回退数量，保证两笔写成对生效
		cleanupCtx, cancel := undoCtx(ctx)
		defer cancel()
		if undoErr := s.store.UpdateQuantity(cleanupCtx, itemID, item.AvailableQuantity); undoErr != nil {
			logger.Ctx(cleanupCtx).Error().
				Int64("item_id", itemID).
				AnErr("append_err", err).
				AnErr("undo_err", undoErr).
				Msg("CRITICAL: stock quantity and ledger diverged, manual reconciliation required")
			s.alertDivergence(cleanupCtx, &domain.StockDivergence{
				StockItemID:      itemID,
				ExpectedQuantity: item.AvailableQuantity,
				Detail:           fmt.Sprintf("deduct ledger append failed (%v), quantity restore failed (%v)", err, undoErr),
				At:               time.Now(),
			})
			span.RecordError(undoErr)
			return 0, fmt.Errorf("append stock transaction: %v (quantity restore also failed: %w)", err, undoErr)
		}
		span.RecordError(err)
		return 0, fmt.Errorf("append stock transaction for item %d: %w", itemID, err)
	}

	deductionsTotal.Inc()
	span.AddEvent("Stock deducted and ledger entry appended")
	return txID, nil
}

// Reverse 冲正一条扣减: 追加 delta = +quantity 的台账记录并恢复可用数量，
// 然后给原记录打上已冲正标记。幂等——冲正一条已冲正的记录是 no-op。
// 返回值 applied 表示本次调用是否真的做了恢复。
func (s *LedgerService) Reverse(ctx context.Context, txID int64, actor string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Reverse")
	defer span.End()
	span.SetAttributes(attribute.Int64("stock.transaction_id", txID))

	orig, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if orig.Reversed {
		span.AddEvent("Transaction already reversed, skipping")
		return false, nil
	}

	unlock, err := s.locker.Lock(ctx, orig.StockItemID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("acquire stock lock for item %d: %w", orig.StockItemID, err)
	}
	defer unlock()

	// 锁内重读，避免与另一次并发冲正双重恢复
	orig, err = s.store.GetTransaction(ctx, txID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if orig.Reversed {
		span.AddEvent("Transaction already reversed, skipping")
		return false, nil
	}

	item, err := s.store.GetItem(ctx, orig.StockItemID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	restored := item.AvailableQuantity - orig.Delta // 原始 delta 为负
	if err := s.store.UpdateQuantity(ctx, orig.StockItemID, restored); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("restore stock quantity for item %d: %w", orig.StockItemID, err)
	}

	if _, err := s.store.AppendTransaction(ctx, &domain.StockTransaction{
		StockItemID: orig.StockItemID,
		Delta:       -orig.Delta,
		Action:      domain.ActionReverse,
		Actor:       actor,
		Reason:      fmt.Sprintf("reversal of transaction %d", txID),
	}); err != nil {
		cleanupCtx, cancel := undoCtx(ctx)
		defer cancel()
		if undoErr := s.store.UpdateQuantity(cleanupCtx, orig.StockItemID, item.AvailableQuantity); undoErr != nil {
			logger.Ctx(cleanupCtx).Error().
				Int64("item_id", orig.StockItemID).
				AnErr("append_err", err).
				AnErr("undo_err", undoErr).
				Msg("CRITICAL: stock quantity and ledger diverged during reversal")
			s.alertDivergence(cleanupCtx, &domain.StockDivergence{
				StockItemID:      orig.StockItemID,
				ExpectedQuantity: item.AvailableQuantity,
				Detail:           fmt.Sprintf("reversal ledger append failed (%v), quantity restore failed (%v)", err, undoErr),
				At:               time.Now(),
			})
			span.RecordError(undoErr)
			return false, fmt.Errorf("append reversal transaction: %v (quantity restore also failed: %w)", err, undoErr)
		}
		span.RecordError(err)
		return false, fmt.Errorf("append reversal transaction for %d: %w", txID, err)
	}

	// 冲正已经生效，打标记不能再被调用方的取消拖垮
	flagCtx, cancel := undoCtx(ctx)
	defer cancel()
	if err := s.store.MarkReversed(flagCtx, txID); err != nil {
		// 冲正已经生效但标记失败: 下一次 Reverse 会再次恢复数量，
		// 所以这里必须当作需要人工核对的严重错误上抛
		logger.Ctx(ctx).Error().
			Int64("transaction_id", txID).
			Err(err).
			Msg("CRITICAL: reversal applied but original transaction could not be flagged")
		span.RecordError(err)
		return true, fmt.Errorf("mark transaction %d reversed: %w", txID, err)
	}

	reversalsTotal.Inc()
	span.AddEvent("Stock restored and original transaction flagged reversed")
	return true, nil
}
