package saga

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// StepRecorder 把产出的标识符立刻写进持久化步骤日志。
type StepRecorder interface {
	Record(ctx context.Context, step string, kind domain.EntityKind, remoteID, txID int64)
}

// Compensation 是一步已提交操作的逆操作。
// Run 返回 domain.ErrAlreadyCompensated 表示目标早已被回滚(幂等跳过)。
// Kind/Ref 用于在补偿失败时生成残留清单。
type Compensation struct {
	Label string
	Kind  string
	Ref   string
	Run   func(ctx context.Context) error
}

// ChainContext 在临床链各步骤之间传递数据与补偿记录。
// 所有外部依赖都是抽象端口，链本身不知道 HTTP 的存在。
type ChainContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	Input     *domain.EncounterInput
	Nutrition *domain.NutritionResult
	Chain     *domain.ClinicalChain
	Actor     string

	Clinical port.ClinicalRecordService
	Ledger   port.InventoryLedger
	Steps    StepRecorder

	// 回滚时台账冲正优先于实体删除，所以分开记两份
	mu        sync.Mutex
	reversals []Compensation
	deletes   []Compensation
}

// AddDelete 登记一条实体删除补偿(LIFO)。
func (c *ChainContext) AddDelete(comp Compensation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append([]Compensation{comp}, c.deletes...)
}

// AddReversal 登记一条台账冲正补偿(LIFO)。
func (c *ChainContext) AddReversal(comp Compensation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reversals = append([]Compensation{comp}, c.reversals...)
}

// Reversals 返回已登记的冲正补偿，先登记的在后。
func (c *ChainContext) Reversals() []Compensation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Compensation, len(c.reversals))
	copy(out, c.reversals)
	return out
}

// Deletes 返回已登记的删除补偿，先登记的在后。
func (c *ChainContext) Deletes() []Compensation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Compensation, len(c.deletes))
	copy(out, c.deletes)
	return out
}

// recordCreated 记录一个新建实体: 写步骤日志并登记删除补偿。
func (c *ChainContext) recordCreated(ctx context.Context, step string, kind domain.EntityKind, id int64) {
	c.Steps.Record(ctx, step, kind, id, 0)
	c.AddDelete(Compensation{
		Label: fmt.Sprintf("delete %s %d", kind, id),
		Kind:  string(kind),
		Ref:   fmt.Sprintf("%d", id),
		Run: func(compCtx context.Context) error {
			return c.Clinical.Delete(compCtx, kind, id)
		},
	})
}

// Handler 是链上的一个步骤。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(cc *ChainContext) error
}

// NextHandler 提供链接到下一个步骤的公共实现。
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(cc *ChainContext) error {
	if h.next != nil {
		return h.next.Handle(cc)
	}
	return nil
}
