package domain

// State 定义一次提交的生命周期状态。
type State string

const (
	StateStarted       State = "STARTED"        // 已接收，尚未产生任何副作用
	StateChainBuilding State = "CHAIN_BUILDING" // 正在创建临床实体链
	StateDispensing    State = "DISPENSING"     // 正在扣减库存并登记发药
	StateCommitted     State = "COMMITTED"      // 全部完成
	StateCompensating  State = "COMPENSATING"   // 失败后正在回滚已提交的步骤
	StateFailed        State = "FAILED"         // 终态: 失败(含回滚结果)
)

// Terminal 返回该状态是否为终态。
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// Outcome 是调用方看到的唯一终局结果。
type Outcome string

const (
	OutcomeCommitted           Outcome = "COMMITTED"
	OutcomeFullyRolledBack     Outcome = "FULLY_ROLLED_BACK"
	OutcomePartiallyRolledBack Outcome = "PARTIALLY_ROLLED_BACK" // 需要人工介入
)
