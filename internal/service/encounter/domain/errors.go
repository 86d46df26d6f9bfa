package domain

import (
	"errors"
	"fmt"
)

// ErrAlreadyCompensated 由补偿闭包返回，表示目标已经被回滚过(重复删除/重复冲正)。
// 补偿报告把它记为 Skipped 而不是失败。
var ErrAlreadyCompensated = errors.New("already compensated")

// ErrNotFound 表示临床核心里的记录不存在。
var ErrNotFound = errors.New("clinical record not found")

// ValidationError 表示载荷在提交前就不合法。此时还没有任何远端副作用，
// 调用方修正后可直接重试。
type ValidationError struct {
	Field  string
	Reason string
	Index  int // 列表字段的下标，无意义时为 0
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Reason)
}

// StepFailed 表示链路在某个具体步骤断掉了。之前的步骤已经提交，
// 编排层收到它之后必须走补偿。
type StepFailed struct {
	Step  string
	Cause error
}

func (e *StepFailed) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Cause)
}

func (e *StepFailed) Unwrap() error {
	return e.Cause
}

// Leftover 描述一个回滚失败、留在不一致状态的残留对象。
type Leftover struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
	Err  string `json:"err"`
}

// CompensationPartialFailure 表示回滚本身没能完全完成。
// 它必须被呈现给运维审核队列，绝不允许被吞掉。
type CompensationPartialFailure struct {
	Leftovers []Leftover
}

func (e *CompensationPartialFailure) Error() string {
	return fmt.Sprintf("compensation left %d objects in an inconsistent state", len(e.Leftovers))
}
