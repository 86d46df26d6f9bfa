package domain

import (
	"context"
	"time"
)

// StepRecord 是步骤日志里的一行: 某一步产出了哪个远端标识符。
// TransactionID 非零表示这一步是一次库存扣减。
type StepRecord struct {
	Step          string
	EntityKind    EntityKind
	RemoteID      int64
	TransactionID int64
	RecordedAt    time.Time
}

// SubmissionRepository 持久化提交与步骤日志。
// 步骤日志必须在每个标识符产生后立刻落盘，补偿才能在进程崩溃后重放。
type SubmissionRepository interface {
	Save(ctx context.Context, sub *Submission) error
	AppendStep(ctx context.Context, submissionID string, step *StepRecord) error
	// Steps 按记录顺序返回步骤日志。
	Steps(ctx context.Context, submissionID string) ([]*StepRecord, error)
	// FindUnfinished 返回所有停在非终态的提交，供崩溃恢复使用。
	FindUnfinished(ctx context.Context) ([]*Submission, error)
}
