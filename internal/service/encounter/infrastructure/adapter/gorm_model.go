package adapter

import "time"

// SubmissionModel 是提交聚合的持久化形态。
type SubmissionModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	PatientID int64  `gorm:"index"`
	StaffID   int64
	State     string `gorm:"size:32;index"`
	Outcome   string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SubmissionModel) TableName() string { return "encounter_submissions" }

// SubmissionStepModel 是步骤日志的一行，只追加不修改。
type SubmissionStepModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	SubmissionID  string `gorm:"size:36;index"`
	Step          string `gorm:"size:32"`
	EntityKind    string `gorm:"size:32"`
	RemoteID      int64
	TransactionID int64
	RecordedAt    time.Time
}

func (SubmissionStepModel) TableName() string { return "encounter_submission_steps" }
