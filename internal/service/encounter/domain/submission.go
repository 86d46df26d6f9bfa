package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Submission 是一次就诊提交的聚合根。
// 状态机: Started → ChainBuilding → Dispensing → Committed，
// 任一阶段出错则 → Compensating → Failed。
type Submission struct {
	ID        string
	PatientID int64
	StaffID   int64
	State     State
	Outcome   Outcome
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubmission 创建一个新的提交实例。
func NewSubmission(input *EncounterInput) (*Submission, error) {
	if input == nil {
		return nil, errors.New("cannot create submission from nil input")
	}
	now := time.Now()
	return &Submission{
		ID:        uuid.New().String(),
		PatientID: input.PatientID,
		StaffID:   input.StaffID,
		State:     StateStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Submission) transition(from []State, to State) error {
	for _, f := range from {
		if s.State == f {
			s.State = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("illegal submission transition %s -> %s", s.State, to)
}

// BeginChainBuilding 进入临床链创建阶段。
func (s *Submission) BeginChainBuilding() error {
	return s.transition([]State{StateStarted}, StateChainBuilding)
}

// BeginDispensing 进入发药阶段。只能从链创建完成进入。
func (s *Submission) BeginDispensing() error {
	return s.transition([]State{StateChainBuilding}, StateDispensing)
}

// MarkCommitted 全部完成。无发药时允许从 ChainBuilding 直接提交。
func (s *Submission) MarkCommitted() error {
	if err := s.transition([]State{StateChainBuilding, StateDispensing}, StateCommitted); err != nil {
		return err
	}
	s.Outcome = OutcomeCommitted
	return nil
}

// BeginCompensating 任何非终态都可以进入补偿。
func (s *Submission) BeginCompensating() error {
	return s.transition([]State{StateStarted, StateChainBuilding, StateDispensing, StateCompensating}, StateCompensating)
}

// MarkFailed 补偿结束，记录终局结果。
func (s *Submission) MarkFailed(outcome Outcome) error {
	if outcome != OutcomeFullyRolledBack && outcome != OutcomePartiallyRolledBack {
		return fmt.Errorf("invalid failure outcome %s", outcome)
	}
	if err := s.transition([]State{StateCompensating}, StateFailed); err != nil {
		return err
	}
	s.Outcome = outcome
	return nil
}
