package adapter

import "lingap/internal/service/encounter/domain"

func toSubmissionModel(sub *domain.Submission) *SubmissionModel {
	return &SubmissionModel{
		ID:        sub.ID,
		PatientID: sub.PatientID,
		StaffID:   sub.StaffID,
		State:     string(sub.State),
		Outcome:   string(sub.Outcome),
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

func toSubmissionDomain(m *SubmissionModel) *domain.Submission {
	return &domain.Submission{
		ID:        m.ID,
		PatientID: m.PatientID,
		StaffID:   m.StaffID,
		State:     domain.State(m.State),
		Outcome:   domain.Outcome(m.Outcome),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toStepModel(submissionID string, rec *domain.StepRecord) *SubmissionStepModel {
	return &SubmissionStepModel{
		SubmissionID:  submissionID,
		Step:          rec.Step,
		EntityKind:    string(rec.EntityKind),
		RemoteID:      rec.RemoteID,
		TransactionID: rec.TransactionID,
		RecordedAt:    rec.RecordedAt,
	}
}

func toStepDomain(m *SubmissionStepModel) *domain.StepRecord {
	return &domain.StepRecord{
		Step:          m.Step,
		EntityKind:    domain.EntityKind(m.EntityKind),
		RemoteID:      m.RemoteID,
		TransactionID: m.TransactionID,
		RecordedAt:    m.RecordedAt,
	}
}
