package domain

import "time"

// ReviewRequired 在部分回滚后发布到运维审核队列。
// 载荷里带着全部残留对象，审核人员据此手工清理。
type ReviewRequired struct {
	SubmissionID string     `json:"submissionId"`
	PatientID    int64      `json:"patientId"`
	Leftovers    []Leftover `json:"leftovers"`
	TraceID      string     `json:"traceId,omitempty"`
	At           time.Time  `json:"at"`
}
