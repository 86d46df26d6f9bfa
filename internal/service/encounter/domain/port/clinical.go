package port

import (
	"context"
	"time"

	"lingap/internal/service/encounter/domain"
)

// EncounterCreate 是创建就诊实体所需的字段。
type EncounterCreate struct {
	PatientRecordID int64
	StaffID         int64
	EncounterDate   time.Time
	DeliveryInfo    string
	Occupation      string
}

// NutritionalStatusCreate 是创建营养状态记录所需的字段。
type NutritionalStatusCreate struct {
	VitalsID        int64
	WeightForAge    string
	HeightForAge    string
	WeightForHeight string
	MUACCm          float64
	EdemaSeverity   string
}

// ClinicalRecordService 是临床核心(CRUD 后端)的出站端口。
// 每个创建方法返回远端生成的 id；Delete 是补偿用的逆操作，
// 目标不存在时返回 domain.ErrNotFound。
type ClinicalRecordService interface {
	CreatePatientRecord(ctx context.Context, patientID int64, recordType string) (int64, error)
	CreateEncounter(ctx context.Context, req *EncounterCreate) (int64, error)
	CreateHistory(ctx context.Context, encounterID int64, status, ttStatus string) (int64, error)
	CreateFollowUp(ctx context.Context, patientRecordID int64, date time.Time, description string) (int64, error)
	// CreateNote 的 followUpID 为 0 时表示笔记不关联复诊。
	CreateNote(ctx context.Context, text string, staffID, followUpID int64) (int64, error)
	CreateMeasurement(ctx context.Context, patientRecordID int64, weightKg, heightCm float64, ageMonths int) (int64, error)
	CreateVitals(ctx context.Context, temperatureC float64, measurementID, historyID, noteID int64) (int64, error)
	CreateNutritionalStatus(ctx context.Context, req *NutritionalStatusCreate) (int64, error)
	CreateBreastfeedingCheck(ctx context.Context, encounterID int64, ageRange, status string) (int64, error)
	CreateDisabilityLink(ctx context.Context, patientRecordID, disabilityID int64) (int64, error)
	CreateDispensation(ctx context.Context, patientRecordID, stockItemID int64, quantity int, reason string) (int64, error)
	CreateSupplementLink(ctx context.Context, historyID, dispensationID int64) (int64, error)

	Delete(ctx context.Context, kind domain.EntityKind, id int64) error
}
