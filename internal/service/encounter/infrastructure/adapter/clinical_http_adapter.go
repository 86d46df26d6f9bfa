package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lingap/internal/pkg/constants"
	"lingap/internal/pkg/httpclient"
	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// ClinicalHTTPAdapter 用临床核心的 CRUD 端点实现 port.ClinicalRecordService。
// 字段名沿用临床核心的缩写命名(patrecId / chealthId / vitalId ...)。
type ClinicalHTTPAdapter struct {
	client *httpclient.Client
}

func NewClinicalHTTPAdapter(client *httpclient.Client) *ClinicalHTTPAdapter {
	return &ClinicalHTTPAdapter{client: client}
}

var kindPaths = map[domain.EntityKind]string{
	domain.KindPatientRecord:      constants.PatientRecordPath,
	domain.KindClinicalEncounter:  constants.ClinicalEncounterPath,
	domain.KindEncounterHistory:   constants.EncounterHistoryPath,
	domain.KindFollowUpVisit:      constants.FollowUpVisitPath,
	domain.KindEncounterNote:      constants.EncounterNotePath,
	domain.KindBodyMeasurement:    constants.BodyMeasurementPath,
	domain.KindVitalSigns:         constants.VitalSignsPath,
	domain.KindNutritionalStatus:  constants.NutritionalStatusPath,
	domain.KindBreastfeedingCheck: constants.BreastfeedingCheckPath,
	domain.KindDisabilityLink:     constants.DisabilityLinkPath,
	domain.KindDispensation:       constants.DispensationPath,
	domain.KindSupplementLink:     constants.SupplementLinkPath,
}

func (a *ClinicalHTTPAdapter) CreatePatientRecord(ctx context.Context, patientID int64, recordType string) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.PatientRecordPath, map[string]interface{}{
		"patientId": patientID,
		"type":      recordType,
	})
}

func (a *ClinicalHTTPAdapter) CreateEncounter(ctx context.Context, req *port.EncounterCreate) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.ClinicalEncounterPath, map[string]interface{}{
		"patrecId":     req.PatientRecordID,
		"staffId":      req.StaffID,
		"date":         req.EncounterDate.Format(time.RFC3339),
		"deliveryInfo": req.DeliveryInfo,
		"occupation":   req.Occupation,
	})
}

func (a *ClinicalHTTPAdapter) CreateHistory(ctx context.Context, encounterID int64, status, ttStatus string) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.EncounterHistoryPath, map[string]interface{}{
		"chealthId": encounterID,
		"status":    status,
		"ttStatus":  ttStatus,
	})
}

func (a *ClinicalHTTPAdapter) CreateFollowUp(ctx context.Context, patientRecordID int64, date time.Time, description string) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.FollowUpVisitPath, map[string]interface{}{
		"patrecId":    patientRecordID,
		"date":        date.Format(time.RFC3339),
		"description": description,
	})
}

func (a *ClinicalHTTPAdapter) CreateNote(ctx context.Context, text string, staffID, followUpID int64) (int64, error) {
	body := map[string]interface{}{
		"note":    text,
		"staffId": staffID,
	}
	if followUpID != 0 {
		body["followupId"] = followUpID
	}
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.EncounterNotePath, body)
}

func (a *ClinicalHTTPAdapter) CreateMeasurement(ctx context.Context, patientRecordID int64, weightKg, heightCm float64, ageMonths int) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.BodyMeasurementPath, map[string]interface{}{
		"patrecId":  patientRecordID,
		"weightKg":  weightKg,
		"heightCm":  heightCm,
		"ageMonths": ageMonths,
	})
}

func (a *ClinicalHTTPAdapter) CreateVitals(ctx context.Context, temperatureC float64, measurementID, historyID, noteID int64) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.VitalSignsPath, map[string]interface{}{
		"temperatureC": temperatureC,
		"bmsId":        measurementID,
		"historyId":    historyID,
		"noteId":       noteID,
	})
}

func (a *ClinicalHTTPAdapter) CreateNutritionalStatus(ctx context.Context, req *port.NutritionalStatusCreate) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.NutritionalStatusPath, map[string]interface{}{
		"vitalId":         req.VitalsID,
		"weightForAge":    req.WeightForAge,
		"heightForAge":    req.HeightForAge,
		"weightForHeight": req.WeightForHeight,
		"muacCm":          req.MUACCm,
		"edemaSeverity":   req.EdemaSeverity,
	})
}

func (a *ClinicalHTTPAdapter) CreateBreastfeedingCheck(ctx context.Context, encounterID int64, ageRange, status string) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.BreastfeedingCheckPath, map[string]interface{}{
		"chealthId": encounterID,
		"ageRange":  ageRange,
		"status":    status,
	})
}

func (a *ClinicalHTTPAdapter) CreateDisabilityLink(ctx context.Context, patientRecordID, disabilityID int64) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.DisabilityLinkPath, map[string]interface{}{
		"patrecId":     patientRecordID,
		"disabilityId": disabilityID,
	})
}

func (a *ClinicalHTTPAdapter) CreateDispensation(ctx context.Context, patientRecordID, stockItemID int64, quantity int, reason string) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.DispensationPath, map[string]interface{}{
		"patrecId": patientRecordID,
		"minvId":   stockItemID,
		"quantity": quantity,
		"reason":   reason,
	})
}

func (a *ClinicalHTTPAdapter) CreateSupplementLink(ctx context.Context, historyID, dispensationID int64) (int64, error) {
	return a.client.PostCreate(ctx, constants.ClinicalCoreService, constants.SupplementLinkPath, map[string]interface{}{
		"historyId": historyID,
		"mdispId":   dispensationID,
	})
}

// Delete 删除任意一种链路实体，补偿流程的统一入口。
// 目标已不存在时返回 domain.ErrNotFound，上层将其视为幂等跳过。
func (a *ClinicalHTTPAdapter) Delete(ctx context.Context, kind domain.EntityKind, id int64) error {
	base, ok := kindPaths[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	err := a.client.Delete(ctx, constants.ClinicalCoreService, fmt.Sprintf("%s/%d", base, id))
	if errors.Is(err, httpclient.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}

var _ port.ClinicalRecordService = (*ClinicalHTTPAdapter)(nil)
