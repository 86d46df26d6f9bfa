package domain

import "time"

// 就诊记录容器的类型。每次提交每种类型最多创建一个。
const (
	RecordTypeChildHealth     = "Child Health Record"
	RecordTypeMedicineRequest = "Medicine Request"
)

// 链路步骤名。StepFailed 带着它们，编排层据此知道链在哪一步断了。
const (
	StepPatientRecord      = "PatientRecord"
	StepClinicalEncounter  = "ClinicalEncounter"
	StepEncounterHistory   = "EncounterHistory"
	StepFollowUpVisit      = "FollowUpVisit"
	StepEncounterNote      = "EncounterNote"
	StepBodyMeasurement    = "BodyMeasurement"
	StepVitalSigns         = "VitalSigns"
	StepNutritionalStatus  = "NutritionalStatus"
	StepBreastfeedingCheck = "BreastfeedingCheck"
	StepDisabilityLink     = "DisabilityLink"
	StepDispense           = "Dispense"
)

// EntityKind 标识临床核心里的一种实体，补偿删除按它找到对应端点。
type EntityKind string

const (
	KindPatientRecord      EntityKind = "patient_record"
	KindClinicalEncounter  EntityKind = "clinical_encounter"
	KindEncounterHistory   EntityKind = "encounter_history"
	KindFollowUpVisit      EntityKind = "followup_visit"
	KindEncounterNote      EntityKind = "encounter_note"
	KindBodyMeasurement    EntityKind = "body_measurement"
	KindVitalSigns         EntityKind = "vital_signs"
	KindNutritionalStatus  EntityKind = "nutritional_status"
	KindBreastfeedingCheck EntityKind = "breastfeeding_check"
	KindDisabilityLink     EntityKind = "disability_link"
	KindDispensation       EntityKind = "medicine_dispensation"
	KindSupplementLink     EntityKind = "supplement_link"
)

// FollowUpRequest 是可选的复诊申请。
type FollowUpRequest struct {
	Date        time.Time
	Description string
}

// BreastfeedingCheck 是一条可选的母乳喂养检查记录。
type BreastfeedingCheck struct {
	AgeRange string
	Status   string
}

// MedicineLine 是一条发药申请。
type MedicineLine struct {
	StockItemID int64
	Quantity    int
	Reason      string
}

// EncounterInput 是一次儿童保健就诊提交的完整载荷。
type EncounterInput struct {
	PatientID int64
	StaffID   int64

	EncounterDate time.Time
	DeliveryInfo  string
	Occupation    string

	// recorded / check-up / immunization
	Status              string
	TetanusToxoidStatus string

	WeightKg  float64
	HeightCm  float64
	AgeMonths int

	TemperatureC float64
	MUACCm       float64
	// 仅在重度急性营养不良分类下必填，由规则引擎在提交前校验
	EdemaSeverity string

	NoteText string

	FollowUp            *FollowUpRequest
	BreastfeedingChecks []BreastfeedingCheck
	DisabilityIDs       []int64
	Medicines           []MedicineLine
}

// Validate 做纯本地的必填校验，任何远端调用之前执行，失败不产生副作用。
func (in *EncounterInput) Validate() error {
	if in.PatientID == 0 {
		return &ValidationError{Field: "patientId", Reason: "required"}
	}
	if in.StaffID == 0 {
		return &ValidationError{Field: "staffId", Reason: "required"}
	}
	if in.EncounterDate.IsZero() {
		return &ValidationError{Field: "encounterDate", Reason: "required"}
	}
	if in.Status == "" {
		return &ValidationError{Field: "status", Reason: "required"}
	}
	if in.WeightKg <= 0 {
		return &ValidationError{Field: "weightKg", Reason: "must be positive"}
	}
	if in.HeightCm <= 0 {
		return &ValidationError{Field: "heightCm", Reason: "must be positive"}
	}
	if in.AgeMonths < 0 {
		return &ValidationError{Field: "ageMonths", Reason: "must not be negative"}
	}
	if in.FollowUp != nil && in.FollowUp.Date.IsZero() {
		return &ValidationError{Field: "followUp.date", Reason: "required when follow-up is requested"}
	}
	for i, check := range in.BreastfeedingChecks {
		if check.Status == "" {
			return &ValidationError{Field: "breastfeedingChecks", Reason: "status required", Index: i}
		}
	}
	for i, id := range in.DisabilityIDs {
		if id == 0 {
			return &ValidationError{Field: "disabilityIds", Reason: "disability id required", Index: i}
		}
	}
	for i, line := range in.Medicines {
		if line.StockItemID == 0 {
			return &ValidationError{Field: "medicines", Reason: "stock item id required", Index: i}
		}
		if line.Quantity <= 0 {
			return &ValidationError{Field: "medicines", Reason: "quantity must be positive", Index: i}
		}
	}
	return nil
}

// NutritionResult 是营养计算器协作方返回的派生分类。
type NutritionResult struct {
	WeightForAge    string
	HeightForAge    string
	WeightForHeight string
}

// ClinicalChain 显式记录链路中每一步产出的标识符。
// 后一步的必填外键永远从这里取，而不是散落的局部变量。
type ClinicalChain struct {
	PatientRecordID     int64
	EncounterID         int64
	HistoryID           int64
	FollowUpID          int64 // 0 表示未申请复诊
	NoteID              int64
	MeasurementID       int64
	VitalsID            int64
	NutritionalStatusID int64

	// 可选的尾部步骤，未申请时为空
	BreastfeedingCheckIDs []int64
	DisabilityLinkIDs     []int64

	// 发药阶段
	MedicineRecordID  int64 // "Medicine Request" 类型的就诊记录容器
	DispensationIDs   []int64
	SupplementLinkIDs []int64
	TransactionIDs    []int64
}
