package application

import (
	"time"

	"lingap/internal/service/encounter/domain"
)

// SubmitEncounterRequest 是 POST /api/encounters 的请求体。
type SubmitEncounterRequest struct {
	PatientID int64 `json:"patientId"`
	StaffID   int64 `json:"staffId"`

	EncounterDate time.Time `json:"encounterDate"`
	DeliveryInfo  string    `json:"deliveryInfo,omitempty"`
	Occupation    string    `json:"occupation,omitempty"`

	Status              string `json:"status"`
	TetanusToxoidStatus string `json:"tetanusToxoidStatus,omitempty"`

	WeightKg  float64 `json:"weightKg"`
	HeightCm  float64 `json:"heightCm"`
	AgeMonths int     `json:"ageMonths"`

	TemperatureC  float64 `json:"temperatureC"`
	MUACCm        float64 `json:"muacCm"`
	EdemaSeverity string  `json:"edemaSeverity,omitempty"`

	NoteText string `json:"noteText,omitempty"`

	FollowUp            *FollowUpDTO            `json:"followUp,omitempty"`
	BreastfeedingChecks []BreastfeedingCheckDTO `json:"breastfeedingChecks,omitempty"`
	DisabilityIDs       []int64                 `json:"disabilityIds,omitempty"`
	Medicines           []MedicineLineDTO       `json:"medicines,omitempty"`
}

type FollowUpDTO struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
}

type BreastfeedingCheckDTO struct {
	AgeRange string `json:"ageRange,omitempty"`
	Status   string `json:"status"`
}

type MedicineLineDTO struct {
	StockItemID int64  `json:"stockItemId"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason,omitempty"`
}

// ToInput 把请求体转成领域输入。
func (r *SubmitEncounterRequest) ToInput() *domain.EncounterInput {
	in := &domain.EncounterInput{
		PatientID:           r.PatientID,
		StaffID:             r.StaffID,
		EncounterDate:       r.EncounterDate,
		DeliveryInfo:        r.DeliveryInfo,
		Occupation:          r.Occupation,
		Status:              r.Status,
		TetanusToxoidStatus: r.TetanusToxoidStatus,
		WeightKg:            r.WeightKg,
		HeightCm:            r.HeightCm,
		AgeMonths:           r.AgeMonths,
		TemperatureC:        r.TemperatureC,
		MUACCm:              r.MUACCm,
		EdemaSeverity:       r.EdemaSeverity,
		NoteText:            r.NoteText,
	}
	if r.FollowUp != nil {
		in.FollowUp = &domain.FollowUpRequest{Date: r.FollowUp.Date, Description: r.FollowUp.Description}
	}
	for _, check := range r.BreastfeedingChecks {
		in.BreastfeedingChecks = append(in.BreastfeedingChecks, domain.BreastfeedingCheck{AgeRange: check.AgeRange, Status: check.Status})
	}
	in.DisabilityIDs = append(in.DisabilityIDs, r.DisabilityIDs...)
	for _, m := range r.Medicines {
		in.Medicines = append(in.Medicines, domain.MedicineLine{
			StockItemID: m.StockItemID,
			Quantity:    m.Quantity,
			Reason:      m.Reason,
		})
	}
	return in
}

// SubmitEncounterResponse 是提交的终局结果。Outcome 是调用方唯一需要
// 判断的字段，COMMITTED 之外的结果都不会留下可见的业务数据。
type SubmitEncounterResponse struct {
	SubmissionID string `json:"submissionId"`
	Outcome      string `json:"outcome"`

	// COMMITTED 时返回整条链的标识符
	Chain *ChainDTO `json:"chain,omitempty"`

	// PARTIALLY_ROLLED_BACK 时返回残留清单
	Leftovers []domain.Leftover `json:"leftovers,omitempty"`

	Error string `json:"error,omitempty"`
}

// ChainDTO 是提交成功后返回的标识符全集。
type ChainDTO struct {
	PatientRecordID     int64 `json:"patientRecordId"`
	EncounterID         int64 `json:"encounterId"`
	HistoryID           int64 `json:"historyId"`
	FollowUpID          int64 `json:"followUpId,omitempty"`
	NoteID              int64 `json:"noteId"`
	MeasurementID       int64 `json:"measurementId"`
	VitalsID            int64 `json:"vitalsId"`
	NutritionalStatusID int64 `json:"nutritionalStatusId"`

	BreastfeedingCheckIDs []int64 `json:"breastfeedingCheckIds,omitempty"`
	DisabilityLinkIDs     []int64 `json:"disabilityLinkIds,omitempty"`

	MedicineRecordID    int64   `json:"medicineRecordId,omitempty"`
	DispensationIDs     []int64 `json:"dispensationIds,omitempty"`
	SupplementLinkIDs   []int64 `json:"supplementLinkIds,omitempty"`
	TransactionIDs      []int64 `json:"transactionIds,omitempty"`
}

func chainDTO(c *domain.ClinicalChain) *ChainDTO {
	return &ChainDTO{
		PatientRecordID:     c.PatientRecordID,
		EncounterID:         c.EncounterID,
		HistoryID:           c.HistoryID,
		FollowUpID:          c.FollowUpID,
		NoteID:              c.NoteID,
		MeasurementID:       c.MeasurementID,
		VitalsID:            c.VitalsID,
		NutritionalStatusID: c.NutritionalStatusID,

		BreastfeedingCheckIDs: c.BreastfeedingCheckIDs,
		DisabilityLinkIDs:     c.DisabilityLinkIDs,

		MedicineRecordID:    c.MedicineRecordID,
		DispensationIDs:     c.DispensationIDs,
		SupplementLinkIDs:   c.SupplementLinkIDs,
		TransactionIDs:      c.TransactionIDs,
	}
}
