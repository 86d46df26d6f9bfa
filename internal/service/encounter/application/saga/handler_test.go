package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
)

// stubClinical 按调用顺序记录创建的实体种类。
type stubClinical struct {
	mu      sync.Mutex
	nextID  int64
	created []domain.EntityKind
}

func (s *stubClinical) create(kind domain.EntityKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.created = append(s.created, kind)
	return s.nextID, nil
}

func (s *stubClinical) CreatePatientRecord(context.Context, int64, string) (int64, error) {
	return s.create(domain.KindPatientRecord)
}
func (s *stubClinical) CreateEncounter(context.Context, *port.EncounterCreate) (int64, error) {
	return s.create(domain.KindClinicalEncounter)
}
func (s *stubClinical) CreateHistory(context.Context, int64, string, string) (int64, error) {
	return s.create(domain.KindEncounterHistory)
}
func (s *stubClinical) CreateFollowUp(context.Context, int64, time.Time, string) (int64, error) {
	return s.create(domain.KindFollowUpVisit)
}
func (s *stubClinical) CreateNote(context.Context, string, int64, int64) (int64, error) {
	return s.create(domain.KindEncounterNote)
}
func (s *stubClinical) CreateMeasurement(context.Context, int64, float64, float64, int) (int64, error) {
	return s.create(domain.KindBodyMeasurement)
}
func (s *stubClinical) CreateVitals(context.Context, float64, int64, int64, int64) (int64, error) {
	return s.create(domain.KindVitalSigns)
}
func (s *stubClinical) CreateNutritionalStatus(context.Context, *port.NutritionalStatusCreate) (int64, error) {
	return s.create(domain.KindNutritionalStatus)
}
func (s *stubClinical) CreateBreastfeedingCheck(context.Context, int64, string, string) (int64, error) {
	return s.create(domain.KindBreastfeedingCheck)
}
func (s *stubClinical) CreateDisabilityLink(context.Context, int64, int64) (int64, error) {
	return s.create(domain.KindDisabilityLink)
}
func (s *stubClinical) CreateDispensation(context.Context, int64, int64, int, string) (int64, error) {
	return s.create(domain.KindDispensation)
}
func (s *stubClinical) CreateSupplementLink(context.Context, int64, int64) (int64, error) {
	return s.create(domain.KindSupplementLink)
}
func (s *stubClinical) Delete(context.Context, domain.EntityKind, int64) error { return nil }

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, domain.EntityKind, int64, int64) {}

func newChainContext(clinical *stubClinical, input *domain.EncounterInput) *ChainContext {
	return &ChainContext{
		Ctx:       context.Background(),
		Tracer:    noop.NewTracerProvider().Tracer("test"),
		Input:     input,
		Nutrition: &domain.NutritionResult{WeightForAge: "Normal", HeightForAge: "Normal", WeightForHeight: "Normal"},
		Chain:     &domain.ClinicalChain{},
		Actor:     "staff:7",
		Clinical:  clinical,
		Steps:     noopRecorder{},
	}
}

func fullChain() Handler {
	head := &PatientRecordHandler{}
	head.
		SetNext(&ClinicalEncounterHandler{}).
		SetNext(&EncounterHistoryHandler{}).
		SetNext(&FollowUpHandler{}).
		SetNext(&EncounterNoteHandler{}).
		SetNext(&BodyMeasurementHandler{}).
		SetNext(&VitalSignsHandler{}).
		SetNext(&NutritionalStatusHandler{}).
		SetNext(&BreastfeedingCheckHandler{}).
		SetNext(&DisabilityLinkHandler{})
	return head
}

func testInput(withFollowUp bool) *domain.EncounterInput {
	input := &domain.EncounterInput{
		PatientID:     101,
		StaffID:       7,
		EncounterDate: time.Now(),
		Status:        "check-up",
		WeightKg:      9.5,
		HeightCm:      74,
		AgeMonths:     18,
		TemperatureC:  36.8,
	}
	if withFollowUp {
		input.FollowUp = &domain.FollowUpRequest{Date: time.Now().AddDate(0, 1, 0)}
	}
	return input
}

func TestChainCreatesEntitiesInDependencyOrder(t *testing.T) {
	clinical := &stubClinical{}
	cc := newChainContext(clinical, testInput(true))

	require.NoError(t, fullChain().Handle(cc))

	assert.Equal(t, []domain.EntityKind{
		domain.KindPatientRecord,
		domain.KindClinicalEncounter,
		domain.KindEncounterHistory,
		domain.KindFollowUpVisit,
		domain.KindEncounterNote,
		domain.KindBodyMeasurement,
		domain.KindVitalSigns,
		domain.KindNutritionalStatus,
	}, clinical.created)

	chain := cc.Chain
	assert.NotZero(t, chain.PatientRecordID)
	assert.NotZero(t, chain.EncounterID)
	assert.NotZero(t, chain.HistoryID)
	assert.NotZero(t, chain.FollowUpID)
	assert.NotZero(t, chain.NoteID)
	assert.NotZero(t, chain.MeasurementID)
	assert.NotZero(t, chain.VitalsID)
	assert.NotZero(t, chain.NutritionalStatusID)
}

func TestCompensationsAreRegisteredLIFO(t *testing.T) {
	clinical := &stubClinical{}
	cc := newChainContext(clinical, testInput(false))

	require.NoError(t, fullChain().Handle(cc))

	deletes := cc.Deletes()
	require.Len(t, deletes, 7)
	// 最后创建的最先回滚
	assert.Equal(t, string(domain.KindNutritionalStatus), deletes[0].Kind)
	assert.Equal(t, string(domain.KindPatientRecord), deletes[len(deletes)-1].Kind)
}

func TestFollowUpStepSkippedWhenNotRequested(t *testing.T) {
	clinical := &stubClinical{}
	cc := newChainContext(clinical, testInput(false))

	require.NoError(t, fullChain().Handle(cc))

	assert.Zero(t, cc.Chain.FollowUpID)
	assert.NotContains(t, clinical.created, domain.KindFollowUpVisit)
	assert.NotZero(t, cc.Chain.NoteID)
}

func TestOptionalTrailingStepsCreateRows(t *testing.T) {
	clinical := &stubClinical{}
	input := testInput(false)
	input.BreastfeedingChecks = []domain.BreastfeedingCheck{
		{AgeRange: "0-5 months", Status: "exclusive"},
		{AgeRange: "6-11 months", Status: "mixed"},
	}
	input.DisabilityIDs = []int64{31}
	cc := newChainContext(clinical, input)

	require.NoError(t, fullChain().Handle(cc))

	assert.Len(t, cc.Chain.BreastfeedingCheckIDs, 2)
	assert.Len(t, cc.Chain.DisabilityLinkIDs, 1)
	// 每一行都有对应的删除补偿
	assert.Len(t, cc.Deletes(), 10)
}

func TestStepFailsWhenPriorIDMissing(t *testing.T) {
	clinical := &stubClinical{}
	cc := newChainContext(clinical, testInput(false))

	// 直接跑生命体征步骤，缺少前序标识符
	err := (&VitalSignsHandler{}).Handle(cc)
	var failed *domain.StepFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, domain.StepVitalSigns, failed.Step)
}
