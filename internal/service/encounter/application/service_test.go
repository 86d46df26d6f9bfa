package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"lingap/internal/service/encounter/domain"
	"lingap/internal/service/encounter/domain/port"
	invdomain "lingap/internal/service/inventory/domain"
)

// ---- 临床核心替身 ----

type fakeClinical struct {
	mu          sync.Mutex
	nextID      int64
	entities    map[int64]domain.EntityKind
	recordTypes map[int64]string
	links       map[int64][2]int64 // supplement link id -> (historyID, dispensationID)

	failCreate  map[domain.EntityKind]error
	failDelete  map[domain.EntityKind]error
	createCalls int
}

func newFakeClinical() *fakeClinical {
	return &fakeClinical{
		entities:    make(map[int64]domain.EntityKind),
		recordTypes: make(map[int64]string),
		links:       make(map[int64][2]int64),
		failCreate:  make(map[domain.EntityKind]error),
		failDelete:  make(map[domain.EntityKind]error),
	}
}

func (f *fakeClinical) create(kind domain.EntityKind, parents ...int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := f.failCreate[kind]; err != nil {
		return 0, err
	}
	for _, p := range parents {
		if _, ok := f.entities[p]; !ok {
			return 0, fmt.Errorf("referenced entity %d does not exist", p)
		}
	}
	f.nextID++
	f.entities[f.nextID] = kind
	return f.nextID, nil
}

func (f *fakeClinical) CreatePatientRecord(_ context.Context, _ int64, recordType string) (int64, error) {
	id, err := f.create(domain.KindPatientRecord)
	if err == nil {
		f.mu.Lock()
		f.recordTypes[id] = recordType
		f.mu.Unlock()
	}
	return id, err
}

func (f *fakeClinical) CreateEncounter(_ context.Context, req *port.EncounterCreate) (int64, error) {
	return f.create(domain.KindClinicalEncounter, req.PatientRecordID)
}

func (f *fakeClinical) CreateHistory(_ context.Context, encounterID int64, _, _ string) (int64, error) {
	return f.create(domain.KindEncounterHistory, encounterID)
}

func (f *fakeClinical) CreateFollowUp(_ context.Context, patientRecordID int64, _ time.Time, _ string) (int64, error) {
	return f.create(domain.KindFollowUpVisit, patientRecordID)
}

func (f *fakeClinical) CreateNote(_ context.Context, _ string, _, followUpID int64) (int64, error) {
	if followUpID != 0 {
		return f.create(domain.KindEncounterNote, followUpID)
	}
	return f.create(domain.KindEncounterNote)
}

func (f *fakeClinical) CreateMeasurement(_ context.Context, patientRecordID int64, _, _ float64, _ int) (int64, error) {
	return f.create(domain.KindBodyMeasurement, patientRecordID)
}

func (f *fakeClinical) CreateVitals(_ context.Context, _ float64, measurementID, historyID, noteID int64) (int64, error) {
	return f.create(domain.KindVitalSigns, measurementID, historyID, noteID)
}

func (f *fakeClinical) CreateNutritionalStatus(_ context.Context, req *port.NutritionalStatusCreate) (int64, error) {
	return f.create(domain.KindNutritionalStatus, req.VitalsID)
}

func (f *fakeClinical) CreateBreastfeedingCheck(_ context.Context, encounterID int64, _, _ string) (int64, error) {
	return f.create(domain.KindBreastfeedingCheck, encounterID)
}

func (f *fakeClinical) CreateDisabilityLink(_ context.Context, patientRecordID, _ int64) (int64, error) {
	return f.create(domain.KindDisabilityLink, patientRecordID)
}

func (f *fakeClinical) CreateDispensation(_ context.Context, patientRecordID, _ int64, _ int, _ string) (int64, error) {
	return f.create(domain.KindDispensation, patientRecordID)
}

func (f *fakeClinical) CreateSupplementLink(_ context.Context, historyID, dispensationID int64) (int64, error) {
	id, err := f.create(domain.KindSupplementLink, historyID, dispensationID)
	if err == nil {
		f.mu.Lock()
		f.links[id] = [2]int64{historyID, dispensationID}
		f.mu.Unlock()
	}
	return id, err
}

func (f *fakeClinical) Delete(_ context.Context, kind domain.EntityKind, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failDelete[kind]; err != nil {
		return err
	}
	if _, ok := f.entities[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.entities, id)
	delete(f.links, id)
	return nil
}

func (f *fakeClinical) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entities)
}

func (f *fakeClinical) count(kind domain.EntityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.entities {
		if k == kind {
			n++
		}
	}
	return n
}

func (f *fakeClinical) has(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entities[id]
	return ok
}

// seed 直接塞一个已存在的实体，供恢复测试使用。
func (f *fakeClinical) seed(kind domain.EntityKind) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.entities[f.nextID] = kind
	return f.nextID
}

// ---- 库存台账替身 ----

type fakeTx struct {
	itemID   int64
	quantity int
	reversed bool
}

type fakeLedger struct {
	mu          sync.Mutex
	stock       map[int64]int
	txs         map[int64]*fakeTx
	nextTxID    int64
	deductCalls int

	// respectCtx 让扣减与冲正像真实协作方一样尊重取消
	respectCtx bool
	// cancelAfterDeduct 在第一笔扣减落账后取消请求上下文
	cancelAfterDeduct context.CancelFunc
}

func newFakeLedger(stock map[int64]int) *fakeLedger {
	if stock == nil {
		stock = make(map[int64]int)
	}
	return &fakeLedger{stock: stock, txs: make(map[int64]*fakeTx)}
}

func (l *fakeLedger) GetAvailable(_ context.Context, itemID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	qty, ok := l.stock[itemID]
	if !ok {
		return 0, invdomain.ErrItemNotFound
	}
	return qty, nil
}

func (l *fakeLedger) Deduct(ctx context.Context, itemID int64, quantity int, _, _ string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.respectCtx {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	l.deductCalls++
	available, ok := l.stock[itemID]
	if !ok {
		return 0, invdomain.ErrItemNotFound
	}
	if quantity > available {
		return 0, &invdomain.InsufficientStockError{StockItemID: itemID, Requested: quantity, Available: available}
	}
	l.stock[itemID] = available - quantity
	l.nextTxID++
	l.txs[l.nextTxID] = &fakeTx{itemID: itemID, quantity: quantity}
	if l.cancelAfterDeduct != nil {
		l.cancelAfterDeduct()
		l.cancelAfterDeduct = nil
	}
	return l.nextTxID, nil
}

func (l *fakeLedger) Reverse(ctx context.Context, txID int64, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.respectCtx {
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	tx, ok := l.txs[txID]
	if !ok {
		return false, invdomain.ErrTransactionNotFound
	}
	if tx.reversed {
		return false, nil
	}
	tx.reversed = true
	l.stock[tx.itemID] += tx.quantity
	return true, nil
}

func (l *fakeLedger) available(itemID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[itemID]
}

// ---- 其余端口替身 ----

type fakeRepo struct {
	mu    sync.Mutex
	subs  map[string]*domain.Submission
	steps map[string][]*domain.StepRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[string]*domain.Submission), steps: make(map[string][]*domain.StepRecord)}
}

func (r *fakeRepo) Save(_ context.Context, sub *domain.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeRepo) AppendStep(ctx context.Context, submissionID string, step *domain.StepRecord) error {
	// 像真实数据库写入一样尊重取消，步骤日志的写入上下文由被测代码负责
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *step
	r.steps[submissionID] = append(r.steps[submissionID], &copied)
	return nil
}

func (r *fakeRepo) Steps(_ context.Context, submissionID string) ([]*domain.StepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.StepRecord(nil), r.steps[submissionID]...), nil
}

func (r *fakeRepo) FindUnfinished(_ context.Context) ([]*domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Submission
	for _, sub := range r.subs {
		if !sub.State.Terminal() {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) get(id string) *domain.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

func (r *fakeRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*domain.ReviewRequired
}

func (n *fakeNotifier) NotifyReviewRequired(_ context.Context, event *domain.ReviewRequired) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type stubRules struct {
	allow bool
	err   error
}

func (s *stubRules) Evaluate(string, domain.Fact) (bool, error) { return s.allow, s.err }

type stubCalculator struct {
	result *domain.NutritionResult
	err    error
}

func (s *stubCalculator) Classify(context.Context, float64, float64, int) (*domain.NutritionResult, error) {
	return s.result, s.err
}

// ---- 装配 ----

type testEnv struct {
	svc      *EncounterApplicationService
	clinical *fakeClinical
	ledger   *fakeLedger
	repo     *fakeRepo
	notifier *fakeNotifier
	rules    *stubRules
}

func newTestEnv(stock map[int64]int) *testEnv {
	env := &testEnv{
		clinical: newFakeClinical(),
		ledger:   newFakeLedger(stock),
		repo:     newFakeRepo(),
		notifier: &fakeNotifier{},
		rules:    &stubRules{allow: true},
	}
	env.svc = NewEncounterApplicationService(ServiceOptions{
		Repo:       env.repo,
		Clinical:   env.clinical,
		Ledger:     env.ledger,
		Calculator: &stubCalculator{result: &domain.NutritionResult{WeightForAge: "Normal", HeightForAge: "Normal", WeightForHeight: "Normal"}},
		Rules:      env.rules,
		Notifier:   env.notifier,
		Tracer:     noop.NewTracerProvider().Tracer("test"),

		ProcessingTimeout: 10 * time.Second,
		DispenseWorkers:   4,
	})
	return env
}

func baseRequest() *SubmitEncounterRequest {
	return &SubmitEncounterRequest{
		PatientID:     101,
		StaffID:       7,
		EncounterDate: time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC),
		Status:        "check-up",
		WeightKg:      9.5,
		HeightCm:      74,
		AgeMonths:     18,
		TemperatureC:  36.8,
		MUACCm:        13.2,
		NoteText:      "routine check-up",
	}
}

// ---- 测试 ----

func TestSubmitEncounterCommitted(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10, 6: 8})

	req := baseRequest()
	req.FollowUp = &FollowUpDTO{Date: time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC), Description: "weight check"}
	req.BreastfeedingChecks = []BreastfeedingCheckDTO{{AgeRange: "6-11 months", Status: "exclusive"}}
	req.DisabilityIDs = []int64{77}
	req.Medicines = []MedicineLineDTO{
		{StockItemID: 5, Quantity: 4, Reason: "vitamin A"},
		{StockItemID: 6, Quantity: 2, Reason: "iron supplement"},
	}

	resp, err := env.svc.SubmitEncounter(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomeCommitted), resp.Outcome)
	require.NotNil(t, resp.Chain)

	// 链路标识符齐全且实体真实存在
	chain := resp.Chain
	for _, id := range []int64{
		chain.PatientRecordID, chain.EncounterID, chain.HistoryID, chain.FollowUpID,
		chain.NoteID, chain.MeasurementID, chain.VitalsID, chain.NutritionalStatusID,
		chain.MedicineRecordID,
	} {
		assert.NotZero(t, id)
		assert.True(t, env.clinical.has(id), "entity %d should exist", id)
	}
	require.Len(t, chain.BreastfeedingCheckIDs, 1)
	require.Len(t, chain.DisabilityLinkIDs, 1)
	require.Len(t, chain.DispensationIDs, 2)
	require.Len(t, chain.SupplementLinkIDs, 2)
	require.Len(t, chain.TransactionIDs, 2)

	// 补充剂链接挂在历史记录和对应的发药记录上
	for _, linkID := range chain.SupplementLinkIDs {
		refs := env.clinical.links[linkID]
		assert.Equal(t, chain.HistoryID, refs[0])
		assert.Contains(t, chain.DispensationIDs, refs[1])
	}

	// 两种就诊记录容器各一个
	assert.Equal(t, domain.RecordTypeChildHealth, env.clinical.recordTypes[chain.PatientRecordID])
	assert.Equal(t, domain.RecordTypeMedicineRequest, env.clinical.recordTypes[chain.MedicineRecordID])

	assert.Equal(t, 6, env.ledger.available(5))
	assert.Equal(t, 6, env.ledger.available(6))

	sub := env.repo.get(resp.SubmissionID)
	require.NotNil(t, sub)
	assert.Equal(t, domain.StateCommitted, sub.State)
	assert.Equal(t, domain.OutcomeCommitted, sub.Outcome)

	// 步骤日志: 8 步链 + 喂养检查 + 残障链接 + 发药容器 + 每条药 (扣减/发药/链接)
	steps, err := env.repo.Steps(context.Background(), resp.SubmissionID)
	require.NoError(t, err)
	assert.Len(t, steps, 17)
}

func TestSubmitEncounterWithoutMedicines(t *testing.T) {
	env := newTestEnv(nil)

	resp, err := env.svc.SubmitEncounter(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomeCommitted), resp.Outcome)

	assert.Zero(t, resp.Chain.MedicineRecordID)
	assert.Empty(t, resp.Chain.DispensationIDs)
	assert.Zero(t, env.ledger.deductCalls, "ledger must not be touched without medicine lines")

	sub := env.repo.get(resp.SubmissionID)
	assert.Equal(t, domain.StateCommitted, sub.State)
}

func TestFollowUpIsOptional(t *testing.T) {
	env := newTestEnv(nil)

	resp, err := env.svc.SubmitEncounter(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Zero(t, resp.Chain.FollowUpID)
	assert.NotZero(t, resp.Chain.NoteID, "note is still created without a follow-up")
	assert.Zero(t, env.clinical.count(domain.KindFollowUpVisit))
}

func TestChainStepFailureRollsBackPriorSteps(t *testing.T) {
	env := newTestEnv(nil)
	env.clinical.failCreate[domain.KindVitalSigns] = errors.New("vitals endpoint down")

	resp, err := env.svc.SubmitEncounter(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomeFullyRolledBack), resp.Outcome)
	assert.Contains(t, resp.Error, domain.StepVitalSigns)
	assert.Empty(t, resp.Leftovers)

	// 前六步创建的实体全部被删除
	assert.Zero(t, env.clinical.total())
	assert.Zero(t, env.ledger.deductCalls)

	sub := env.repo.get(resp.SubmissionID)
	assert.Equal(t, domain.StateFailed, sub.State)
	assert.Equal(t, domain.OutcomeFullyRolledBack, sub.Outcome)
	assert.Empty(t, env.notifier.events, "full rollback needs no manual review")
}

func TestInsufficientStockTriggersFullRollback(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10})

	// 每条单独看都过得了预检，加起来超卖，权威检查在扣减里拦住第二条
	req := baseRequest()
	req.Medicines = []MedicineLineDTO{
		{StockItemID: 5, Quantity: 7, Reason: "first line"},
		{StockItemID: 5, Quantity: 7, Reason: "second line"},
	}

	resp, err := env.svc.SubmitEncounter(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomeFullyRolledBack), resp.Outcome)
	assert.Contains(t, resp.Error, domain.StepDispense)

	// 成功的那笔扣减被冲正，库存回到原值
	assert.Equal(t, 10, env.ledger.available(5))
	assert.Zero(t, env.clinical.total())

	sub := env.repo.get(resp.SubmissionID)
	assert.Equal(t, domain.OutcomeFullyRolledBack, sub.Outcome)
}

func TestPartialRollbackPublishesReviewEvent(t *testing.T) {
	env := newTestEnv(nil)
	env.clinical.failCreate[domain.KindNutritionalStatus] = errors.New("nutritional status endpoint down")
	env.clinical.failDelete[domain.KindEncounterNote] = errors.New("delete endpoint down")

	resp, err := env.svc.SubmitEncounter(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomePartiallyRolledBack), resp.Outcome)

	require.Len(t, resp.Leftovers, 1)
	assert.Equal(t, string(domain.KindEncounterNote), resp.Leftovers[0].Kind)

	require.Len(t, env.notifier.events, 1)
	event := env.notifier.events[0]
	assert.Equal(t, resp.SubmissionID, event.SubmissionID)
	assert.Equal(t, int64(101), event.PatientID)
	require.Len(t, event.Leftovers, 1)
	assert.Equal(t, string(domain.KindEncounterNote), event.Leftovers[0].Kind)

	// 其余实体仍被成功删除
	assert.Equal(t, 1, env.clinical.total())
	sub := env.repo.get(resp.SubmissionID)
	assert.Equal(t, domain.OutcomePartiallyRolledBack, sub.Outcome)
}

func TestEdemaRuleBlocksSubmissionBeforeSideEffects(t *testing.T) {
	env := newTestEnv(nil)
	env.rules.allow = false

	_, err := env.svc.SubmitEncounter(context.Background(), baseRequest())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "edemaSeverity", verr.Field)

	assert.Zero(t, env.clinical.createCalls, "validation failure must not touch collaborators")
	assert.Zero(t, env.repo.size(), "no submission is persisted for rejected payloads")
}

func TestStockPrecheckRejectsObviousShortage(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 2})

	req := baseRequest()
	req.Medicines = []MedicineLineDTO{{StockItemID: 5, Quantity: 5}}

	_, err := env.svc.SubmitEncounter(context.Background(), req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "medicines", verr.Field)

	assert.Zero(t, env.clinical.createCalls)
	assert.Zero(t, env.ledger.deductCalls)
	assert.Equal(t, 2, env.ledger.available(5))
}

func TestInvalidPayloadRejected(t *testing.T) {
	env := newTestEnv(nil)

	req := baseRequest()
	req.PatientID = 0

	_, err := env.svc.SubmitEncounter(context.Background(), req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patientId", verr.Field)
	assert.Zero(t, env.clinical.createCalls)
}

func TestCancellationBeforeDispensingRollsBackChain(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10})

	// 链建完、碰库存之前的取消点生效
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := baseRequest()
	req.Medicines = []MedicineLineDTO{{StockItemID: 5, Quantity: 4}}
	resp, err := env.svc.SubmitEncounter(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomeFullyRolledBack), resp.Outcome)
	assert.Contains(t, resp.Error, "cancelled before dispensing")

	// 链上的实体全部删除，库存从未被触碰
	assert.Zero(t, env.clinical.total())
	assert.Zero(t, env.ledger.deductCalls)
	assert.Equal(t, 10, env.ledger.available(5))

	sub := env.repo.get(resp.SubmissionID)
	assert.Equal(t, domain.StateFailed, sub.State)
	assert.Equal(t, domain.OutcomeFullyRolledBack, sub.Outcome)
}

func TestCancellationDuringDispensingReversesDeduction(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10, 6: 10})

	// 第一笔扣减落账后取消请求上下文，第二笔被协作方拒绝
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.ledger.respectCtx = true
	env.ledger.cancelAfterDeduct = cancel

	req := baseRequest()
	req.Medicines = []MedicineLineDTO{
		{StockItemID: 5, Quantity: 4, Reason: "vitamin A"},
		{StockItemID: 6, Quantity: 4, Reason: "iron supplement"},
	}
	resp, err := env.svc.SubmitEncounter(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, string(domain.OutcomeFullyRolledBack), resp.Outcome)
	assert.Empty(t, resp.Leftovers)

	// 已落账的扣减在脱离取消的上下文里被冲正，库存回到原值
	assert.Equal(t, 10, env.ledger.available(5))
	assert.Equal(t, 10, env.ledger.available(6))
	assert.Zero(t, env.clinical.total())

	// 取消路径上的扣减仍然留在步骤日志里，崩溃恢复才有据可查
	steps, stepErr := env.repo.Steps(context.Background(), resp.SubmissionID)
	require.NoError(t, stepErr)
	var txLogged bool
	for _, rec := range steps {
		if rec.TransactionID != 0 {
			txLogged = true
		}
	}
	assert.True(t, txLogged, "deduction must be recorded even on the cancelled path")
}

func TestConcurrentSubmissionsNeverOversell(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10})

	// 两次并发提交各要 7 件，库存只有 10: 恰好一次成功
	results := make(chan string, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := baseRequest()
			req.Medicines = []MedicineLineDTO{{StockItemID: 5, Quantity: 7}}
			resp, err := env.svc.SubmitEncounter(context.Background(), req)
			if err != nil {
				// 输家可能在预检就被拦下，同样算被拒绝
				var verr *domain.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("unexpected submit error: %v", err)
				}
				results <- "rejected"
				return
			}
			results <- resp.Outcome
		}()
	}
	wg.Wait()
	close(results)

	committed, lost := 0, 0
	for outcome := range results {
		switch outcome {
		case string(domain.OutcomeCommitted):
			committed++
		default:
			lost++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 3, env.ledger.available(5))
}

func TestLedgerReconciliationAcrossSubmissions(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 30})

	// 三次成功提交
	for i := 0; i < 3; i++ {
		req := baseRequest()
		req.Medicines = []MedicineLineDTO{{StockItemID: 5, Quantity: 4}}
		resp, err := env.svc.SubmitEncounter(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, string(domain.OutcomeCommitted), resp.Outcome)
	}

	// 一次在扣减之后失败、被完整回滚的提交
	env.clinical.failCreate[domain.KindSupplementLink] = errors.New("link endpoint down")
	req := baseRequest()
	req.Medicines = []MedicineLineDTO{{StockItemID: 5, Quantity: 5}}
	resp, err := env.svc.SubmitEncounter(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, string(domain.OutcomeFullyRolledBack), resp.Outcome)

	// 只有提交成功的扣减留在账上
	assert.Equal(t, 30-3*4, env.ledger.available(5))
}

func TestRecoverPendingCompensatesFromStepLog(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10})
	ctx := context.Background()

	// 模拟一次崩溃: 实体和扣减存在，提交停在发药阶段
	recordID := env.clinical.seed(domain.KindPatientRecord)
	encounterID := env.clinical.seed(domain.KindClinicalEncounter)
	txID, err := env.ledger.Deduct(ctx, 5, 4, "staff:7", "")
	require.NoError(t, err)
	assert.Equal(t, 6, env.ledger.available(5))

	sub, err := domain.NewSubmission(&domain.EncounterInput{PatientID: 101, StaffID: 7})
	require.NoError(t, err)
	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.BeginDispensing())
	require.NoError(t, env.repo.Save(ctx, sub))

	for _, rec := range []*domain.StepRecord{
		{Step: domain.StepPatientRecord, EntityKind: domain.KindPatientRecord, RemoteID: recordID},
		{Step: domain.StepClinicalEncounter, EntityKind: domain.KindClinicalEncounter, RemoteID: encounterID},
		{Step: domain.StepDispense, TransactionID: txID},
	} {
		require.NoError(t, env.repo.AppendStep(ctx, sub.ID, rec))
	}

	require.NoError(t, env.svc.RecoverPending(ctx))

	assert.False(t, env.clinical.has(recordID))
	assert.False(t, env.clinical.has(encounterID))
	assert.Equal(t, 10, env.ledger.available(5))

	recovered := env.repo.get(sub.ID)
	assert.Equal(t, domain.StateFailed, recovered.State)
	assert.Equal(t, domain.OutcomeFullyRolledBack, recovered.Outcome)
	assert.Empty(t, env.notifier.events)
}

func TestRecoverPendingSkipsAlreadyCompensated(t *testing.T) {
	env := newTestEnv(map[int64]int{5: 10})
	ctx := context.Background()

	// 步骤日志里的实体已经被上一次(中断的)补偿删掉了
	recordID := env.clinical.seed(domain.KindPatientRecord)
	require.NoError(t, env.clinical.Delete(ctx, domain.KindPatientRecord, recordID))

	// 扣减也已经被冲正过
	txID, err := env.ledger.Deduct(ctx, 5, 4, "staff:7", "")
	require.NoError(t, err)
	applied, err := env.ledger.Reverse(ctx, txID, "system:rollback")
	require.NoError(t, err)
	require.True(t, applied)

	sub, err := domain.NewSubmission(&domain.EncounterInput{PatientID: 101, StaffID: 7})
	require.NoError(t, err)
	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.BeginCompensating())
	require.NoError(t, env.repo.Save(ctx, sub))
	require.NoError(t, env.repo.AppendStep(ctx, sub.ID, &domain.StepRecord{Step: domain.StepPatientRecord, EntityKind: domain.KindPatientRecord, RemoteID: recordID}))
	require.NoError(t, env.repo.AppendStep(ctx, sub.ID, &domain.StepRecord{Step: domain.StepDispense, TransactionID: txID}))

	require.NoError(t, env.svc.RecoverPending(ctx))

	// 跳过不算失败: 结果是完全回滚，库存没有被二次恢复
	recovered := env.repo.get(sub.ID)
	assert.Equal(t, domain.OutcomeFullyRolledBack, recovered.Outcome)
	assert.Equal(t, 10, env.ledger.available(5))
	assert.Empty(t, env.notifier.events)
}
