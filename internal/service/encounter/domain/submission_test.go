package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() *EncounterInput {
	return &EncounterInput{
		PatientID:     101,
		StaffID:       7,
		EncounterDate: time.Now(),
		Status:        "check-up",
		WeightKg:      9.5,
		HeightCm:      74,
		AgeMonths:     18,
		TemperatureC:  36.8,
		MUACCm:        13.2,
	}
}

func TestSubmissionHappyPath(t *testing.T) {
	sub, err := NewSubmission(validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, StateStarted, sub.State)

	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.BeginDispensing())
	require.NoError(t, sub.MarkCommitted())
	assert.Equal(t, StateCommitted, sub.State)
	assert.Equal(t, OutcomeCommitted, sub.Outcome)
	assert.True(t, sub.State.Terminal())
}

func TestSubmissionCommitWithoutDispensing(t *testing.T) {
	sub, err := NewSubmission(validInput())
	require.NoError(t, err)
	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.MarkCommitted())
	assert.Equal(t, OutcomeCommitted, sub.Outcome)
}

func TestSubmissionIllegalTransitions(t *testing.T) {
	sub, err := NewSubmission(validInput())
	require.NoError(t, err)

	// 不能跳过链创建直接发药
	assert.Error(t, sub.BeginDispensing())

	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.MarkCommitted())

	// 终态之后一切转换都非法
	assert.Error(t, sub.BeginChainBuilding())
	assert.Error(t, sub.BeginCompensating())
	assert.Error(t, sub.MarkFailed(OutcomeFullyRolledBack))
}

func TestSubmissionCompensationPath(t *testing.T) {
	sub, err := NewSubmission(validInput())
	require.NoError(t, err)
	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.BeginCompensating())

	// 恢复流程可能对已处于补偿中的提交再次进入补偿
	require.NoError(t, sub.BeginCompensating())

	require.NoError(t, sub.MarkFailed(OutcomePartiallyRolledBack))
	assert.Equal(t, StateFailed, sub.State)
	assert.Equal(t, OutcomePartiallyRolledBack, sub.Outcome)
	assert.True(t, sub.State.Terminal())
}

func TestMarkFailedRejectsCommittedOutcome(t *testing.T) {
	sub, err := NewSubmission(validInput())
	require.NoError(t, err)
	require.NoError(t, sub.BeginChainBuilding())
	require.NoError(t, sub.BeginCompensating())
	assert.Error(t, sub.MarkFailed(OutcomeCommitted))
}

func TestEncounterInputValidate(t *testing.T) {
	assert.NoError(t, validInput().Validate())

	missingPatient := validInput()
	missingPatient.PatientID = 0
	var verr *ValidationError
	require.ErrorAs(t, missingPatient.Validate(), &verr)
	assert.Equal(t, "patientId", verr.Field)

	badLine := validInput()
	badLine.Medicines = []MedicineLine{{StockItemID: 5, Quantity: 0}}
	require.ErrorAs(t, badLine.Validate(), &verr)
	assert.Equal(t, "medicines", verr.Field)

	badFollowUp := validInput()
	badFollowUp.FollowUp = &FollowUpRequest{}
	require.ErrorAs(t, badFollowUp.Validate(), &verr)
	assert.Equal(t, "followUp.date", verr.Field)
}
