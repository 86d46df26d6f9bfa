package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingap/internal/service/encounter/domain"
)

const edemaRule = `fact.weightForHeight != "Severe Acute Malnutrition" || fact.edemaSeverity != ""`

func TestEdemaRuleEvaluation(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	cases := []struct {
		name string
		fact domain.Fact
		want bool
	}{
		{
			name: "severe acute malnutrition without edema severity is rejected",
			fact: domain.Fact{WeightForHeight: "Severe Acute Malnutrition"},
			want: false,
		},
		{
			name: "severe acute malnutrition with edema severity passes",
			fact: domain.Fact{WeightForHeight: "Severe Acute Malnutrition", EdemaSeverity: "+2"},
			want: true,
		},
		{
			name: "normal classification needs no edema severity",
			fact: domain.Fact{WeightForHeight: "Normal"},
			want: true,
		},
		{
			name: "moderate classification needs no edema severity",
			fact: domain.Fact{WeightForHeight: "Moderate Acute Malnutrition"},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(edemaRule, tc.fact)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRuleCanUseNumericFields(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	got, err := engine.Evaluate(`fact.muacCm < 11.5`, domain.Fact{MUACCm: 10.9})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = engine.Evaluate(`fact.muacCm < 11.5`, domain.Fact{MUACCm: 13.2})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestRuleCompileErrors(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(`fact.weightForHeight ==`, domain.Fact{})
	require.Error(t, err)
}

func TestNonBooleanRuleRejected(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(`fact.weightForHeight`, domain.Fact{WeightForHeight: "Normal"})
	require.Error(t, err)
}
