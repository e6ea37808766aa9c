package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipica/internal"
	"hipica/internal/normalize"
)

func testRunners() []internal.Runner {
	return []internal.Runner{
		{ID: 101, Name: "THUNDER BOLT", Number: 7},
		{ID: 102, Name: "Rayo de Luz", Number: 3},
		{ID: 103, Name: "Gran Señor", Number: 5},
	}
}

func rec(number, name string) normalize.Record {
	raw := map[normalize.Field]string{}
	if number != "" {
		raw[normalize.FieldHorseNumber] = number
	}
	if name != "" {
		raw[normalize.FieldName] = name
	}
	return normalize.RecordFrom(raw)
}

func TestRunnerMatcher(t *testing.T) {
	m := NewRunnerMatcher(testRunners(), 0.80)

	cases := []struct {
		name   string
		record normalize.Record
		id     int
		method string
	}{
		{"number and name", rec("7", "Thunder Bolt"), 101, MatchNumberName},
		{"name with wrong number", rec("9", "thunder bolt"), 101, MatchName},
		{"accent folded name", rec("", "Gran Senor"), 103, MatchName},
		{"fuzzy name", rec("3", "Rayo de Lus"), 102, MatchFuzzy},
		{"number only", rec("5", ""), 103, MatchNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := m.Match(tc.record)
			require.True(t, ok)
			assert.Equal(t, tc.id, got.Runner.ID)
			assert.Equal(t, tc.method, got.Method)
		})
	}
}

func TestRunnerMatcherNoMatch(t *testing.T) {
	m := NewRunnerMatcher(testRunners(), 0.80)

	_, ok := m.Match(rec("7", "Desconocido"))
	assert.False(t, ok, "a named record never falls back to the saddle number")

	_, ok = m.Match(rec("", ""))
	assert.False(t, ok)
}
