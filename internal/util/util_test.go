package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"3,20", 3.2, true},
		{"$4.50", 4.5, true},
		{"56.5", 56.5, true},
		{"55k", 55, true},
		{"55 kg", 55, true},
		{"56,5 kilos", 56.5, true},
		{" 489 ", 489, true},
		{"1.00.9", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"Inf", 0, false},
		{"-infinity", 0, false},
		{"NaN", 0, false},
		{"0x1p3", 0, false},
		{"1e999", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDecimal(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
		}
	}
}

func TestParseAmount(t *testing.T) {
	got, ok := ParseAmount("$1.500.000")
	require.True(t, ok)
	assert.Equal(t, 1500000.0, got)

	got, ok = ParseAmount("2,300,000")
	require.True(t, ok)
	assert.Equal(t, 2300000.0, got)

	got, ok = ParseAmount("4,50")
	require.True(t, ok)
	assert.InDelta(t, 4.5, got, 1e-9)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "GRAN JEFE", NormalizeName("Gran Jefe (Lookin At Lucky)"))
	assert.Equal(t, "A VASQUEZ", NormalizeName("A. Vásquez"))
	assert.Equal(t, "NANDU", NormalizeName("Ñandú"))
	assert.Equal(t, "SEA", NormalizeName("  sea  "))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"EL", "REY", "SOL"}, Tokenize("El Rey Sol"))
	assert.Empty(t, Tokenize("a b"))
}

func TestDiceCoefficient(t *testing.T) {
	assert.Equal(t, 1.0, DiceCoefficient("NIGHT", "NIGHT"))
	assert.Equal(t, 0.0, DiceCoefficient("", "NIGHT"))
	assert.InDelta(t, 0.25, DiceCoefficient("NIGHT", "NACHT"), 1e-9)
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "volante_HCH_2025-11-21.pdf", SafeFileName("volante HCH/2025-11-21.pdf"))
}

func TestParseSpanishDate(t *testing.T) {
	want := time.Date(2025, time.November, 21, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-11-21",
		"21-11-2025",
		"Viernes 21 de Noviembre de 2025",
		"VIERNES 21 NOVIEMBRE 2025",
		"Reunión Nº 45 - viernes 21 de noviembre de 2025, 14:00",
	} {
		got, ok := ParseSpanishDate(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s -> %s", in, got)
	}

	_, ok := ParseSpanishDate("31 de febrero de 2025")
	assert.False(t, ok)
	_, ok = ParseSpanishDate("sin fecha")
	assert.False(t, ok)
}
