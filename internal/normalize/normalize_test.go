package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pad(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

var hchRow = []string{
	"1", "4", "Gran Jefe (Lookin At Lucky)", "4", "489", "1/2", "56k", "A. Vásquez",
	"12.1", "24.3", "36.5", "48.7", "1.00.9", "1.13.2", "1:25.31",
	"", "", "", "", "4,50",
}

func TestNormalizeStandardRow(t *testing.T) {
	row := pad([]string{"1", "7", "Thunder Bolt", "J. Perez", "56.5", "1:23.45", "3.20", "2 1/2"}, 12)

	res, err := Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, "standard", res.Template)

	rec := res.Record
	assert.Equal(t, "1", rec.Get(FieldPosition).String())
	assert.Equal(t, 7, rec.Get(FieldHorseNumber).Int())
	assert.Equal(t, "Thunder Bolt", rec.Get(FieldName).String())
	assert.Equal(t, "J. Perez", rec.Get(FieldJockey).String())
	assert.Equal(t, 56.5, rec.Get(FieldWeight).Float())
	assert.Equal(t, "1:23.45", rec.Get(FieldTime).String())
	assert.Equal(t, 3.2, rec.Get(FieldOdds).Float())
	assert.Equal(t, "2 1/2", rec.Get(FieldMargin).String())
	assert.Empty(t, res.Sire)

	assert.ElementsMatch(t,
		[]Field{FieldAge, FieldHorseWeight, FieldTrainer, FieldStud},
		rec.Unavailable())

	require.Len(t, res.Warnings, 2)
	assert.Equal(t, FieldTrainer, res.Warnings[0].Field)
	assert.Equal(t, FieldStud, res.Warnings[1].Field)
	assert.Equal(t, "trainer unresolved: no matching cell", res.Warnings[0].String())

	for _, src := range res.Sources {
		assert.True(t, src.Attributed(), "cell %d", src.Index)
	}
	for i := 8; i < 12; i++ {
		assert.Equal(t, ReasonBlank, res.Sources[i].Reason)
	}
}

func TestNormalizeExtendedRow(t *testing.T) {
	res, err := Normalize(hchRow)
	require.NoError(t, err)
	assert.Equal(t, "extended", res.Template)
	assert.Empty(t, res.Warnings)

	rec := res.Record
	assert.Equal(t, "Gran Jefe", rec.Get(FieldName).String())
	assert.Equal(t, 4, rec.Get(FieldAge).Int())
	assert.Equal(t, 489, rec.Get(FieldHorseWeight).Int())
	assert.Equal(t, "1/2", rec.Get(FieldMargin).String())
	assert.Equal(t, 56.0, rec.Get(FieldWeight).Float())
	assert.Equal(t, "A. Vásquez", rec.Get(FieldJockey).String())
	assert.Equal(t, "1:25.31", rec.Get(FieldTime).String())
	assert.Equal(t, 4.5, rec.Get(FieldOdds).Float())

	src := res.Sources[14]
	assert.True(t, src.Assigned)
	assert.Equal(t, FieldTime, src.Field)
	assert.Equal(t, KindTimeCode, src.Kind)

	assert.Equal(t, ReasonSire, res.Sources[2].Reason)
	assert.True(t, res.Sources[2].Assigned)
	assert.Equal(t, "Lookin At Lucky", res.Sire)

	for i := 8; i <= 13; i++ {
		assert.Equal(t, ReasonSectional, res.Sources[i].Reason, "cell %d", i)
		assert.False(t, res.Sources[i].Assigned)
	}
	for _, s := range res.Sources {
		assert.True(t, s.Attributed(), "cell %d", s.Index)
	}
}

func TestNormalizeShapeMismatch(t *testing.T) {
	for _, width := range []int{0, 8, 10, 21, 25} {
		_, err := Normalize(make([]string, width))
		require.Error(t, err, "width %d", width)
		assert.True(t, errors.Is(err, ErrShapeMismatch))

		var shapeErr *ShapeMismatchError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, width, shapeErr.Width)
	}
}

func TestNormalizeAcceptsEveryKnownWidth(t *testing.T) {
	row := []string{"1", "7", "Thunder Bolt", "J. Perez", "56.5", "1:23.45", "3.20", "2 1/2"}
	for width := 11; width <= 20; width++ {
		res, err := Normalize(pad(row, width))
		require.NoError(t, err, "width %d", width)
		want := "standard"
		if width >= 18 {
			want = "extended"
		}
		assert.Equal(t, want, res.Template, "width %d", width)
		assert.Equal(t, "Thunder Bolt", res.Record.Get(FieldName).String(), "width %d", width)
	}
}

func TestNormalizeNonFiniteNumberIsUnavailable(t *testing.T) {
	row := append([]string(nil), hchRow...)
	row[len(row)-1] = "Inf"

	res, err := Normalize(row)
	require.NoError(t, err)
	assert.False(t, res.Record.Get(FieldOdds).Available())
	assert.Equal(t, ReasonUnparseable, res.Sources[len(row)-1].Reason)

	data, err := json.Marshal(res.Record)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
	assert.Contains(t, string(data), `"odds":null`)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	first, err := Normalize(hchRow)
	require.NoError(t, err)
	second, err := Normalize(hchRow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeContentFirstReleasesSlot(t *testing.T) {
	row := pad([]string{"J. Perez", "7", "Thunder Bolt", "56.5", "1:23.45", "3.20"}, 11)

	positional, err := New().Normalize("CHS", row)
	require.NoError(t, err)
	assert.Equal(t, "J. PEREZ", positional.Record.Get(FieldPosition).String())
	assert.False(t, positional.Record.Get(FieldJockey).Available())

	n := New(WithPrecedence("chs", ContentFirst))
	content, err := n.Normalize("CHS", row)
	require.NoError(t, err)
	assert.False(t, content.Record.Get(FieldPosition).Available())
	assert.Equal(t, "J. Perez", content.Record.Get(FieldJockey).String())
	require.NotEmpty(t, content.Warnings)
	assert.Equal(t, FieldPosition, content.Warnings[0].Field)

	// other venues keep the template default
	other, err := n.Normalize("HCH", row)
	require.NoError(t, err)
	assert.Equal(t, positional.Record, other.Record)
}

func TestNormalizeUnparseableFixedCell(t *testing.T) {
	row := append([]string(nil), hchRow...)
	row[6] = "n/d"

	res, err := Normalize(row)
	require.NoError(t, err)
	assert.False(t, res.Record.Get(FieldWeight).Available())
	assert.Equal(t, ReasonUnparseable, res.Sources[6].Reason)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, FieldWeight, res.Warnings[0].Field)
	assert.Contains(t, res.Warnings[0].Reason, "is not a decimal")
}

func TestNormalizeStatusPosition(t *testing.T) {
	row := pad([]string{"DEB", "3", "Lluvia de Mayo", "L. Torres", "55k"}, 11)
	res, err := Normalize(row)
	require.NoError(t, err)
	assert.Equal(t, "DEB", res.Record.Get(FieldPosition).String())
	assert.Equal(t, 55.0, res.Record.Get(FieldWeight).Float())
	assert.False(t, res.Record.Get(FieldTime).Available())
}

func TestRecordJSONUsesNullForUnavailable(t *testing.T) {
	row := pad([]string{"1", "7", "Thunder Bolt", "J. Perez", "56.5", "1:23.45", "3.20", "2 1/2"}, 12)
	res, err := Normalize(row)
	require.NoError(t, err)

	data, err := json.Marshal(res.Record)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"position": "1", "horse_number": 7, "name": "Thunder Bolt",
		"age": null, "horse_weight": null, "margin": "2 1/2",
		"weight": 56.5, "jockey": "J. Perez", "trainer": null, "stud": null,
		"time": "1:23.45", "odds": 3.2
	}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, res.Record, back)
}

func TestRecordFromCoercesShapes(t *testing.T) {
	rec := RecordFrom(map[Field]string{
		FieldPosition:    "2°",
		FieldHorseNumber: "07",
		FieldTime:        "1.23,45",
		FieldOdds:        "$12,30",
		FieldAge:         "cuatro",
	})
	assert.Equal(t, "2", rec.Get(FieldPosition).String())
	assert.Equal(t, 7, rec.Get(FieldHorseNumber).Int())
	assert.Equal(t, "1:23.45", rec.Get(FieldTime).String())
	assert.Equal(t, 12.3, rec.Get(FieldOdds).Float())
	assert.False(t, rec.Get(FieldAge).Available())
}

func TestParsePrecedenceMap(t *testing.T) {
	m, err := ParsePrecedenceMap("hch=positional, CHS=content")
	require.NoError(t, err)
	assert.Equal(t, map[string]Precedence{"HCH": PositionalFirst, "CHS": ContentFirst}, m)

	_, err = ParsePrecedenceMap("CHS")
	assert.Error(t, err)
	_, err = ParsePrecedenceMap("CHS=sideways")
	assert.Error(t, err)
}

func TestNormalizerCustomTables(t *testing.T) {
	narrow := Template{
		Name:     "narrow",
		MinWidth: 3,
		MaxWidth: 3,
		Fixed: []Slot{
			{Index: 0, Field: FieldPosition, Accept: []Kind{KindInteger}},
			{Index: 1, Field: FieldHorseNumber, Accept: []Kind{KindInteger}},
			{Index: 2, Field: FieldName, Accept: []Kind{KindOther}},
		},
		Optional: []Field{FieldAge, FieldHorseWeight, FieldMargin, FieldWeight, FieldJockey, FieldTrainer, FieldStud, FieldTime, FieldOdds},
		Leftover: ReasonUnclaimed,
	}
	n := New(WithTemplates(narrow), WithRules(DefaultRules[:1]))

	res, err := n.Normalize("HCH", []string{"2", "5", "Rayo Veloz"})
	require.NoError(t, err)
	assert.Equal(t, "narrow", res.Template)
	assert.Equal(t, "2", res.Record.Get(FieldPosition).String())
	assert.Equal(t, 5, res.Record.Get(FieldHorseNumber).Int())
	assert.Equal(t, "Rayo Veloz", res.Record.Get(FieldName).String())
	assert.Empty(t, res.Warnings)
	assert.Equal(t, KindOther, res.Sources[0].Kind)

	_, err = n.Normalize("HCH", pad(nil, 12))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
