package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipica/internal"
	"hipica/internal/config"
)

const hchVolante = `HIPODROMO CHILE
Viernes 21 de Noviembre de 2025
REUNION Nº 45
15:30 aprox. 1.000 Mts. (5) HANDICAP Para caballos de 3 años 2da. Serie Indice: 1-12 Peso: 56 Kilos
Opción 2-5-7-9
PREMIO: EL DORADO PREMIOS: $2.500.000 - $625.000 - $312.500 - $156.250
1 THUNDER BOLT - Lookin At Lucky 56
J. Perez - A. Soto.
1-3-2-Stud Los Andes
2 RAYO DE LUZ - Constitution 54
P. Diaz - B. Rojas
Haras Santa Elena
14:00 aprox. 1.200 Mts. (7) CONDICIONAL
APUESTAS DISPONIBLES: GDOR, QLA
1
GRAN SEÑOR - Seeking The Glory
57
L. Muñoz - C. Vera
`

const chsVolante = `CLUB HIPICO DE SANTIAGO
VIERNES 21 NOVIEMBRE 2025   RN 12
12:30 APROX. Pr. EL DORADO (123) OPC: 1-4-6-8
1 1200VARIANTEMTS. PISTA 2 ARENA
3 SASSI - Constitution 57
F. Henriquez - J. Inda
5 TORMENTA - Dunkirk 55
13:05 APROX. HANDICAP Pr. LA ROSA (130) OPC: 2-3
2 1000 PISTA 1 PASTO
1 ALFA - Beta 56
`

func TestParseVolanteTextHCH(t *testing.T) {
	v, err := ParseVolanteText("HCH", hchVolante)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-21", v.Date)
	assert.Equal(t, 45, v.Meeting)
	require.Len(t, v.Races, 2)

	first := v.Races[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "14:00", first.PostTime)
	assert.Equal(t, [4]int{0, 0, 0, 0}, first.Options)
	assert.Equal(t, 1, first.Competitors)
	require.Len(t, first.Participants, 1)
	assert.Equal(t, "GRAN SEÑOR", first.Participants[0].Name)
	assert.Equal(t, "L. Muñoz", first.Participants[0].Jockey)
	require.NotNil(t, first.Participants[0].Weight)
	assert.Equal(t, 57, *first.Participants[0].Weight)
	assert.Equal(t, "C. Vera", first.Participants[0].Trainer)
	assert.Equal(t, 1200, first.Distance)
	assert.Equal(t, "7", first.Code)
	assert.Equal(t, "CONDICIONAL", first.Kind)
	assert.Empty(t, first.Series, "series is kept for handicaps only")
	assert.Equal(t, []string{"Ganador", "Quinela"}, first.Bets)
	assert.Equal(t, [4]int{}, first.Prizes)

	second := v.Races[1]
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, "15:30", second.PostTime)
	assert.Equal(t, [4]int{2, 5, 7, 9}, second.Options)
	assert.Equal(t, 2, second.Competitors)
	assert.Equal(t, "THUNDER BOLT", second.Participants[0].Name)
	assert.Equal(t, "J. Perez", second.Participants[0].Jockey)
	assert.Equal(t, 56, *second.Participants[0].Weight)
	assert.Equal(t, "A. Soto", second.Participants[0].Trainer)
	assert.Equal(t, "Stud Los Andes", second.Participants[0].Stud)
	assert.Equal(t, "Haras Santa Elena", second.Participants[1].Stud)

	assert.Equal(t, 1000, second.Distance)
	assert.Equal(t, "5", second.Code)
	assert.Equal(t, "HANDICAP", second.Kind)
	assert.Equal(t, "2", second.Series)
	assert.Equal(t, "1-12", second.Index)
	assert.Equal(t, "Para caballos de 3 años", second.Condition)
	assert.Equal(t, 56, second.WeightCategory)
	assert.Equal(t, "EL DORADO", second.PrizeName)
	assert.Equal(t, [4]int{2500000, 625000, 312500, 156250}, second.Prizes)
	assert.Empty(t, second.Bets)
}

func TestParseRaceTitle(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		kind      string
		series    string
		index     string
		condition string
	}{
		{"clasico condicional", "CLASICO CONDICIONAL Para potrillos Peso: 57 Kilos", "CLASICO CONDICIONAL", "", "", "Para potrillos"},
		{"ordinal series outside handicap", "Condicional Para 4 años 3ra. Serie", "CONDICIONAL", "", "", "Para 4 años"},
		{"plain series", "HANDICAP Para 3 años Serie Indice 14 al 1", "HANDICAP", "", "", "Para 3 años"},
		{"series code", "CONDICIONAL Para 2 años SERIE-B", "CONDICIONAL", "", "", "Para 2 años"},
		{"index without series", "HANDICAP Indice: 8-1", "HANDICAP", "", "8-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var race internal.VolanteRace
			parseRaceTitle(&race, tt.title)
			assert.Equal(t, tt.kind, race.Kind)
			assert.Equal(t, tt.series, race.Series)
			assert.Equal(t, tt.index, race.Index)
			assert.Equal(t, tt.condition, race.Condition)
		})
	}
}

func TestParseBets(t *testing.T) {
	got := parseBets("APUESTAS DISP: gdor; A 2º, a 3°, QLA-PLA, EXAC, TRIF, SUP, PICK 3 PREMIO: X")
	assert.Equal(t, []string{"Ganador", "A Segundo", "A Tercero", "Quinela-Place", "Exacta", "Trifecta", "Superfecta", "PICK 3"}, got)
	assert.Nil(t, parseBets("sin apuestas"))
}

func TestParseVolanteTextCHS(t *testing.T) {
	v, err := ParseVolanteText("CHS", chsVolante)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-21", v.Date)
	assert.Equal(t, 12, v.Meeting)
	require.Len(t, v.Races, 2)

	assert.Equal(t, 1, v.Races[0].Number)
	assert.Equal(t, [4]int{1, 4, 6, 8}, v.Races[0].Options)
	assert.Equal(t, 2, v.Races[0].Competitors)
	assert.Equal(t, "F. Henriquez", v.Races[0].Participants[0].Jockey)
	assert.Equal(t, "J. Inda", v.Races[0].Participants[0].Trainer)
	assert.Equal(t, "123", v.Races[0].Code)
	assert.Equal(t, "EL DORADO", v.Races[0].PrizeName)
	assert.Equal(t, 1200, v.Races[0].Distance)
	assert.Equal(t, "VARIANTEMTS. PISTA 2 ARENA", v.Races[0].Condition)
	assert.Empty(t, v.Races[0].Kind)

	assert.Equal(t, 2, v.Races[1].Number)
	assert.Equal(t, [4]int{0, 0, 0, 0}, v.Races[1].Options, "fewer than four options")
	assert.Equal(t, 1, v.Races[1].Competitors)
	assert.Equal(t, "HANDICAP", v.Races[1].Kind)
	assert.Equal(t, "LA ROSA", v.Races[1].PrizeName)
	assert.Equal(t, "130", v.Races[1].Code)
	assert.Equal(t, 1000, v.Races[1].Distance)
	assert.Equal(t, "PISTA 1 PASTO", v.Races[1].Condition)
}

func TestParseVolanteTextWithoutDate(t *testing.T) {
	_, err := ParseVolanteText("HCH", "REUNION Nº 4\n14:00 aprox.")
	assert.ErrorIs(t, err, ErrNoVolanteDate)
}

func TestVolanteServiceProcessContent(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Config{PDFScrapingPath: t.TempDir()}
	svc := NewVolanteService(db, cfg)
	texts := map[string]string{"pdf-hch": hchVolante, "pdf-hch-2": hchVolante, "pdf-chs": chsVolante}
	svc.extract = func(b []byte) (string, error) { return texts[string(b)], nil }

	res, err := svc.ProcessContent("volante_hch.pdf", []byte("pdf-hch"), "", "2025-11-21")
	require.NoError(t, err)
	assert.Equal(t, VolanteProcessed, res.Status)
	assert.Equal(t, filepath.Join(cfg.VolanteJSONDir("HCH"), "volante_volante_hch_2025-11-21.json"), res.Output)
	assert.FileExists(t, res.Output)

	stored, err := db.GetVolante("HCH", "2025-11-21")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Races, 2)
	status, err := db.GetStatus("HCH", "2025-11-21")
	require.NoError(t, err)
	assert.True(t, status.Volante)

	res, err = svc.ProcessContent("volante_hch.pdf", []byte("pdf-hch"), "", "")
	require.NoError(t, err)
	assert.Equal(t, VolanteSkippedDone, res.Status)

	res, err = svc.ProcessContent("volante_hch.pdf", []byte("pdf-hch-2"), "HCH", "")
	require.NoError(t, err)
	assert.Equal(t, VolanteProcessed, res.Status, "new content under the same name is parsed again")

	res, err = svc.ProcessContent("reunion.pdf", []byte("pdf-chs"), "CHS", "2025-11-22")
	require.NoError(t, err)
	assert.Equal(t, VolanteSkippedDate, res.Status)
	_, err = os.Stat(filepath.Join(cfg.VolanteJSONDir("CHS"), "volante_reunion_2025-11-21.json"))
	assert.True(t, os.IsNotExist(err))

	_, err = svc.ProcessContent("sin_nombre.pdf", []byte("pdf-chs"), "", "")
	assert.ErrorIs(t, err, ErrUnknownVenue)
}

func TestVolanteServiceIgnoresLeftoverJSON(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Config{PDFScrapingPath: t.TempDir()}
	svc := NewVolanteService(db, cfg)
	svc.extract = func([]byte) (string, error) { return chsVolante, nil }

	leftover := filepath.Join(cfg.VolanteJSONDir("CHS"), "volante_chs_2025-11-21.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(leftover), 0o755))
	require.NoError(t, os.WriteFile(leftover, []byte(`{"races":[]}`), 0o644))

	res, err := svc.ProcessContent("chs.pdf", []byte("pdf-chs"), "CHS", "")
	require.NoError(t, err)
	assert.Equal(t, VolanteProcessed, res.Status)
	assert.Equal(t, leftover, res.Output)

	stored, err := db.GetVolante("CHS", "2025-11-21")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Races, 2)

	status, err := db.GetStatus("CHS", "2025-11-21")
	require.NoError(t, err)
	assert.Equal(t, "--V", status.Flags())

	data, err := os.ReadFile(leftover)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_file": "chs.pdf"`)
}
