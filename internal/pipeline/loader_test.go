package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipica/internal"
	"hipica/internal/config"
	"hipica/internal/normalize"
)

func writeArtifacts(t *testing.T, cfg config.Config) {
	t.Helper()
	meeting := internal.Meeting{
		ID: 900, Date: testDate, VenueCode: "HCH", VenueName: "Hipódromo Chile",
		Races: []internal.Race{{ID: 11, Number: 1, Runners: []internal.Runner{{ID: 101, Name: "Gran Jefe", Number: 4}}}},
	}
	runner := 101
	results := internal.ResultsFile{
		Venue: "HCH", Date: testDate, MeetingID: 900,
		Races: []internal.RaceResult{{RaceID: 11, RaceNumber: 1, Rows: []internal.ResultRow{{
			Row:      1,
			Record:   normalize.RecordFrom(map[normalize.Field]string{normalize.FieldPosition: "1", normalize.FieldName: "Gran Jefe"}),
			RunnerID: &runner,
		}}}},
	}
	volante := internal.Volante{Venue: "CHS", Date: "2025-11-22", Meeting: 12, SourceFile: "x.pdf",
		Races: []internal.VolanteRace{{Number: 1, PostTime: "12:30", Options: [4]int{1, 4, 6, 8}, Competitors: 2}}}

	require.NoError(t, writeJSON(filepath.Join(cfg.ProgramsDir(), "programas_900_2025-11-21.json"), meeting))
	require.NoError(t, writeJSON(filepath.Join(cfg.ProgramsDir(), "detalles", "carrera_11_2025-11-21.json"), meeting.Races[0]))
	require.NoError(t, writeJSON(filepath.Join(cfg.ResultsDir(), "resultados_detalle_HCH_2025-11-21.json"), results))
	require.NoError(t, writeJSON(filepath.Join(cfg.VolanteJSONDir("CHS"), "volante_x_2025-11-22.json"), volante))
	require.NoError(t, writeJSON(filepath.Join(cfg.WebScrapingPath, "notes.json"), map[string]string{"a": "b"}))
}

func TestArtifactKind(t *testing.T) {
	cases := map[string]string{
		"programas_900_2025-11-21.json":          ArtifactProgram,
		"resultados_detalle_HCH_2025-11-21.json": ArtifactResults,
		"volante_reunion_45_2025-11-21.json":     ArtifactVolante,
		"carrera_11_2025-11-21.json":             "",
		"programas_900.json":                     "",
	}
	for name, want := range cases {
		got, _ := ArtifactKind(name)
		assert.Equal(t, want, got, name)
	}
}

func TestLoaderLoadsOnce(t *testing.T) {
	root := t.TempDir()
	cfg := config.Config{WebScrapingPath: filepath.Join(root, "web"), PDFScrapingPath: filepath.Join(root, "pdf")}
	writeArtifacts(t, cfg)
	db := openTestDB(t)
	loader := NewLoader(db)

	summary, err := loader.LoadDirectory(root)
	require.NoError(t, err)
	assert.Equal(t, LoadSummary{Loaded: 3}, summary)

	summary, err = loader.LoadDirectory(root)
	require.NoError(t, err)
	assert.Equal(t, LoadSummary{Skipped: 3}, summary)

	rows, err := db.ListResults("HCH", testDate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Gran Jefe", rows[0].Record.Get(normalize.FieldName).String())

	hch, err := db.GetStatus("HCH", testDate)
	require.NoError(t, err)
	assert.Equal(t, "PR-", hch.Flags())
	chs, err := db.GetStatus("CHS", "2025-11-22")
	require.NoError(t, err)
	assert.Equal(t, "--V", chs.Flags())
}

func TestStatusRebuildFromArtifacts(t *testing.T) {
	root := t.TempDir()
	cfg := config.Config{WebScrapingPath: filepath.Join(root, "web"), PDFScrapingPath: filepath.Join(root, "pdf")}
	writeArtifacts(t, cfg)
	db := openTestDB(t)
	require.NoError(t, db.MarkStatus("HCH", testDate, internal.StageVolante))

	svc := NewStatusService(db, cfg)
	rebuilt, err := svc.Rebuild()
	require.NoError(t, err)
	require.Len(t, rebuilt, 2)
	assert.Equal(t, "HCH", rebuilt[0].Venue)
	assert.Equal(t, "PR-", rebuilt[0].Flags())
	assert.Equal(t, "CHS", rebuilt[1].Venue)
	assert.Equal(t, "--V", rebuilt[1].Flags())

	got, err := svc.Get("HCH", testDate)
	require.NoError(t, err)
	assert.Equal(t, "PRV", got.Flags(), "flags already set survive a rebuild")

	all, err := svc.List("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStatusRebuildWithoutArtifacts(t *testing.T) {
	root := t.TempDir()
	cfg := config.Config{WebScrapingPath: filepath.Join(root, "web"), PDFScrapingPath: filepath.Join(root, "pdf")}
	rebuilt, err := NewStatusService(openTestDB(t), cfg).Rebuild()
	require.NoError(t, err)
	assert.Empty(t, rebuilt)
}
