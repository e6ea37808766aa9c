package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipica/internal"
	"hipica/internal/normalize"
	"hipica/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "hipica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleMeeting() internal.Meeting {
	weight := 56.5
	return internal.Meeting{
		ID: 900, Date: "2025-11-21", VenueCode: "HCH", VenueName: "Hipódromo Chile", Number: 45,
		Races: []internal.Race{{
			ID: 9001, Number: 1, PostTime: "14:00", Name: "Premio Apertura", Prize: util.FloatPtr(2500000), Distance: 1200,
			Runners: []internal.Runner{
				{ID: 1, Name: "Gran Jefe", Number: 4, Jockey: "A. Vásquez", Weight: &weight},
				{ID: 2, Name: "Thunder Bolt", Number: 7, Jockey: "J. Perez"},
			},
		}},
	}
}

func TestUpsertMeetingRoundTripAndStatus(t *testing.T) {
	db := openTestDB(t)
	m := sampleMeeting()

	require.NoError(t, db.UpsertMeeting(m))
	m.Races[0].Name = "Premio Apertura (Hcp)"
	require.NoError(t, db.UpsertMeeting(m))

	got, err := db.GetMeeting("HCH", "2025-11-21")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 45, got.Number)
	assert.Equal(t, "Hipódromo Chile", got.VenueName)
	require.Len(t, got.Races, 1)
	assert.Equal(t, "Premio Apertura (Hcp)", got.Races[0].Name)
	require.NotNil(t, got.Races[0].Prize)
	assert.Equal(t, 2500000.0, *got.Races[0].Prize)
	require.Len(t, got.Races[0].Runners, 2)
	assert.Equal(t, 56.5, *got.Races[0].Runners[0].Weight)
	assert.Nil(t, got.Races[0].Runners[1].Weight)

	status, err := db.GetStatus("HCH", "2025-11-21")
	require.NoError(t, err)
	assert.Equal(t, "P--", status.Flags())

	missing, err := db.GetMeeting("CHS", "2025-11-21")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReplaceRaceResults(t *testing.T) {
	db := openTestDB(t)
	runnerID := 2

	first := normalize.RecordFrom(map[normalize.Field]string{
		normalize.FieldPosition:    "1",
		normalize.FieldHorseNumber: "7",
		normalize.FieldName:        "Thunder Bolt",
		normalize.FieldOdds:        "3.20",
	})
	race := internal.RaceResult{
		RaceID: 9001, RaceNumber: 1,
		Rows: []internal.ResultRow{
			{Row: 1, Record: first, Sire: "Lookin At Lucky", RunnerID: &runnerID, MatchMethod: "number"},
			{Row: 2, Record: normalize.RecordFrom(map[normalize.Field]string{normalize.FieldPosition: "2"})},
		},
	}
	require.NoError(t, db.ReplaceRaceResults("HCH", "2025-11-21", race))

	race.Rows = race.Rows[:1]
	require.NoError(t, db.ReplaceRaceResults("HCH", "2025-11-21", race))

	rows, err := db.ListResults("HCH", "2025-11-21")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first, rows[0].Record)
	assert.Equal(t, "Lookin At Lucky", rows[0].Sire)
	require.NotNil(t, rows[0].RunnerID)
	assert.Equal(t, 2, *rows[0].RunnerID)

	status, err := db.GetStatus("HCH", "2025-11-21")
	require.NoError(t, err)
	assert.Equal(t, "-R-", status.Flags())
}

func TestReplaceRaceResultsWithoutRowsKeepsStatus(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.ReplaceRaceResults("CHS", "2025-11-21", internal.RaceResult{RaceNumber: 4, Skipped: 9}))

	status, err := db.GetStatus("CHS", "2025-11-21")
	require.NoError(t, err)
	assert.Equal(t, "---", status.Flags())
}

func TestUpsertVolanteAndStatusMerge(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertMeeting(sampleMeeting()))

	v := internal.Volante{
		Venue: "HCH", Date: "2025-11-21", Meeting: 45, SourceFile: "volante.pdf",
		Races: []internal.VolanteRace{
			{
				Number: 1, PostTime: "14:00", Options: [4]int{4, 7, 1, 2}, Competitors: 9,
				Distance: 1000, Code: "5", Kind: "HANDICAP", Condition: "Para caballos de 3 años", Series: "2",
				Index: "1-12", WeightCategory: 56, Bets: []string{"Ganador", "Quinela"}, PrizeName: "El Dorado",
				Prizes:       [4]int{2500000, 625000, 312500, 156250},
				Participants: []internal.VolanteParticipant{{Number: 1, Name: "THUNDER BOLT", Jockey: "J. Perez", Trainer: "A. Soto", Stud: "Los Andes"}},
			},
			{Number: 2, PostTime: "14:30", Competitors: 11},
		},
	}
	require.NoError(t, db.UpsertVolante(v))
	v.Races = v.Races[:1]
	require.NoError(t, db.UpsertVolante(v))

	got, err := db.GetVolante("HCH", "2025-11-21")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Races, 1)
	assert.Equal(t, v.Races[0], got.Races[0])

	status, err := db.GetStatus("HCH", "2025-11-21")
	require.NoError(t, err)
	assert.Equal(t, "P-V", status.Flags())

	require.NoError(t, db.MergeStatuses([]internal.EventStatus{
		{Venue: "HCH", Date: "2025-11-21", Results: true},
		{Venue: "CHS", Date: "2025-11-20", Program: true},
	}))
	all, err := db.ListStatuses("", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "PRV", all[0].Flags())
	assert.Equal(t, "CHS", all[1].Venue)

	assert.Error(t, db.MarkStatus("HCH", "2025-11-21", internal.Stage("X")))
}

func TestProcessedFilesAndVolanteFiles(t *testing.T) {
	db := openTestDB(t)

	done, err := db.IsFileProcessed("a.json", "abc")
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, db.MarkFileProcessed("a.json", "abc", "results"))
	done, err = db.IsFileProcessed("a.json", "abc")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = db.IsFileProcessed("a.json", "def")
	require.NoError(t, err)
	assert.False(t, done)

	f := internal.VolanteFile{Venue: "CHS", Path: "/tmp/v.pdf", Hash: "h1", Provider: "imap", MessageID: "m1"}
	stored, created, err := db.RegisterVolanteFile(f)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = db.RegisterVolanteFile(f)
	require.NoError(t, err)
	assert.False(t, created)

	pending, err := db.ListVolanteFilesByStatus("stored", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, db.UpdateVolanteFileStatus(stored.ID, "processed"))
	pending, err = db.ListVolanteFilesByStatus("stored", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, db.InsertScrapeLog(internal.ScrapeLog{Kind: "results", Venue: "HCH", Date: "2025-11-21", Status: "ok", Races: 3, Rows: 30}))
	logs, err := db.ListScrapeLogs(5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 30, logs[0].Rows)

	require.NoError(t, db.SetMetadata("last_sync", "2025-11-21"))
	value, err := db.GetMetadata("last_sync")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "2025-11-21", *value)
}

func TestOpenAddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hipica.db")
	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = conn.Exec(`
CREATE TABLE race_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT, venue TEXT NOT NULL, date TEXT NOT NULL, raceId INTEGER,
  raceNumber INTEGER NOT NULL, rowNo INTEGER NOT NULL, position TEXT, horseNumber INTEGER, name TEXT,
  age INTEGER, horseWeight INTEGER, margin TEXT, weight REAL, jockey TEXT, trainer TEXT, stud TEXT,
  time TEXT, odds REAL, runnerId INTEGER, matchMethod TEXT, recordJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP, UNIQUE(venue, date, raceNumber, rowNo)
);
CREATE TABLE volante_races (
  volanteId INTEGER NOT NULL, raceNumber INTEGER NOT NULL, postTime TEXT,
  option1 INTEGER NOT NULL DEFAULT 0, option2 INTEGER NOT NULL DEFAULT 0,
  option3 INTEGER NOT NULL DEFAULT 0, option4 INTEGER NOT NULL DEFAULT 0,
  competitors INTEGER NOT NULL DEFAULT 0, participantsJson TEXT NOT NULL DEFAULT '[]',
  PRIMARY KEY(volanteId, raceNumber)
);`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, c := range addedColumns {
		ok, err := db.hasColumn(c.table, c.column)
		require.NoError(t, err)
		assert.True(t, ok, "%s.%s", c.table, c.column)
	}

	v := internal.Volante{Venue: "CHS", Date: "2025-11-22", SourceFile: "chs.pdf",
		Races: []internal.VolanteRace{{Number: 1, PostTime: "12:30", Code: "123", PrizeName: "El Dorado"}}}
	require.NoError(t, db.UpsertVolante(v))
	got, err := db.GetVolante("CHS", "2025-11-22")
	require.NoError(t, err)
	require.Len(t, got.Races, 1)
	assert.Equal(t, "El Dorado", got.Races[0].PrizeName)
	assert.Empty(t, got.Races[0].Bets)
}
