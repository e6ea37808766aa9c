package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS venues (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meetings (
  id INTEGER PRIMARY KEY,
  venue TEXT NOT NULL,
  date TEXT NOT NULL,
  number INTEGER,
  director TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(venue) REFERENCES venues(code)
);
CREATE INDEX IF NOT EXISTS idx_meetings_venue_date ON meetings(venue, date);

CREATE TABLE IF NOT EXISTS races (
  id INTEGER PRIMARY KEY,
  meetingId INTEGER NOT NULL,
  number INTEGER NOT NULL,
  postTime TEXT,
  name TEXT,
  prize REAL,
  classic INTEGER NOT NULL DEFAULT 0,
  kind TEXT,
  surface TEXT,
  distance INTEGER,
  condition TEXT,
  raceIndex TEXT,
  FOREIGN KEY(meetingId) REFERENCES meetings(id)
);
CREATE INDEX IF NOT EXISTS idx_races_meeting ON races(meetingId, number);

CREATE TABLE IF NOT EXISTS runners (
  raceId INTEGER NOT NULL,
  runnerId INTEGER NOT NULL,
  number INTEGER,
  gate INTEGER,
  name TEXT NOT NULL,
  jockeyId INTEGER,
  jockey TEXT,
  trainerId INTEGER,
  trainer TEXT,
  ownerId INTEGER,
  owner TEXT,
  horseWeight INTEGER,
  weight REAL,
  PRIMARY KEY(raceId, runnerId),
  FOREIGN KEY(raceId) REFERENCES races(id)
);

CREATE TABLE IF NOT EXISTS race_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  venue TEXT NOT NULL,
  date TEXT NOT NULL,
  raceId INTEGER,
  raceNumber INTEGER NOT NULL,
  rowNo INTEGER NOT NULL,
  position TEXT,
  horseNumber INTEGER,
  name TEXT,
  age INTEGER,
  horseWeight INTEGER,
  margin TEXT,
  weight REAL,
  jockey TEXT,
  trainer TEXT,
  stud TEXT,
  time TEXT,
  odds REAL,
  sire TEXT,
  runnerId INTEGER,
  matchMethod TEXT,
  recordJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(venue, date, raceNumber, rowNo)
);

CREATE TABLE IF NOT EXISTS volantes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  venue TEXT NOT NULL,
  date TEXT NOT NULL,
  meeting INTEGER,
  sourceFile TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(venue, date)
);

CREATE TABLE IF NOT EXISTS volante_races (
  volanteId INTEGER NOT NULL,
  raceNumber INTEGER NOT NULL,
  postTime TEXT,
  option1 INTEGER NOT NULL DEFAULT 0,
  option2 INTEGER NOT NULL DEFAULT 0,
  option3 INTEGER NOT NULL DEFAULT 0,
  option4 INTEGER NOT NULL DEFAULT 0,
  competitors INTEGER NOT NULL DEFAULT 0,
  distance INTEGER NOT NULL DEFAULT 0,
  code TEXT,
  kind TEXT,
  condition TEXT,
  series TEXT,
  raceIndex TEXT,
  weightCategory INTEGER NOT NULL DEFAULT 0,
  betsJson TEXT NOT NULL DEFAULT '[]',
  prizeName TEXT,
  prize1 INTEGER NOT NULL DEFAULT 0,
  prize2 INTEGER NOT NULL DEFAULT 0,
  prize3 INTEGER NOT NULL DEFAULT 0,
  prize4 INTEGER NOT NULL DEFAULT 0,
  participantsJson TEXT NOT NULL DEFAULT '[]',
  PRIMARY KEY(volanteId, raceNumber),
  FOREIGN KEY(volanteId) REFERENCES volantes(id)
);

CREATE TABLE IF NOT EXISTS volante_files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  venue TEXT,
  path TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  provider TEXT,
  messageId TEXT,
  subject TEXT,
  receivedAt TEXT,
  status TEXT NOT NULL DEFAULT 'stored',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS processed_files (
  filename TEXT NOT NULL,
  sha256 TEXT NOT NULL,
  kind TEXT NOT NULL,
  processedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(filename, sha256)
);

CREATE TABLE IF NOT EXISTS scraping_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  venue TEXT,
  date TEXT,
  status TEXT NOT NULL,
  raceCount INTEGER NOT NULL DEFAULT 0,
  rowCount INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  message TEXT,
  durationMs REAL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS event_status (
  venue TEXT NOT NULL,
  date TEXT NOT NULL,
  program INTEGER NOT NULL DEFAULT 0,
  results INTEGER NOT NULL DEFAULT 0,
  volante INTEGER NOT NULL DEFAULT 0,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(venue, date)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	if _, err := d.conn.Exec(schema); err != nil {
		return err
	}
	return d.migrate()
}

// addedColumns lists columns that databases created by older builds lack.
var addedColumns = []struct{ table, column, decl string }{
	{"race_results", "sire", "TEXT"},
	{"volante_races", "distance", "INTEGER NOT NULL DEFAULT 0"},
	{"volante_races", "code", "TEXT"},
	{"volante_races", "kind", "TEXT"},
	{"volante_races", "condition", "TEXT"},
	{"volante_races", "series", "TEXT"},
	{"volante_races", "raceIndex", "TEXT"},
	{"volante_races", "weightCategory", "INTEGER NOT NULL DEFAULT 0"},
	{"volante_races", "betsJson", "TEXT NOT NULL DEFAULT '[]'"},
	{"volante_races", "prizeName", "TEXT"},
	{"volante_races", "prize1", "INTEGER NOT NULL DEFAULT 0"},
	{"volante_races", "prize2", "INTEGER NOT NULL DEFAULT 0"},
	{"volante_races", "prize3", "INTEGER NOT NULL DEFAULT 0"},
	{"volante_races", "prize4", "INTEGER NOT NULL DEFAULT 0"},
}

func (d *DB) migrate() error {
	for _, c := range addedColumns {
		ok, err := d.hasColumn(c.table, c.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := d.conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, c.table, c.column, c.decl)); err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func (d *DB) hasColumn(table, column string) (bool, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	return n > 0, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
