package storage

import (
	"encoding/json"
	"fmt"

	"hipica/internal"
	"hipica/internal/normalize"
)

// ReplaceRaceResults swaps the stored rows of one race for the given ones and,
// when at least one row is stored, marks the results stage of the event in
// the same transaction.
func (d *DB) ReplaceRaceResults(venue, date string, race internal.RaceResult) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM race_results WHERE venue = ? AND date = ? AND raceNumber = ?`,
		venue, date, race.RaceNumber); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO race_results (
  venue, date, raceId, raceNumber, rowNo,
  position, horseNumber, name, age, horseWeight, margin, weight, jockey, trainer, stud, time, odds,
  sire, runnerId, matchMethod, recordJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var raceID any
	if race.RaceID > 0 {
		raceID = race.RaceID
	}
	for _, row := range race.Rows {
		rec := row.Record
		recordJSON, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			venue, date, raceID, race.RaceNumber, row.Row,
			column(rec, normalize.FieldPosition),
			column(rec, normalize.FieldHorseNumber),
			column(rec, normalize.FieldName),
			column(rec, normalize.FieldAge),
			column(rec, normalize.FieldHorseWeight),
			column(rec, normalize.FieldMargin),
			column(rec, normalize.FieldWeight),
			column(rec, normalize.FieldJockey),
			column(rec, normalize.FieldTrainer),
			column(rec, normalize.FieldStud),
			column(rec, normalize.FieldTime),
			column(rec, normalize.FieldOdds),
			nullString(row.Sire), row.RunnerID, row.MatchMethod, string(recordJSON),
		); err != nil {
			return fmt.Errorf("insert result row %d of race %d: %w", row.Row, race.RaceNumber, err)
		}
	}

	if len(race.Rows) > 0 {
		if err := markStatus(tx, venue, date, internal.StageResults); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListResults returns the canonical rows of an event ordered by race and row.
func (d *DB) ListResults(venue, date string) ([]internal.ResultExportRow, error) {
	rows, err := d.conn.Query(`
SELECT venue, date, raceNumber, rowNo, COALESCE(sire, ''), runnerId, recordJson
FROM race_results
WHERE venue = ? AND date = ?
ORDER BY raceNumber ASC, rowNo ASC
`, venue, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ResultExportRow
	for rows.Next() {
		var row internal.ResultExportRow
		var recordJSON string
		if err := rows.Scan(&row.Venue, &row.Date, &row.RaceNumber, &row.Row, &row.Sire, &row.RunnerID, &recordJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(recordJSON), &row.Record); err != nil {
			return nil, fmt.Errorf("race %d row %d: %w", row.RaceNumber, row.Row, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// column maps a canonical value to its SQL form; unavailable becomes NULL.
func column(rec normalize.Record, f normalize.Field) any {
	v := rec.Get(f)
	if !v.Available() {
		return nil
	}
	switch f.Shape() {
	case normalize.ShapeInteger:
		return v.Int()
	case normalize.ShapeDecimal:
		return v.Float()
	default:
		return v.String()
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
