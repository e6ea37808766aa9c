package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hipica/internal"
)

// UpsertVolante stores a parsed volante, replacing its races, and marks the
// volante stage of the event.
func (d *DB) UpsertVolante(v internal.Volante) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertVenue(tx, v.Venue, ""); err != nil {
		return err
	}

	var id int64
	err = tx.QueryRow(`
INSERT INTO volantes (venue, date, meeting, sourceFile)
VALUES (?, ?, ?, ?)
ON CONFLICT(venue, date) DO UPDATE SET
  meeting=excluded.meeting,
  sourceFile=excluded.sourceFile,
  updatedAt=CURRENT_TIMESTAMP
RETURNING id
`, v.Venue, v.Date, v.Meeting, v.SourceFile).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert volante %s %s: %w", v.Venue, v.Date, err)
	}

	if _, err := tx.Exec(`DELETE FROM volante_races WHERE volanteId = ?`, id); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
INSERT INTO volante_races (
  volanteId, raceNumber, postTime, option1, option2, option3, option4, competitors,
  distance, code, kind, condition, series, raceIndex, weightCategory, betsJson,
  prizeName, prize1, prize2, prize3, prize4, participantsJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range v.Races {
		participants := r.Participants
		if participants == nil {
			participants = []internal.VolanteParticipant{}
		}
		participantsJSON, _ := json.Marshal(participants)
		bets := r.Bets
		if bets == nil {
			bets = []string{}
		}
		betsJSON, _ := json.Marshal(bets)
		if _, err := stmt.Exec(id, r.Number, r.PostTime,
			r.Options[0], r.Options[1], r.Options[2], r.Options[3], r.Competitors,
			r.Distance, r.Code, r.Kind, r.Condition, r.Series, r.Index, r.WeightCategory, string(betsJSON),
			r.PrizeName, r.Prizes[0], r.Prizes[1], r.Prizes[2], r.Prizes[3],
			string(participantsJSON)); err != nil {
			return fmt.Errorf("insert volante race %d: %w", r.Number, err)
		}
	}

	if err := markStatus(tx, v.Venue, v.Date, internal.StageVolante); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) GetVolante(venue, date string) (*internal.Volante, error) {
	var v internal.Volante
	var id int64
	var meeting sql.NullInt64
	err := d.conn.QueryRow(`
SELECT id, venue, date, meeting, sourceFile FROM volantes WHERE venue = ? AND date = ?
`, venue, date).Scan(&id, &v.Venue, &v.Date, &meeting, &v.SourceFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.Meeting = int(meeting.Int64)

	rows, err := d.conn.Query(`
SELECT raceNumber, COALESCE(postTime, ''), option1, option2, option3, option4, competitors,
       distance, COALESCE(code, ''), COALESCE(kind, ''), COALESCE(condition, ''), COALESCE(series, ''),
       COALESCE(raceIndex, ''), weightCategory, betsJson, COALESCE(prizeName, ''),
       prize1, prize2, prize3, prize4, participantsJson
FROM volante_races WHERE volanteId = ? ORDER BY raceNumber ASC
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r internal.VolanteRace
		var betsJSON, participantsJSON string
		if err := rows.Scan(&r.Number, &r.PostTime, &r.Options[0], &r.Options[1], &r.Options[2], &r.Options[3],
			&r.Competitors, &r.Distance, &r.Code, &r.Kind, &r.Condition, &r.Series, &r.Index, &r.WeightCategory,
			&betsJSON, &r.PrizeName, &r.Prizes[0], &r.Prizes[1], &r.Prizes[2], &r.Prizes[3],
			&participantsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(betsJSON), &r.Bets)
		_ = json.Unmarshal([]byte(participantsJSON), &r.Participants)
		v.Races = append(v.Races, r)
	}
	return &v, rows.Err()
}

// RegisterVolanteFile records a stored PDF by content hash. It reports false
// when the same content was already registered.
func (d *DB) RegisterVolanteFile(f internal.VolanteFile) (internal.VolanteFile, bool, error) {
	res, err := d.conn.Exec(`
INSERT INTO volante_files (venue, path, hash, provider, messageId, subject, receivedAt, status)
VALUES (?, ?, ?, ?, ?, ?, ?, 'stored')
ON CONFLICT(hash) DO NOTHING
`, f.Venue, f.Path, f.Hash, f.Provider, f.MessageID, f.Subject, f.ReceivedAt)
	if err != nil {
		return internal.VolanteFile{}, false, err
	}
	n, _ := res.RowsAffected()

	row, err := d.getVolanteFileByHash(f.Hash)
	if err != nil {
		return internal.VolanteFile{}, false, err
	}
	if row == nil {
		return internal.VolanteFile{}, false, errors.New("failed to register volante file")
	}
	return *row, n > 0, nil
}

func (d *DB) getVolanteFileByHash(hash string) (*internal.VolanteFile, error) {
	var f internal.VolanteFile
	err := d.conn.QueryRow(`
SELECT id, COALESCE(venue, ''), path, hash, COALESCE(provider, ''), COALESCE(messageId, ''),
       COALESCE(subject, ''), COALESCE(receivedAt, ''), status
FROM volante_files WHERE hash = ?
`, hash).Scan(&f.ID, &f.Venue, &f.Path, &f.Hash, &f.Provider, &f.MessageID, &f.Subject, &f.ReceivedAt, &f.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (d *DB) ListVolanteFilesByStatus(status string, limit int) ([]internal.VolanteFile, error) {
	rows, err := d.conn.Query(`
SELECT id, COALESCE(venue, ''), path, hash, COALESCE(provider, ''), COALESCE(messageId, ''),
       COALESCE(subject, ''), COALESCE(receivedAt, ''), status
FROM volante_files WHERE status = ? ORDER BY id ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.VolanteFile
	for rows.Next() {
		var f internal.VolanteFile
		if err := rows.Scan(&f.ID, &f.Venue, &f.Path, &f.Hash, &f.Provider, &f.MessageID, &f.Subject, &f.ReceivedAt, &f.Status); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (d *DB) UpdateVolanteFileStatus(id int, status string) error {
	_, err := d.conn.Exec(`UPDATE volante_files SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}
