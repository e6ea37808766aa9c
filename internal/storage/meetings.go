package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"hipica/internal"
)

// UpsertMeeting stores a program meeting with its races and runners and marks
// the program stage of the event, all in one transaction.
func (d *DB) UpsertMeeting(m internal.Meeting) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertVenue(tx, m.VenueCode, m.VenueName); err != nil {
		return err
	}
	if _, err := tx.Exec(`
INSERT INTO meetings (id, venue, date, number, director)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  venue=excluded.venue,
  date=excluded.date,
  number=excluded.number,
  director=excluded.director,
  updatedAt=CURRENT_TIMESTAMP
`, m.ID, m.VenueCode, m.Date, m.Number, m.Director); err != nil {
		return fmt.Errorf("upsert meeting %d: %w", m.ID, err)
	}

	raceStmt, err := tx.Prepare(`
INSERT INTO races (id, meetingId, number, postTime, name, prize, classic, kind, surface, distance, condition, raceIndex)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  meetingId=excluded.meetingId,
  number=excluded.number,
  postTime=excluded.postTime,
  name=excluded.name,
  prize=excluded.prize,
  classic=excluded.classic,
  kind=excluded.kind,
  surface=excluded.surface,
  distance=excluded.distance,
  condition=excluded.condition,
  raceIndex=excluded.raceIndex
`)
	if err != nil {
		return err
	}
	defer raceStmt.Close()

	runnerStmt, err := tx.Prepare(`
INSERT INTO runners (raceId, runnerId, number, gate, name, jockeyId, jockey, trainerId, trainer, ownerId, owner, horseWeight, weight)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(raceId, runnerId) DO UPDATE SET
  number=excluded.number,
  gate=excluded.gate,
  name=excluded.name,
  jockeyId=excluded.jockeyId,
  jockey=excluded.jockey,
  trainerId=excluded.trainerId,
  trainer=excluded.trainer,
  ownerId=excluded.ownerId,
  owner=excluded.owner,
  horseWeight=excluded.horseWeight,
  weight=excluded.weight
`)
	if err != nil {
		return err
	}
	defer runnerStmt.Close()

	for _, r := range m.Races {
		if _, err := raceStmt.Exec(
			r.ID, m.ID, r.Number, r.PostTime, r.Name, r.Prize, r.Classic,
			r.Kind, r.Surface, r.Distance, r.Condition, r.Index,
		); err != nil {
			return fmt.Errorf("upsert race %d: %w", r.ID, err)
		}
		for _, rn := range r.Runners {
			if _, err := runnerStmt.Exec(
				r.ID, rn.ID, rn.Number, rn.Gate, rn.Name, rn.JockeyID, rn.Jockey,
				rn.TrainerID, rn.Trainer, rn.OwnerID, rn.Owner, rn.HorseWeight, rn.Weight,
			); err != nil {
				return fmt.Errorf("upsert runner %d/%d: %w", r.ID, rn.ID, err)
			}
		}
	}

	if err := markStatus(tx, m.VenueCode, m.Date, internal.StageProgram); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMeeting returns the stored program for venue and date with races and
// runners, or nil when none was scraped.
func (d *DB) GetMeeting(venue, date string) (*internal.Meeting, error) {
	var m internal.Meeting
	var director sql.NullString
	err := d.conn.QueryRow(`
SELECT m.id, m.venue, COALESCE(v.name, ''), m.date, COALESCE(m.number, 0), m.director
FROM meetings m LEFT JOIN venues v ON v.code = m.venue
WHERE m.venue = ? AND m.date = ?
ORDER BY m.id DESC LIMIT 1
`, venue, date).Scan(&m.ID, &m.VenueCode, &m.VenueName, &m.Date, &m.Number, &director)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Director = director.String

	races, err := d.listRaces(m.ID)
	if err != nil {
		return nil, err
	}
	m.Races = races
	return &m, nil
}

func (d *DB) listRaces(meetingID int) ([]internal.Race, error) {
	rows, err := d.conn.Query(`
SELECT id, number, COALESCE(postTime, ''), COALESCE(name, ''), prize, classic,
       COALESCE(kind, ''), COALESCE(surface, ''), COALESCE(distance, 0),
       COALESCE(condition, ''), COALESCE(raceIndex, '')
FROM races WHERE meetingId = ? ORDER BY number ASC
`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Race
	for rows.Next() {
		var r internal.Race
		if err := rows.Scan(&r.ID, &r.Number, &r.PostTime, &r.Name, &r.Prize, &r.Classic,
			&r.Kind, &r.Surface, &r.Distance, &r.Condition, &r.Index); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		runners, err := d.ListRunners(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Runners = runners
	}
	return out, nil
}

func (d *DB) ListRunners(raceID int) ([]internal.Runner, error) {
	rows, err := d.conn.Query(`
SELECT runnerId, COALESCE(number, 0), COALESCE(gate, 0), name,
       COALESCE(jockeyId, 0), COALESCE(jockey, ''), COALESCE(trainerId, 0), COALESCE(trainer, ''),
       COALESCE(ownerId, 0), COALESCE(owner, ''), horseWeight, weight
FROM runners WHERE raceId = ? ORDER BY number ASC
`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Runner
	for rows.Next() {
		var r internal.Runner
		if err := rows.Scan(&r.ID, &r.Number, &r.Gate, &r.Name, &r.JockeyID, &r.Jockey,
			&r.TrainerID, &r.Trainer, &r.OwnerID, &r.Owner, &r.HorseWeight, &r.Weight); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func upsertVenue(tx *sql.Tx, code, name string) error {
	if name == "" {
		if v, ok := internal.LookupVenue(code); ok {
			name = v.Name
		} else {
			name = code
		}
	}
	_, err := tx.Exec(`
INSERT INTO venues (code, name) VALUES (?, ?)
ON CONFLICT(code) DO UPDATE SET name = excluded.name
`, code, name)
	return err
}
