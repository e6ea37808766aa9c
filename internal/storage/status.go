package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"hipica/internal"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func markStatus(ex execer, venue, date string, stage internal.Stage) error {
	var s internal.EventStatus
	s.Set(stage)
	return upsertStatus(ex, internal.EventStatus{
		Venue: venue, Date: date,
		Program: s.Program, Results: s.Results, Volante: s.Volante,
	})
}

// upsertStatus only ever raises flags; a stage once done stays done.
func upsertStatus(ex execer, s internal.EventStatus) error {
	if s.Venue == "" || s.Date == "" {
		return fmt.Errorf("event status needs venue and date, got %q %q", s.Venue, s.Date)
	}
	_, err := ex.Exec(`
INSERT INTO event_status (venue, date, program, results, volante)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(venue, date) DO UPDATE SET
  program = max(event_status.program, excluded.program),
  results = max(event_status.results, excluded.results),
  volante = max(event_status.volante, excluded.volante),
  updatedAt = CURRENT_TIMESTAMP
`, s.Venue, s.Date, s.Program, s.Results, s.Volante)
	return err
}

func (d *DB) MarkStatus(venue, date string, stage internal.Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	return markStatus(d.conn, venue, date, stage)
}

// MergeStatuses raises the flags of every given event in one transaction.
func (d *DB) MergeStatuses(statuses []internal.EventStatus) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range statuses {
		if err := upsertStatus(tx, s); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) GetStatus(venue, date string) (internal.EventStatus, error) {
	s := internal.EventStatus{Venue: venue, Date: date}
	err := d.conn.QueryRow(`
SELECT program, results, volante, updatedAt FROM event_status WHERE venue = ? AND date = ?
`, venue, date).Scan(&s.Program, &s.Results, &s.Volante, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	return s, err
}

// ListStatuses returns the most recent events first. An empty venue lists all venues.
func (d *DB) ListStatuses(venue string, limit int) ([]internal.EventStatus, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := d.conn.Query(`
SELECT venue, date, program, results, volante, updatedAt
FROM event_status
WHERE (? = '' OR venue = ?)
ORDER BY date DESC, venue ASC
LIMIT ?
`, venue, venue, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EventStatus
	for rows.Next() {
		var s internal.EventStatus
		if err := rows.Scan(&s.Venue, &s.Date, &s.Program, &s.Results, &s.Volante, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
