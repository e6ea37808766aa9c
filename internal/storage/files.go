package storage

import (
	"database/sql"
	"errors"

	"hipica/internal"
)

func (d *DB) IsFileProcessed(filename, sha256 string) (bool, error) {
	var one int
	err := d.conn.QueryRow(`SELECT 1 FROM processed_files WHERE filename = ? AND sha256 = ?`, filename, sha256).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) MarkFileProcessed(filename, sha256, kind string) error {
	_, err := d.conn.Exec(`
INSERT INTO processed_files (filename, sha256, kind) VALUES (?, ?, ?)
ON CONFLICT(filename, sha256) DO UPDATE SET processedAt = CURRENT_TIMESTAMP
`, filename, sha256, kind)
	return err
}

func (d *DB) InsertScrapeLog(l internal.ScrapeLog) error {
	_, err := d.conn.Exec(`
INSERT INTO scraping_logs (kind, venue, date, status, raceCount, rowCount, skipped, message, durationMs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, l.Kind, l.Venue, l.Date, l.Status, l.Races, l.Rows, l.Skipped, l.Message, l.Duration)
	return err
}

func (d *DB) ListScrapeLogs(limit int) ([]internal.ScrapeLog, error) {
	rows, err := d.conn.Query(`
SELECT kind, COALESCE(venue, ''), COALESCE(date, ''), status, raceCount, rowCount, skipped,
       COALESCE(message, ''), COALESCE(durationMs, 0)
FROM scraping_logs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ScrapeLog
	for rows.Next() {
		var l internal.ScrapeLog
		if err := rows.Scan(&l.Kind, &l.Venue, &l.Date, &l.Status, &l.Races, &l.Rows, &l.Skipped, &l.Message, &l.Duration); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
