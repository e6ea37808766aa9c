package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/config"
	"hipica/internal/elturf"
	"hipica/internal/normalize"
	"hipica/internal/storage"
	"hipica/internal/util"
)

var (
	ErrNoMeeting    = errors.New("no meeting for venue and date")
	ErrUnknownVenue = errors.New("unknown venue")
	ErrInvalidDate  = errors.New("invalid date")
)

// Source is the racetrack website as seen by the scrapers.
type Source interface {
	ProgramMeetings(ctx context.Context, date string) ([]internal.Meeting, error)
	ResultMeetings(ctx context.Context, date string) ([]internal.Meeting, error)
	RaceRunners(ctx context.Context, raceID int) ([]internal.Runner, error)
	ResultPage(ctx context.Context, raceID int) ([]byte, error)
}

type ScrapeService struct {
	db         *storage.DB
	cfg        config.Config
	source     Source
	normalizer *normalize.Normalizer
	now        func() time.Time
}

func NewScrapeService(db *storage.DB, cfg config.Config, source Source) (*ScrapeService, error) {
	precedence, err := normalize.ParsePrecedenceMap(cfg.NormalizePrecedence)
	if err != nil {
		return nil, fmt.Errorf("NORMALIZE_PRECEDENCE: %w", err)
	}
	return &ScrapeService{
		db:         db,
		cfg:        cfg,
		source:     source,
		normalizer: normalize.New(normalize.WithPrecedenceMap(precedence)),
		now:        time.Now,
	}, nil
}

// ProgramSummary reports one programs scrape.
type ProgramSummary struct {
	MeetingID int
	Races     int
	Runners   int
	Failed    int
}

// ResolveVenue turns a code or name into a known venue.
func ResolveVenue(value string) (internal.Venue, error) {
	venue, ok := internal.LookupVenue(value)
	if !ok {
		return internal.Venue{}, fmt.Errorf("%w: %q", ErrUnknownVenue, value)
	}
	return venue, nil
}

// ResolveDate returns the ISO date to scrape: the given one, SCRAPING_DIA_REUNION
// or today.
func (s *ScrapeService) ResolveDate(date string) (string, error) {
	if date == "" {
		date = s.cfg.ScrapingDay
	}
	if date == "" {
		return s.now().Format(util.DateLayout), nil
	}
	t, ok := util.ParseSpanishDate(date)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t.Format(util.DateLayout), nil
}

func (s *ScrapeService) ScrapePrograms(ctx context.Context, venue internal.Venue, date string) (ProgramSummary, error) {
	start := s.now()
	meetings, err := s.source.ProgramMeetings(ctx, date)
	if err != nil {
		return ProgramSummary{}, fmt.Errorf("program meetings %s: %w", date, err)
	}
	meeting, ok := pickMeeting(meetings, venue)
	if !ok {
		s.logScrape("programs", venue, date, "empty", 0, 0, 0, "no meeting", start)
		return ProgramSummary{}, fmt.Errorf("%w: %s %s", ErrNoMeeting, venue.Code, date)
	}
	meeting.VenueCode = venue.Code
	meeting.VenueName = venue.Name
	if meeting.Date == "" {
		meeting.Date = date
	}

	summary := ProgramSummary{MeetingID: meeting.ID}
	detailsDir := filepath.Join(s.cfg.ProgramsDir(), "detalles")
	for i := range meeting.Races {
		race := &meeting.Races[i]
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		runners, err := s.source.RaceRunners(ctx, race.ID)
		if err != nil {
			summary.Failed++
			log.Warn().Err(err).Str("venue", venue.Code).Str("date", date).Int("race", race.Number).Msg("race detail failed, skipping")
			continue
		}
		race.Runners = runners
		summary.Runners += len(runners)

		path := filepath.Join(detailsDir, fmt.Sprintf("carrera_%d_%s.json", race.ID, date))
		if err := writeJSON(path, race); err != nil {
			return summary, err
		}
	}
	summary.Races = len(meeting.Races) - summary.Failed

	path := filepath.Join(s.cfg.ProgramsDir(), fmt.Sprintf("programas_%d_%s.json", meeting.ID, date))
	if err := writeJSON(path, meeting); err != nil {
		return summary, err
	}
	if err := s.db.UpsertMeeting(meeting); err != nil {
		return summary, fmt.Errorf("store meeting %d: %w", meeting.ID, err)
	}

	s.logScrape("programs", venue, date, "ok", summary.Races, summary.Runners, summary.Failed, "", start)
	log.Info().Str("venue", venue.Code).Str("date", date).Int("meeting", meeting.ID).
		Int("races", summary.Races).Int("runners", summary.Runners).Msg("program scraped")
	return summary, nil
}

func (s *ScrapeService) ScrapeResults(ctx context.Context, venue internal.Venue, date string) (internal.ResultsFile, error) {
	start := s.now()
	meetings, err := s.source.ResultMeetings(ctx, date)
	if err != nil {
		return internal.ResultsFile{}, fmt.Errorf("result meetings %s: %w", date, err)
	}
	meeting, ok := pickMeeting(meetings, venue)
	if !ok {
		s.logScrape("results", venue, date, "empty", 0, 0, 0, "no meeting", start)
		return internal.ResultsFile{}, fmt.Errorf("%w: %s %s", ErrNoMeeting, venue.Code, date)
	}

	program, err := s.db.GetMeeting(venue.Code, date)
	if err != nil {
		return internal.ResultsFile{}, err
	}
	runnersByRace := map[int][]internal.Runner{}
	if program != nil {
		for _, r := range program.Races {
			runnersByRace[r.Number] = r.Runners
		}
	}

	out := internal.ResultsFile{
		Venue:     venue.Code,
		Date:      date,
		MeetingID: meeting.ID,
		ScrapedAt: s.now().UTC().Format(time.RFC3339),
		Races:     []internal.RaceResult{},
	}
	rows, skipped := 0, 0
	for _, race := range meeting.Races {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		page, err := s.source.ResultPage(ctx, race.ID)
		if err != nil {
			log.Warn().Err(err).Str("venue", venue.Code).Str("date", date).Int("race", race.Number).Msg("result page failed, skipping")
			continue
		}
		table, err := ExtractResultTable(bytes.NewReader(page))
		if err != nil {
			log.Warn().Err(err).Str("venue", venue.Code).Str("date", date).Int("race", race.Number).Msg("result table missing, skipping")
			continue
		}

		runners, ok := runnersByRace[race.Number]
		if !ok {
			runners, err = s.source.RaceRunners(ctx, race.ID)
			if err != nil {
				log.Warn().Err(err).Int("race", race.Number).Msg("runners unavailable, results stay unmatched")
			}
		}

		result := s.buildRaceResult(venue.Code, date, race.Number, table, runners)
		result.RaceID = race.ID
		if result.Prize == "" {
			result.Prize = race.Name
		}
		if err := s.db.ReplaceRaceResults(venue.Code, date, result); err != nil {
			log.Error().Err(err).Str("venue", venue.Code).Str("date", date).Int("race", race.Number).Msg("results not stored, skipping race")
			skipped += len(result.Rows) + result.Skipped
			continue
		}
		rows += len(result.Rows)
		skipped += result.Skipped
		out.Races = append(out.Races, result)
	}

	path := filepath.Join(s.cfg.ResultsDir(), fmt.Sprintf("resultados_detalle_%s_%s.json", venue.Code, date))
	if err := writeJSON(path, out); err != nil {
		return out, err
	}

	s.logScrape("results", venue, date, "ok", len(out.Races), rows, skipped, "", start)
	log.Info().Str("venue", venue.Code).Str("date", date).Int("races", len(out.Races)).
		Int("rows", rows).Int("skipped", skipped).Msg("results scraped")
	return out, nil
}

// ParseResults normalizes an offline results table. With a date, rows are
// matched against the stored program and the race results are stored.
func (s *ScrapeService) ParseResults(venue internal.Venue, date string, raceNumber int, table ResultTable) (internal.RaceResult, error) {
	var runners []internal.Runner
	raceID := 0
	if date != "" {
		program, err := s.db.GetMeeting(venue.Code, date)
		if err != nil {
			return internal.RaceResult{}, err
		}
		if program != nil {
			for _, r := range program.Races {
				if r.Number == raceNumber {
					runners = r.Runners
					raceID = r.ID
				}
			}
		}
	}

	result := s.buildRaceResult(venue.Code, date, raceNumber, table, runners)
	result.RaceID = raceID
	if date == "" {
		return result, nil
	}
	if err := s.db.ReplaceRaceResults(venue.Code, date, result); err != nil {
		return result, err
	}
	return result, nil
}

func (s *ScrapeService) buildRaceResult(venue, date string, raceNumber int, table ResultTable, runners []internal.Runner) internal.RaceResult {
	result := internal.RaceResult{
		RaceNumber: raceNumber,
		Prize:      table.Prize,
		Rows:       []internal.ResultRow{},
	}
	if result.Prize == "" {
		result.Prize = "Carrera " + strconv.Itoa(raceNumber)
	}

	var matcher *RunnerMatcher
	if len(runners) > 0 {
		matcher = NewRunnerMatcher(runners, s.cfg.MatchFuzzyThreshold)
	}

	for i, raw := range table.Rows {
		rowLog := log.With().Str("venue", venue).Str("date", date).Int("race", raceNumber).Int("row", i+1).Logger()

		res, err := s.normalizer.Normalize(venue, raw)
		var shapeErr *normalize.ShapeMismatchError
		if errors.As(err, &shapeErr) {
			result.Skipped++
			rowLog.Warn().Int("width", shapeErr.Width).Msg("row skipped: ratio/shape mismatch")
			continue
		}
		if err != nil {
			result.Skipped++
			rowLog.Warn().Err(err).Msg("row skipped")
			continue
		}
		if result.Template == "" {
			result.Template = res.Template
		}

		row := internal.ResultRow{Row: i + 1, Record: res.Record, Sire: res.Sire}
		for _, w := range res.Warnings {
			rowLog.Warn().Str("field", w.Field.String()).Msg(w.String())
			row.Warnings = append(row.Warnings, w.String())
		}
		if matcher != nil {
			if m, ok := matcher.Match(res.Record); ok {
				id := m.Runner.ID
				row.RunnerID = &id
				row.MatchMethod = m.Method
			} else {
				rowLog.Debug().Str("name", res.Record.Get(normalize.FieldName).String()).Msg("no program runner matched")
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

func (s *ScrapeService) logScrape(kind string, venue internal.Venue, date, status string, races, rows, skipped int, message string, start time.Time) {
	err := s.db.InsertScrapeLog(internal.ScrapeLog{
		Kind:     kind,
		Venue:    venue.Code,
		Date:     date,
		Status:   status,
		Races:    races,
		Rows:     rows,
		Skipped:  skipped,
		Message:  message,
		Duration: float64(s.now().Sub(start).Milliseconds()),
	})
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("scrape log not stored")
		return
	}
	if status == "ok" {
		if err := s.db.SetMetadata("last_"+kind+"_scrape", venue.Code+" "+date); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("last scrape marker not stored")
		}
	}
}

func pickMeeting(meetings []internal.Meeting, venue internal.Venue) (internal.Meeting, bool) {
	for _, m := range meetings {
		if elturf.MatchVenue(m, venue) {
			return m, true
		}
	}
	return internal.Meeting{}, false
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
