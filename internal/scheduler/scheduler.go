package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"hipica/internal"
	"hipica/internal/config"
	"hipica/internal/connectors"
	"hipica/internal/pipeline"
	"hipica/internal/storage"
	"hipica/internal/util"
)

// Step is one unit of a scheduled run. PerVenue steps run once for each
// configured venue, the others once per run with a zero venue.
type Step struct {
	Name     string
	PerVenue bool
	Run      func(ctx context.Context, venue internal.Venue, date string) error
}

// RunReport summarises one scheduled run.
type RunReport struct {
	Date      string
	Succeeded int
	Failed    []string
}

type Scheduler struct {
	cfg    config.Config
	cron   *cron.Cron
	venues []internal.Venue
	steps  []Step
	now    func() time.Time
}

func NewScheduler(cfg config.Config, steps ...Step) *Scheduler {
	logger := cronLogger{}
	s := &Scheduler{
		cfg:   cfg,
		cron:  cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		steps: steps,
		now:   time.Now,
	}
	for _, code := range cfg.SchedulerVenues {
		venue, err := pipeline.ResolveVenue(code)
		if err != nil {
			log.Error().Err(err).Msg("scheduler venue ignored")
			continue
		}
		s.venues = append(s.venues, venue)
	}
	return s
}

// Start registers the run on SCHEDULER_CRON and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.SchedulerCron, func() {
		report := s.RunOnce(ctx)
		if len(report.Failed) > 0 {
			log.Error().Strs("failed", report.Failed).Str("date", report.Date).Msg("scheduled run finished with failures")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule scrape run: %w", err)
	}

	s.cron.Start()
	log.Info().Str("schedule", s.cfg.SchedulerCron).Int("venues", len(s.venues)).Msg("scrape run scheduled")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunOnce executes every step for today's date. A failing step is logged and
// the remaining steps still run.
func (s *Scheduler) RunOnce(ctx context.Context) RunReport {
	report := RunReport{Date: s.now().Format(util.DateLayout)}
	start := time.Now()

	run := func(step Step, venue internal.Venue) {
		if ctx.Err() != nil {
			return
		}
		name := step.Name
		if step.PerVenue {
			name += ":" + venue.Code
		}
		if err := step.Run(ctx, venue, report.Date); err != nil {
			log.Error().Err(err).Str("step", step.Name).Str("venue", venue.Code).Str("date", report.Date).Msg("scheduled step failed")
			report.Failed = append(report.Failed, name)
			return
		}
		report.Succeeded++
	}

	for _, step := range s.steps {
		if !step.PerVenue {
			run(step, internal.Venue{})
			continue
		}
		for _, venue := range s.venues {
			run(step, venue)
		}
	}

	log.Info().Str("date", report.Date).Int("succeeded", report.Succeeded).Int("failed", len(report.Failed)).
		Dur("took", time.Since(start)).Msg("scheduled run done")
	return report
}

// DefaultSteps wires the scrapers, the volante mail intake and the export.
// A nil connector disables the mail fetch; stored volantes are still parsed.
func DefaultSteps(db *storage.DB, cfg config.Config, scrape *pipeline.ScrapeService, connector connectors.MailConnector) []Step {
	volantes := pipeline.NewVolanteService(db, cfg)
	steps := []Step{
		{Name: "programs", PerVenue: true, Run: func(ctx context.Context, venue internal.Venue, date string) error {
			_, err := scrape.ScrapePrograms(ctx, venue, date)
			return ignoreNoMeeting(err, venue, date)
		}},
		{Name: "results", PerVenue: true, Run: func(ctx context.Context, venue internal.Venue, date string) error {
			_, err := scrape.ScrapeResults(ctx, venue, date)
			return ignoreNoMeeting(err, venue, date)
		}},
		{Name: "volantes", Run: func(ctx context.Context, _ internal.Venue, _ string) error {
			if connector != nil {
				fetch := connectors.NewFetchService(db, cfg, connector)
				if _, err := fetch.FetchAndStore(ctx, cfg.VolanteMailLabel, cfg.VolanteMailFetchMax); err != nil {
					return err
				}
			}
			_, err := volantes.ProcessPending(cfg.VolanteMailFetchMax, "")
			return err
		}},
	}
	if cfg.SchedulerAutoExport {
		steps = append(steps, Step{Name: "export", PerVenue: true, Run: func(_ context.Context, venue internal.Venue, date string) error {
			rows, err := db.ListResults(venue.Code, date)
			if err != nil || len(rows) == 0 {
				return err
			}
			path := filepath.Join(cfg.OutputDir, fmt.Sprintf("resultados_%s_%s.xlsx", venue.Code, date))
			return pipeline.ExportResultsToXLSX(rows, path)
		}})
	}
	return steps
}

func ignoreNoMeeting(err error, venue internal.Venue, date string) error {
	if errors.Is(err, pipeline.ErrNoMeeting) {
		log.Info().Str("venue", venue.Code).Str("date", date).Msg("no meeting today")
		return nil
	}
	return err
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
