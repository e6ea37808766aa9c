package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"hipica/internal/config"
	"hipica/internal/connectors"
	"hipica/internal/elturf"
	"hipica/internal/logging"
	"hipica/internal/pipeline"
	"hipica/internal/scheduler"
	"hipica/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(os.Stderr, cfg.AppEnv, cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "scrape:programs", "scrape:results":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		venueFlag := fs.String("venue", cfg.ScrapingVenue, "HCH|CHS|VSC")
		dateFlag := fs.String("date", "", "event date (YYYY-MM-DD), default SCRAPING_DIA_REUNION or today")
		_ = fs.Parse(os.Args[2:])

		svc := newScrapeService(db, cfg)
		venue, err := pipeline.ResolveVenue(*venueFlag)
		must(err)
		date, err := svc.ResolveDate(*dateFlag)
		must(err)

		if cmd == "scrape:programs" {
			summary, err := svc.ScrapePrograms(ctx, venue, date)
			must(err)
			fmt.Printf("programs scraped venue=%s date=%s meeting=%d races=%d runners=%d failed=%d\n",
				venue.Code, date, summary.MeetingID, summary.Races, summary.Runners, summary.Failed)
			return
		}
		results, err := svc.ScrapeResults(ctx, venue, date)
		must(err)
		rows, skipped := 0, 0
		for _, r := range results.Races {
			rows += len(r.Rows)
			skipped += r.Skipped
		}
		fmt.Printf("results scraped venue=%s date=%s races=%d rows=%d skipped=%d\n", venue.Code, date, len(results.Races), rows, skipped)
	case "results:parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "saved results page (.html) or sheet (.xlsx)")
		inType := fs.String("type", "", "html|xlsx, default from extension")
		venueFlag := fs.String("venue", cfg.ScrapingVenue, "HCH|CHS|VSC")
		race := fs.Int("race", 1, "race number")
		date := fs.String("date", "", "event date; when set, rows are matched and stored")
		out := fs.String("out", "", "write the parsed race as JSON to this path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}

		svc := newScrapeService(db, cfg)
		venue, err := pipeline.ResolveVenue(*venueFlag)
		must(err)
		table, err := pipeline.ExtractResultsFromInput(*inType, *file)
		must(err)
		result, err := svc.ParseResults(venue, *date, *race, table)
		must(err)

		data, err := json.MarshalIndent(result, "", "  ")
		must(err)
		if *out == "" {
			fmt.Println(string(data))
			return
		}
		must(os.MkdirAll(filepath.Dir(*out), 0o755))
		must(os.WriteFile(*out, data, 0o644))
		fmt.Printf("parsed race=%d rows=%d skipped=%d output=%s\n", result.RaceNumber, len(result.Rows), result.Skipped, *out)
	case "volante:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "single volante PDF")
		dir := fs.String("dir", "", "folder of volante PDFs, default PATH_PDF_SCRAPING/pdfs/<venue>")
		venue := fs.String("venue", "", "venue code, detected from the file name when empty")
		date := fs.String("date", "", "only accept volantes for this date")
		pending := fs.Bool("pending", false, "process PDFs stored by volante:fetch")
		batch := fs.Int("batch", 20, "batch size for --pending")
		_ = fs.Parse(os.Args[2:])

		svc := pipeline.NewVolanteService(db, cfg)
		var outcomes []pipeline.VolanteOutcome
		switch {
		case *pending:
			outcomes, err = svc.ProcessPending(*batch, *date)
		case *file != "":
			var res pipeline.VolanteOutcome
			res, err = svc.ProcessFile(*file, strings.ToUpper(*venue), *date)
			outcomes = append(outcomes, res)
		default:
			target := *dir
			if target == "" {
				if *venue == "" {
					must(fmt.Errorf("--venue or --dir is required"))
				}
				target = cfg.VolantePDFDir(strings.ToUpper(*venue))
			}
			outcomes, err = svc.ProcessDirectory(target, strings.ToUpper(*venue), *date)
		}
		must(err)
		for _, o := range outcomes {
			fmt.Printf("%s %s %s\n", o.Status, o.File, o.Output)
		}
	case "volante:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.VolanteMailProvider, "gmail|imap")
		label := fs.String("label", cfg.VolanteMailLabel, "mailbox/label")
		maxMsgs := fs.Int("max", cfg.VolanteMailFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])

		conn, err := connectors.NewConnector(cfg, *provider)
		must(err)
		result, err := connectors.NewFetchService(db, cfg, conn).FetchAndStore(ctx, *label, *maxMsgs)
		must(err)
		fmt.Printf("volante fetch done provider=%s fetched=%d stored=%d ignored=%d\n", *provider, result.Fetched, result.Stored, result.Ignored)
	case "load":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", "", "artifact folder, default PATH_WEB_SCRAPING and PATH_PDF_SCRAPING/json")
		_ = fs.Parse(os.Args[2:])

		roots := []string{cfg.WebScrapingPath, filepath.Join(cfg.PDFScrapingPath, "json")}
		if *dir != "" {
			roots = []string{*dir}
		}
		loader := pipeline.NewLoader(db)
		for _, root := range roots {
			if _, err := os.Stat(root); os.IsNotExist(err) {
				continue
			}
			summary, err := loader.LoadDirectory(root)
			must(err)
			fmt.Printf("load done dir=%s loaded=%d skipped=%d failed=%d\n", root, summary.Loaded, summary.Skipped, summary.Failed)
		}
	case "status":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		venue := fs.String("venue", "", "venue code, all venues when empty")
		date := fs.String("date", "", "single event date")
		limit := fs.Int("limit", 30, "max events")
		logs := fs.Int("logs", 0, "also print the last N scraping logs")
		_ = fs.Parse(os.Args[2:])

		if *logs > 0 {
			entries, err := db.ListScrapeLogs(*logs)
			must(err)
			for _, l := range entries {
				fmt.Printf("log %s %s %s status=%s races=%d rows=%d skipped=%d %s\n",
					l.Kind, l.Venue, l.Date, l.Status, l.Races, l.Rows, l.Skipped, l.Message)
			}
		}

		svc := pipeline.NewStatusService(db, cfg)
		if *date != "" {
			if *venue == "" {
				must(fmt.Errorf("--venue is required with --date"))
			}
			st, err := svc.Get(strings.ToUpper(*venue), *date)
			must(err)
			fmt.Printf("%s %s %s\n", st.Venue, st.Date, st.Flags())
			v, err := db.GetVolante(st.Venue, st.Date)
			must(err)
			if v != nil {
				for _, r := range v.Races {
					fmt.Printf("  race %d %s options=%v competitors=%d\n", r.Number, r.PostTime, r.Options, r.Competitors)
				}
			}
			return
		}
		statuses, err := svc.List(strings.ToUpper(*venue), *limit)
		must(err)
		for _, st := range statuses {
			fmt.Printf("%s %s %s\n", st.Venue, st.Date, st.Flags())
		}
	case "status:rebuild":
		statuses, err := pipeline.NewStatusService(db, cfg).Rebuild()
		must(err)
		fmt.Printf("status rebuilt events=%d\n", len(statuses))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		venueFlag := fs.String("venue", cfg.ScrapingVenue, "HCH|CHS|VSC")
		date := fs.String("date", "", "event date")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*date) == "" {
			must(fmt.Errorf("--date is required"))
		}
		venue, err := pipeline.ResolveVenue(*venueFlag)
		must(err)
		if *out == "" {
			*out = filepath.Join(cfg.OutputDir, fmt.Sprintf("resultados_%s_%s.xlsx", venue.Code, *date))
		}

		rows, err := db.ListResults(venue.Code, *date)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no results stored for venue=%s date=%s", venue.Code, *date))
		}
		must(pipeline.ExportResultsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "schedule":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		once := fs.Bool("once", false, "run all steps now and exit")
		_ = fs.Parse(os.Args[2:])

		s := newScheduler(db, cfg)
		if *once {
			report := s.RunOnce(ctx)
			fmt.Printf("run done date=%s succeeded=%d failed=%s\n", report.Date, report.Succeeded, strings.Join(report.Failed, ","))
			return
		}
		must(s.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func newScrapeService(db *storage.DB, cfg config.Config) *pipeline.ScrapeService {
	client, err := elturf.NewClient(cfg)
	must(err)
	svc, err := pipeline.NewScrapeService(db, cfg, client)
	must(err)
	return svc
}

func newScheduler(db *storage.DB, cfg config.Config) *scheduler.Scheduler {
	conn, err := connectors.NewConnector(cfg, cfg.VolanteMailProvider)
	if err != nil {
		log.Warn().Err(err).Msg("volante mail fetch disabled")
		conn = nil
	}
	steps := scheduler.DefaultSteps(db, cfg, newScrapeService(db, cfg), conn)
	return scheduler.NewScheduler(cfg, steps...)
}

func usage() {
	fmt.Println("usage: hipica <command>")
	fmt.Println("commands:")
	fmt.Println("  scrape:programs [--venue=HCH] [--date=2025-11-21]")
	fmt.Println("  scrape:results [--venue=HCH] [--date=2025-11-21]")
	fmt.Println("  results:parse --file=page.html [--type=html|xlsx] [--venue=HCH] [--race=1] [--date=...] [--out=...json]")
	fmt.Println("  volante:process [--file=... | --dir=... | --pending] [--venue=HCH] [--date=...]")
	fmt.Println("  volante:fetch [--provider=gmail|imap] [--label=INBOX] [--max=20]")
	fmt.Println("  load [--dir=...]")
	fmt.Println("  status [--venue=HCH] [--date=...] [--limit=30] [--logs=10]")
	fmt.Println("  status:rebuild")
	fmt.Println("  export:xlsx --date=2025-11-21 [--venue=HCH] [--out=...xlsx]")
	fmt.Println("  schedule [--once]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
