package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
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

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	client, err := elturf.NewClient(cfg)
	must(err)
	scrape, err := pipeline.NewScrapeService(db, cfg, client)
	must(err)

	conn, err := connectors.NewConnector(cfg, cfg.VolanteMailProvider)
	if err != nil {
		log.Warn().Err(err).Msg("volante mail fetch disabled")
		conn = nil
	}

	s := scheduler.NewScheduler(cfg, scheduler.DefaultSteps(db, cfg, scrape, conn)...)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(s.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
