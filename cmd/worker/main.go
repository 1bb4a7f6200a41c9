package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/n3xfin/finance-tracker/internal/app"
	"github.com/n3xfin/finance-tracker/internal/categorize"
	"github.com/n3xfin/finance-tracker/internal/config"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		schedule = flag.String("schedule", cfg.CategorizeSchedule, "Cron spec for the categorization sweep (or set CATEGORIZE_SCHEDULE)")
		once     = flag.Bool("once", false, "Run one sweep and exit")
		maxUsers = flag.Int("max-users", 100, "Users visited per sweep")
		perUser  = flag.Int("per-user", 100, "Transactions categorized per user per sweep")
	)
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	if services.Categorizer == nil {
		log.Fatal().Msg("Categorization needs GEMINI_MODEL to be set")
	}
	sweeper := categorize.NewSweeper(services.Repo, services.Categorizer, *maxUsers, *perUser)

	if *once {
		if _, err := sweeper.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Sweep finished with errors")
			os.Exit(1)
		}
		return
	}

	if *schedule == "" {
		log.Fatal().Msg("No schedule: set CATEGORIZE_SCHEDULE, -schedule, or use -once")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(*schedule, func() {
		if _, err := sweeper.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("Sweep finished with errors")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", *schedule).Msg("Invalid cron schedule")
	}
	c.Start()
	log.Info().Str("schedule", *schedule).Msg("Worker service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Wait for a running sweep, then cancel whatever is left.
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Sweep still running after 30s, cancelling")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}
