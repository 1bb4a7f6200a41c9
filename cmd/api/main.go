package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/n3xfin/finance-tracker/internal/api/handlers"
	"github.com/n3xfin/finance-tracker/internal/app"
	"github.com/n3xfin/finance-tracker/internal/config"
	"github.com/n3xfin/finance-tracker/internal/jobs"
	"github.com/n3xfin/finance-tracker/internal/jobs/inmemory"
	"github.com/n3xfin/finance-tracker/internal/logger"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT)")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := context.Background()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	// Ingestion jobs run in-process; a multi-instance deployment would swap
	// in a shared queue behind jobs.Publisher.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Config{
		BufferSize: cfg.QueueBuffer,
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
	}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewIngestHandler(services.Ingestor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.Workers).Msg("Job workers started")

	deps := handlers.Deps{
		Ingester:     services.Ingestor,
		Publisher:    jobQueue,
		JobStore:     jobStore,
		Transactions: services.Repo,
		Runs:         services.Repo,
		Analytics:    services.Analytics,
	}
	if services.Categorizer != nil {
		deps.Categorizer = services.Categorizer
	}

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handlers.NewRouter(deps, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight jobs finish before cancelling the workers' context.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
