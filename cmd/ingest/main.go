package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/n3xfin/finance-tracker/internal/app"
	"github.com/n3xfin/finance-tracker/internal/config"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	var (
		sourceRef  = flag.String("source-ref", "", "gs:// reference of the uploaded statement (required)")
		userID     = flag.String("user-id", "", "Owner of the statement (required)")
		sourceFile = flag.String("source-file", "", "Original filename; defaults to the object's base name")
		forceAI    = flag.Bool("force-ai", false, "Skip structured parsing and extract with the model")
	)
	flag.Parse()

	if *sourceRef == "" || *userID == "" {
		log.Fatal().Msg("Error: -source-ref and -user-id are required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	log.Info().Str("source_ref", *sourceRef).Str("user_id", *userID).Msg("Starting ingestion")

	res, err := services.Ingestor.Ingest(ctx, pipeline.IngestRequest{
		SourceRef:  *sourceRef,
		UserID:     *userID,
		SourceFile: *sourceFile,
		ForceAI:    *forceAI,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("kind", string(pipeline.KindOf(err))).
			Msg("Ingestion failed")
		services.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal().Err(err).Msg("Failed to write result")
	}
}
