package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/n3xfin/finance-tracker/internal/config"
	infraBQ "github.com/n3xfin/finance-tracker/internal/infra/bigquery"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/notionsync"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	userID := flag.String("user-id", "", "User whose transactions to mirror (required)")
	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format (required)")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format, inclusive (required)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	if *userID == "" {
		log.Fatal().Msg("Error: -user-id is required")
	}
	if *startDateStr == "" || *endDateStr == "" {
		log.Fatal().Msg("Error: -start-date and -end-date are required")
	}
	if *notionToken == "" || *notionDBID == "" {
		log.Fatal().Msg("Error: a Notion token and database ID are required")
	}

	startDate, err := time.Parse("2006-01-02", *startDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
	}
	endDate, err := time.Parse("2006-01-02", *endDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		log.Fatal().
			Time("start_date", startDate).
			Time("end_date", endDate).
			Msg("Error: end-date must not be before start-date")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	repo, err := infraBQ.NewBigQueryRepository(ctx, cfg.ProjectID, cfg.Dataset, cfg.InsertBatchSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	res, err := notionsync.SyncTransactions(ctx, repo, notionsync.NewNotionClient(*notionToken), *notionDBID,
		*userID, startDate, endDate.AddDate(0, 0, 1), *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
}
