package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/n3xfin/finance-tracker/internal/analytics"
	"github.com/n3xfin/finance-tracker/internal/app"
	"github.com/n3xfin/finance-tracker/internal/config"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/gcsuploader"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "ingest":
		runIngest(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "categorize":
		runCategorize(cfg, log)
	case "spending":
		runSpending(cfg, log)
	case "anomalies":
		runAnomalies(cfg, log)
	case "trends":
		runTrends(cfg, log)
	case "forecast":
		runForecast(cfg, log)
	case "alerts":
		runAlerts(cfg, log)
	case "report":
		runReport(cfg, log)
	case "feedback":
		runFeedback(cfg, log)
	case "purge":
		runPurge(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest      Ingest a statement already uploaded to GCS")
	fmt.Println("  upload      Upload a local statement to GCS, optionally ingesting it")
	fmt.Println("  categorize  Categorize a user's uncategorized transactions")
	fmt.Println("  spending    Show spending by category for a date range")
	fmt.Println("  anomalies   List unusual expenses from the last 90 days")
	fmt.Println("  trends      Compare the last 30 days of spending with the 30 before")
	fmt.Println("  forecast    Predict a category's spending for the coming days")
	fmt.Println("  alerts      List categories on course to overspend")
	fmt.Println("  report      Build a monthly report, as text or CSV")
	fmt.Println("  feedback    Confirm or reject a flagged anomaly")
	fmt.Println("  purge       Delete the transactions written by one ingestion run")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// bootstrap builds the shared services with a deadline so commands can't hang.
func bootstrap(cfg *config.Config, log zerolog.Logger) (context.Context, *app.App, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	ctx = logger.WithContext(ctx, log)

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	return ctx, services, func() {
		services.Close()
		cancel()
	}
}

func requireUser(log zerolog.Logger, userID string) {
	if userID == "" {
		log.Fatal().Msg("Error: -user-id is required")
	}
}

func runIngest(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	sourceRef := fs.String("source-ref", "", "gs:// reference of the statement")
	userID := fs.String("user-id", "", "Owner of the statement")
	forceAI := fs.Bool("force-ai", false, "Extract with the model even for delimited files")
	fs.Parse(os.Args[2:])

	if *sourceRef == "" {
		log.Fatal().Msg("Error: -source-ref is required")
	}
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	res, err := services.Ingestor.Ingest(ctx, pipeline.IngestRequest{
		SourceRef: *sourceRef,
		UserID:    *userID,
		ForceAI:   *forceAI,
	})
	if err != nil {
		log.Fatal().Err(err).Str("kind", string(pipeline.KindOf(err))).Msg("Ingestion failed")
	}
	printIngestResult(res)
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.Bucket, "GCS bucket name (or set GCS_BUCKET)")
	objectName := fs.String("object", "", "GCS object name (defaults to statements/<user>/<timestamp>_<file>)")
	filePath := fs.String("file", "", "Path to the local statement")
	userID := fs.String("user-id", "", "Owner of the statement")
	ingest := fs.Bool("ingest", false, "Ingest the statement after uploading")
	forceAI := fs.Bool("force-ai", false, "Extract with the model even for delimited files")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH -user-id ID [-ingest]")
	}
	requireUser(log, *userID)

	if *objectName == "" {
		*objectName = gcsuploader.ObjectName(*userID, *filePath, time.Now())
	}

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	ref, err := services.Storage.UploadFile(ctx, *bucketName, *objectName, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s to %s\n", *filePath, ref)

	if !*ingest {
		return
	}

	res, err := services.Ingestor.Ingest(ctx, pipeline.IngestRequest{
		SourceRef:  ref,
		UserID:     *userID,
		SourceFile: *filePath,
		ForceAI:    *forceAI,
	})
	if err != nil {
		log.Fatal().Err(err).Str("kind", string(pipeline.KindOf(err))).Msg("Ingestion failed")
	}
	printIngestResult(res)
}

func printIngestResult(res *pipeline.IngestResult) {
	fmt.Println("\n=== Ingestion Result ===")
	fmt.Printf("Run ID:      %s\n", res.IngestionRunID)
	fmt.Printf("Tier:        %s\n", res.Tier)
	fmt.Printf("Extracted:   %d\n", res.TotalExtracted)
	fmt.Printf("Unique:      %d\n", res.Unique)
	fmt.Printf("Stored:      %d\n", res.Stored)
	fmt.Printf("Duplicates:  %d\n", res.DuplicatesSkipped)
	fmt.Printf("Skipped:     %d\n", res.SkippedRows)
}

func runCategorize(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	userID := fs.String("user-id", "", "User whose transactions to categorize")
	limit := fs.Int("limit", 100, "Maximum transactions to categorize")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	if services.Categorizer == nil {
		log.Fatal().Msg("Categorization needs GEMINI_MODEL to be set")
	}

	summary, err := services.Categorizer.CategorizeUser(ctx, *userID, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Categorization failed")
	}
	fmt.Println(summary.Message)
	fmt.Printf("Processed: %d  Categorized: %d  Left as Other: %d\n",
		summary.TotalProcessed, summary.Categorized, summary.Uncategorized)
}

func runSpending(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("spending", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to report on")
	start := fs.String("start", "", "First day, YYYY-MM-DD (defaults to 30 days ago)")
	end := fs.String("end", "", "Last day, YYYY-MM-DD, inclusive (defaults to today)")
	granularity := fs.String("granularity", "month", "Series bucket: day, week or month")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	g, err := analytics.ParseGranularity(*granularity)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid granularity")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := parseDay(log, *start, today.AddDate(0, 0, -30))
	to := parseDay(log, *end, today).AddDate(0, 0, 1)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	report, err := services.Analytics.SpendingReport(ctx, *userID, from, to, g)
	if err != nil {
		log.Fatal().Err(err).Msg("Spending report failed")
	}

	fmt.Printf("\n=== Spending %s to %s ===\n", from.Format(dateLayout), to.AddDate(0, 0, -1).Format(dateLayout))
	fmt.Printf("Total: %s\n\n", report.Total.StringFixed(2))
	for _, c := range report.Categories {
		fmt.Printf("  %-24s %12s  %5.1f%%  (%d)\n", c.Category, c.TotalAmount.StringFixed(2), c.PercentageOfTotal, c.TransactionCount)
	}
	if len(report.Series) > 0 {
		fmt.Println()
		for _, p := range report.Series {
			fmt.Printf("  %s  %12s\n", p.Timestamp.Format(dateLayout), p.Amount.StringFixed(2))
		}
	}
}

func runAnomalies(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("anomalies", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to check")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	anomalies, err := services.Analytics.RecentAnomalies(ctx, *userID, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Anomaly detection failed")
	}

	fmt.Printf("\n=== Anomalies (%d) ===\n", len(anomalies))
	for i, a := range anomalies {
		tx := a.Transaction
		fmt.Printf("\n%d. [%s] %s\n", i+1, a.Severity, tx.Description)
		fmt.Printf("   Date:     %s\n", tx.Date.Format(dateLayout))
		fmt.Printf("   Amount:   %s\n", tx.Amount.StringFixed(2))
		fmt.Printf("   Category: %s\n", tx.Category)
		fmt.Printf("   Expected: %.2f to %.2f\n", a.ExpectedRange.Min, a.ExpectedRange.Max)
		fmt.Printf("   %s\n", a.Reason)
	}
	fmt.Println()
}

func runTrends(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("trends", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to report on")
	category := fs.String("category", "", "Limit to one category (default: all)")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	trend, err := services.Analytics.Trend(ctx, *userID, *category, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Trend failed")
	}

	fmt.Printf("Category:  %s\n", trend.Category)
	fmt.Printf("Current:   %s\n", trend.CurrentTotal.StringFixed(2))
	fmt.Printf("Previous:  %s\n", trend.PreviousTotal.StringFixed(2))
	fmt.Printf("Trend:     %s (%+.1f%%, %s)\n", trend.Direction, trend.PercentageChange, trend.ComparisonPeriod)
}

func runForecast(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("forecast", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to forecast")
	category := fs.String("category", "", "Category to forecast")
	horizon := fs.Int("horizon-days", 30, "Days ahead to predict")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	f, err := services.Analytics.Forecast(ctx, *userID, *category, *horizon, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Forecast failed")
	}

	fmt.Printf("Category:    %s\n", f.Category)
	if f.Message != "" {
		fmt.Printf("%s (%d data points)\n", f.Message, f.DataPoints)
		return
	}
	fmt.Printf("Predicted:   %s over %d days\n", f.PredictedAmount.StringFixed(2), f.HorizonDays)
	fmt.Printf("Average:     %s\n", f.HistoricalAverage.StringFixed(2))
	fmt.Printf("Weekly trend: %+.2f\n", f.WeeklyTrend)
	fmt.Printf("Confidence:  %.2f (%d data points)\n", f.Confidence, f.DataPoints)
}

func runAlerts(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to check")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	alerts, err := services.Analytics.Alerts(ctx, *userID, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Alert generation failed")
	}

	fmt.Printf("\n=== Alerts (%d) ===\n", len(alerts))
	for i, a := range alerts {
		fmt.Printf("\n%d. [%s] %s\n", i+1, a.Severity, a.Message)
		for _, rec := range a.Recommendations {
			fmt.Printf("   - %s\n", rec)
		}
	}
	fmt.Println()
}

func runReport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to report on")
	month := fs.String("month", "", "Month, YYYY-MM (defaults to last month)")
	csvOut := fs.String("csv", "", "Write the report as CSV to this file ('-' for stdout)")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	if *month != "" {
		m, err := analytics.ParseMonth(*month)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid month")
		}
		monthStart = m
	}

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	report, err := services.Analytics.MonthlyReport(ctx, *userID, monthStart, now)
	if err != nil {
		log.Fatal().Err(err).Msg("Monthly report failed")
	}

	if *csvOut != "" {
		writeReportCSV(log, report, *csvOut)
		return
	}

	fmt.Printf("\n=== Report %s ===\n", report.Month)
	fmt.Printf("Income:       %s\n", report.TotalIncome.StringFixed(2))
	fmt.Printf("Spending:     %s\n", report.TotalSpending.StringFixed(2))
	fmt.Printf("Savings rate: %.1f%%\n\n", report.SavingsRate)
	for _, c := range report.Categories {
		fmt.Printf("  %-24s %12s  %5.1f%%  (%d)\n", c.Category, c.TotalAmount.StringFixed(2), c.PercentageOfTotal, c.TransactionCount)
	}
	for _, tr := range report.Trends {
		fmt.Printf("  %-24s %s (%+.1f%%)\n", tr.Category, tr.Direction, tr.PercentageChange)
	}
	fmt.Println()
	for _, insight := range report.Insights {
		fmt.Printf("* %s\n", insight)
	}
}

func writeReportCSV(log zerolog.Logger, report *analytics.MonthlyReport, path string) {
	if path == "-" {
		if err := analytics.ExportCSV(os.Stdout, report); err != nil {
			log.Fatal().Err(err).Msg("CSV export failed")
		}
		return
	}

	f, err := os.Create(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to create CSV file")
	}
	if err := analytics.ExportCSV(f, report); err != nil {
		f.Close()
		log.Fatal().Err(err).Msg("CSV export failed")
	}
	if err := f.Close(); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to close CSV file")
	}
	log.Info().Str("path", path).Str("month", report.Month).Msg("Report written")
}

func runFeedback(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	userID := fs.String("user-id", "", "Owner of the transaction")
	txID := fs.String("transaction-id", "", "Flagged transaction")
	legitimate := fs.Bool("legitimate", true, "Whether the transaction is legitimate")
	notes := fs.String("notes", "", "Optional notes")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	fb, err := services.Analytics.RecordAnomalyFeedback(ctx, domain.AnomalyFeedback{
		UserID:        *userID,
		TransactionID: *txID,
		IsLegitimate:  *legitimate,
		Notes:         *notes,
	}, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Recording feedback failed")
	}
	fmt.Printf("Recorded feedback for %s (legitimate=%t)\n", fb.TransactionID, fb.IsLegitimate)
}

func runPurge(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	userID := fs.String("user-id", "", "Owner of the run")
	runID := fs.String("run-id", "", "Ingestion run to delete")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)
	if *runID == "" {
		log.Fatal().Msg("Error: -run-id is required")
	}

	ctx, services, done := bootstrap(cfg, log)
	defer done()

	if err := services.Repo.DeleteIngestionRun(ctx, *userID, *runID); err != nil {
		log.Fatal().Err(err).Msg("Purge failed")
	}
	fmt.Printf("Deleted transactions of ingestion run %s\n", *runID)
}

func parseDay(log zerolog.Logger, raw string, def time.Time) time.Time {
	if raw == "" {
		return def
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		log.Fatal().Err(err).Str("date", raw).Msg("Dates must be YYYY-MM-DD")
	}
	return t
}
