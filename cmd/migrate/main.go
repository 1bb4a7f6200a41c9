package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/n3xfin/finance-tracker/internal/config"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/migrations"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// migrationPattern matches 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	var (
		projectID     = flag.String("project", cfg.ProjectID, "GCP project ID (or set GCP_PROJECT_ID)")
		datasetID     = flag.String("dataset", cfg.Dataset, "BigQuery dataset ID (or set BQ_DATASET)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Directory of .sql migrations; defaults to the embedded set")
		dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag or GCP_PROJECT_ID is required")
	}

	var fsys fs.FS
	dir := "bigquery"
	if *migrationsDir != "" {
		fsys, dir = os.DirFS(*migrationsDir), "."
	} else {
		fsys = migrations.BigQuery
	}

	all, err := readMigrations(fsys, dir, *projectID, *datasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(all)).Msg("Found migration files")

	ctx := context.Background()
	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{client: client, projectID: *projectID, datasetID: *datasetID, appliedBy: *appliedBy}
	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	pending, drifted := plan(all, applied)
	for _, d := range drifted {
		log.Warn().Int("version", d.Version).Str("name", d.Name).Msg("Applied migration file has changed since it was applied")
	}

	if *dryRun {
		for _, mg := range pending {
			fmt.Printf("pending %04d_%s\n", mg.Version, mg.Name)
		}
		return
	}

	for _, mg := range pending {
		log.Info().Msgf("  [RUN]  %04d_%s", mg.Version, mg.Name)

		if err := m.runDDL(ctx, mg.SQL); err != nil {
			log.Fatal().Err(err).Msgf("Failed to execute migration %04d_%s", mg.Version, mg.Name)
		}
		if err := m.recordMigration(ctx, mg); err != nil {
			log.Fatal().Err(err).Msgf("Failed to record migration %04d_%s", mg.Version, mg.Name)
		}

		log.Info().Msgf("  [OK]   %04d_%s", mg.Version, mg.Name)
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", len(pending)).Msg("Migrations applied")
	}
}

// plan returns the migrations not yet applied, in version order, and the
// applied ones whose checksum no longer matches the file.
func plan(all []Migration, applied []AppliedMigration) (pending, drifted []Migration) {
	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		appliedByVersion[am.Version] = am
	}

	for _, mg := range all {
		am, ok := appliedByVersion[mg.Version]
		if !ok {
			pending = append(pending, mg)
			continue
		}
		if am.Checksum != "" && am.Checksum != mg.Checksum {
			drifted = append(drifted, mg)
		}
	}
	return pending, drifted
}

// readMigrations loads NNNN_name.sql files from dir in fsys, substituting
// the project and dataset placeholders. Checksums cover the file content
// before substitution, so the same migration applied to two datasets has
// one checksum.
func readMigrations(fsys fs.FS, dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(file.Name())
		if matches == nil {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid name")
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid version")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := fs.ReadFile(fsys, pathJoin(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		out = append(out, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func pathJoin(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return dir + "/" + name
}

func (m *migrator) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.projectID, m.datasetID, name)
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return m.runDDL(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.table("schema_migrations")))
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := m.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, m.table("schema_migrations")))

	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, mg Migration) error {
	query := m.client.Query(fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.table("schema_migrations")))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: mg.Version},
		{Name: "name", Value: mg.Name},
		{Name: "checksum", Value: mg.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}
	return wait(ctx, query)
}

func (m *migrator) runDDL(ctx context.Context, sql string) error {
	return wait(ctx, m.client.Query(sql))
}

func wait(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
