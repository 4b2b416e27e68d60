package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/spendiq/internal/config"
	infraBQ "github.com/dvloznov/spendiq/internal/infra/bigquery"
	"github.com/dvloznov/spendiq/internal/infra/sqlite"
	"github.com/dvloznov/spendiq/internal/logger"
)

// options select the schema operation. Empty values fall back to the configuration.
type options struct {
	Backend  string
	SQLite   string
	Project  string
	Dataset  string
	Location string
	Down     bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogJSON)

	var opts options
	flag.StringVar(&opts.Backend, "backend", cfg.StoreBackend, "Store backend to migrate: sqlite or bigquery")
	flag.StringVar(&opts.SQLite, "sqlite", cfg.SQLitePath, "SQLite database path")
	flag.StringVar(&opts.Project, "project", cfg.BigQueryProject, "GCP project ID")
	flag.StringVar(&opts.Dataset, "dataset", cfg.BigQueryDataset, "BigQuery dataset ID")
	flag.StringVar(&opts.Location, "location", "US", "Location for a newly created BigQuery dataset")
	flag.BoolVar(&opts.Down, "down", false, "Roll back the last SQLite migration")
	flag.Parse()

	ctx := logger.WithContext(context.Background(), log)
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Str("backend", opts.Backend).Msg("Migration failed")
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	switch opts.Backend {
	case config.StoreSQLite:
		return migrateSQLite(ctx, opts, out)
	case config.StoreBigQuery:
		if opts.Down {
			return errors.New("-down is only supported for sqlite")
		}
		return migrateBigQuery(ctx, opts, out)
	case config.StoreMemory:
		fmt.Fprintln(out, "The memory backend has no schema; nothing to do.")
		return nil
	default:
		return fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

func migrateSQLite(ctx context.Context, opts options, out io.Writer) error {
	db, err := sqlite.Open(ctx, opts.SQLite)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.Down {
		err = sqlite.RollbackMigrations(ctx, db)
	} else {
		err = sqlite.RunMigrations(ctx, db)
	}
	if err != nil {
		return err
	}

	version, dirty, err := sqlite.SchemaVersion(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: schema version %d (dirty: %v)\n", opts.SQLite, version, dirty)
	return nil
}

func migrateBigQuery(ctx context.Context, opts options, out io.Writer) error {
	if opts.Project == "" || opts.Dataset == "" {
		return errors.New("-project and -dataset are required for bigquery")
	}

	client, err := bigquery.NewClient(ctx, opts.Project)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	created, err := infraBQ.EnsureDatasetWithClient(ctx, client, opts.Dataset, opts.Location)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created dataset %s.%s in %s\n", opts.Project, opts.Dataset, opts.Location)
	}

	if err := infraBQ.EnsureAnalysesTableWithClient(ctx, client, opts.Dataset); err != nil {
		return err
	}
	fmt.Fprintf(out, "Table %s.%s.analyses is ready\n", opts.Project, opts.Dataset)
	return nil
}
