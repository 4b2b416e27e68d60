package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens the database at path with WAL journaling and a busy timeout.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", path, err)
	}

	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: pinging %s: %w", path, err)
	}

	return db, nil
}

// RunMigrations applies the embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	log := logger.FromContext(ctx)

	m, err := newMigrator(db)
	if err != nil {
		return fmt.Errorf("RunMigrations: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug().Msg("No new database migrations to apply")
			return nil
		}
		return fmt.Errorf("RunMigrations: applying: %w", err)
	}

	log.Info().Msg("Database migrations applied")
	return nil
}

// RollbackMigrations reverts the last applied migration.
func RollbackMigrations(ctx context.Context, db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return fmt.Errorf("RollbackMigrations: %w", err)
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("RollbackMigrations: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Info().Msg("Rolled back one database migration")
	return nil
}

// SchemaVersion returns the applied migration version. Version 0 means no migration
// has been applied; dirty reports a migration that failed halfway.
func SchemaVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, fmt.Errorf("SchemaVersion: %w", err)
	}

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("SchemaVersion: %w", err)
	}
	return version, dirty, nil
}

// newMigrator wraps db in a migrator over the embedded migrations. The migrator is
// never closed: m.Close would close db as well, so that is left to the caller.
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}
