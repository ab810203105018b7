package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateUp applies all pending embedded migrations. ErrNoChange is not an
// error.
func migrateUp(db *sql.DB, log logging.Logger) error {
	m, err := newMigrate(db, log)
	if err != nil {
		return err
	}
	// m is not closed: closing it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// schemaVersion returns the applied migration version, 0 when none.
func schemaVersion(db *sql.DB, log logging.Logger) (uint, bool, error) {
	m, err := newMigrate(db, log)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(db *sql.DB, log logging.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{log: log}
	return m, nil
}

// migrateLogger implements migrate.Logger on top of logging.Logger.
type migrateLogger struct {
	log logging.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(context.Background(), "migrate: "+fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
