package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// runMigrations applies the embedded migrations that have not been applied
// yet. The migrate instance is not closed: closing it would close the
// shared *sql.DB.
func (s *SQLiteStore) runMigrations() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	defer src.Close()

	driver, err := sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		s.log.Debugw("empty database, applying all migrations")
	case err != nil:
		return fmt.Errorf("reading migration version: %w", err)
	case dirty:
		// A previous run failed partway; every migration is idempotent
		// (IF NOT EXISTS), so retry it from the version before.
		clean := int(version) - 1
		if clean < 1 {
			clean = database.NilVersion
		}
		s.log.Warnw("dirty migration state, retrying", "version", version, "reset_to", clean)
		if err := m.Force(clean); err != nil {
			return fmt.Errorf("resetting dirty migration: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
