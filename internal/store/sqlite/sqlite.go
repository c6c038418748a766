// Package sqlite implements the store ports on SQLite.
//
// The database is opened in WAL mode with a busy timeout and foreign keys
// enabled, and limited to a single open connection. The schema is managed
// by golang-migrate from migrations embedded in the binary.
//
// Tables:
//
//	sessions             session metadata, one row per (tenant, id)
//	session_movements    bankMovements and internalMovements subcollections
//	audit_log            append-only lifecycle audit entries
//	notification_outbox  emitted events, unique per (tenant, dedupe key)
//	internal_movements   the internal ledger used as the matching source
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the session, audit, notification and ledger ports.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	log := logger.GetGlobalLogger().WithComponent("sqlite_store")

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.PersistenceError(errors.CodeWriteFailed, "create database directory", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreOffline, "open database", err)
	}

	// A single connection avoids SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.PersistenceError(errors.CodeStoreOffline, "ping database", err)
	}

	store := &Store{db: db, logger: log}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", path).Debug("Database connection established")
	return store, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.InternalError("load migrations", err)
	}

	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "create migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "create migrator", err)
	}

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("No new database migrations to apply")
			return nil
		}
		return errors.PersistenceError(errors.CodeWriteFailed, "apply migrations", err)
	}

	s.logger.Info("Database migrations applied successfully")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.PersistenceError(errors.CodeStoreOffline, "ping database", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
