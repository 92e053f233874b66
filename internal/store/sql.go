package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/iamgideonidoko/flowauth/pkg/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schemaRecords = `
CREATE TABLE IF NOT EXISTS kv_records (
    record_key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLStore keeps records in a single table. Works with both SQLite and
// PostgreSQL; queries are written with '?' and rebound per driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

type SQLConfig struct {
	Driver       string
	DSN          string // postgres connection URL
	SQLitePath   string
	MaxConns     int
	MaxIdleConns int
}

func NewSQLStore(cfg SQLConfig) (*SQLStore, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverSQLite:
		db, err = openSQLite(cfg.SQLitePath)
	case DriverPostgres:
		db, err = sqlx.Connect("postgres", cfg.DSN)
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(time.Hour)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLStore{db: db, driver: cfg.Driver}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// openSQLite uses modernc.org/sqlite (no CGO). A single connection keeps
// read-modify-write transactions from hitting SQLITE_BUSY upgrades.
func openSQLite(path string) (*sqlx.DB, error) {
	if path == "" {
		path = "./flowauth.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return db, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(schemaRecords)
	return err
}

// Get retrieves a record by key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := s.db.Rebind(`SELECT value FROM kv_records WHERE record_key = ?`)

	if err := s.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return value, nil
}

const lockKeyQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

// Update reads, transforms and writes a record inside one transaction.
func (s *SQLStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Warn("Failed to roll back transaction", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	// Row locks cannot cover a key that has no row yet, so postgres
	// serializes writers of a key on a transaction scoped advisory lock.
	if s.driver == DriverPostgres {
		if _, err := tx.ExecContext(ctx, lockKeyQuery, key); err != nil {
			return fmt.Errorf("failed to lock record: %w", err)
		}
	}

	var current []byte
	query := tx.Rebind(`SELECT value FROM kv_records WHERE record_key = ?`)
	if err := tx.GetContext(ctx, &current, query, key); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read record: %w", err)
		}
		current = nil
	}

	next, write, err := apply(fn, current)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}

	upsert := `
		INSERT INTO kv_records (record_key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (record_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, tx.Rebind(upsert), key, string(next), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting a missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := s.db.Rebind(`DELETE FROM kv_records WHERE record_key = ?`)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func (s *SQLStore) Stats() sql.DBStats {
	return s.db.Stats()
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
