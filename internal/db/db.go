// Package db provides the embedded SQLite store for workpieces, holes and
// measurements.
//
// The database runs in embedded mode with WAL for concurrent reads. It is
// authoritative for aggregate statistics and relational queries; the
// mirrored directory tree owned by fsstore is authoritative for path
// layout. Reconciliation between the two lives in the hybrid package.
//
// Schema evolution is additive only: Migrate adds new nullable columns
// with defaults so older on-disk databases upgrade in place, and never
// rewrites or drops existing data.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DB wraps the SQLite connection with inspection-domain repositories.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call InitSchema before first use.
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the schema if it doesn't exist and applies additive
// migrations to databases created by older versions. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workpieces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workpiece_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		material TEXT NOT NULL DEFAULT '',
		dxf_file_path TEXT NOT NULL DEFAULT '',
		project_data_path TEXT NOT NULL DEFAULT '',
		hole_count INTEGER NOT NULL DEFAULT 0,
		completed_holes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		description TEXT,
		version TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hole_id TEXT NOT NULL,
		workpiece_id INTEGER NOT NULL,
		position_x REAL NOT NULL,
		position_y REAL NOT NULL,
		target_diameter REAL NOT NULL,
		tolerance REAL NOT NULL DEFAULT 0.1,
		depth REAL NOT NULL,
		file_system_path TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		last_measurement_at TEXT,
		measurement_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (workpiece_id, hole_id),
		FOREIGN KEY (workpiece_id) REFERENCES workpieces(id)
	);

	CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hole_id INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		depth REAL NOT NULL,
		diameter REAL NOT NULL,
		operator TEXT,
		is_qualified INTEGER NOT NULL,
		deviation REAL NOT NULL,
		FOREIGN KEY (hole_id) REFERENCES holes(id)
	);

	CREATE INDEX IF NOT EXISTS idx_holes_workpiece ON holes(workpiece_id);
	CREATE INDEX IF NOT EXISTS idx_holes_status ON holes(status);
	CREATE INDEX IF NOT EXISTS idx_holes_hole_id ON holes(hole_id);
	CREATE INDEX IF NOT EXISTS idx_measurements_hole ON measurements(hole_id);
	CREATE INDEX IF NOT EXISTS idx_measurements_timestamp ON measurements(hole_id, timestamp);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db.migrate(ctx)
}

// migrate applies additive column migrations for databases created before
// the column existed. New columns are always nullable or defaulted so no
// destructive rewrite is ever needed.
func (db *DB) migrate(ctx context.Context) error {
	migrations := []struct {
		table, column, decl string
	}{
		{"workpieces", "description", "description TEXT"},
		{"workpieces", "version", "version TEXT"},
		{"holes", "last_measurement_at", "last_measurement_at TEXT"},
		{"holes", "measurement_count", "measurement_count INTEGER NOT NULL DEFAULT 0"},
		{"measurements", "operator", "operator TEXT"},
	}

	for _, m := range migrations {
		if err := db.ensureColumn(ctx, m.table, m.column, m.decl); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn adds a column if the table doesn't have it yet.
func (db *DB) ensureColumn(ctx context.Context, table, column, decl string) error {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	exists := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan table info: %w", err)
		}
		if strings.EqualFold(name, column) {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating table info: %w", err)
	}

	if exists {
		return nil
	}

	if _, err := db.conn.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, decl)); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// as a unit on error. All multi-row writes for one logical operation go
// through here.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
