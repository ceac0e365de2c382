// Package sqlitestore persists a workbook in an embedded SQLite database.
//
// The database runs in WAL mode so that a second process (another sheetbridge
// instance, or a person with the sqlite3 shell) can read and edit the
// workbook while it is open. Commits made by other connections are detected
// by polling PRAGMA data_version and reported through Watch.
//
// Schema:
//   - sheets: name and position of every worksheet
//   - cells: one row per non-empty cell, keyed by sheet and zero-based row/col
//   - sheet_tables: named tables and their A1 range (header row included)
//   - bindings: named range bindings
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("sqlitestore: closed")

// Config holds configuration for the store.
type Config struct {
	// PollInterval is how often Watch checks for commits by other connections.
	PollInterval time.Duration

	// Logger for watcher activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 250 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// Store implements document.Backend on top of SQLite.
type Store struct {
	conn   *sql.DB
	path   string
	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Open opens or creates the database at path with the default configuration.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(path string) (*Store, error) {
	return OpenWithConfig(path, DefaultConfig())
}

// OpenWithConfig opens the database with custom configuration.
func OpenWithConfig(path string, config *Config) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
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

	s := &Store{
		conn:   conn,
		path:   path,
		config: config,
		logger: logger.With("component", "sqlitestore", "path", path),
		done:   make(chan struct{}),
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	if err := s.InitSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// InitSchema creates the schema if it doesn't exist. It is idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sheets (
		name TEXT PRIMARY KEY COLLATE NOCASE,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cells (
		sheet TEXT NOT NULL COLLATE NOCASE,
		row_idx INTEGER NOT NULL,
		col_idx INTEGER NOT NULL,
		kind TEXT NOT NULL,  -- s, n, b
		value TEXT NOT NULL,
		PRIMARY KEY (sheet, row_idx, col_idx),
		FOREIGN KEY (sheet) REFERENCES sheets(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sheet_tables (
		name TEXT PRIMARY KEY COLLATE NOCASE,
		sheet TEXT NOT NULL COLLATE NOCASE,
		position INTEGER NOT NULL,
		a1_range TEXT NOT NULL,
		FOREIGN KEY (sheet) REFERENCES sheets(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS bindings (
		id TEXT PRIMARY KEY COLLATE NOCASE,
		sheet TEXT NOT NULL COLLATE NOCASE,
		position INTEGER NOT NULL,
		a1_range TEXT NOT NULL,
		FOREIGN KEY (sheet) REFERENCES sheets(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sheet_tables_sheet ON sheet_tables(sheet);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Load implements document.Backend.
func (s *Store) Load(ctx context.Context) (*document.Snapshot, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snap := &document.Snapshot{}
	index := make(map[string]int)

	rows, err := tx.QueryContext(ctx, `SELECT name FROM sheets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheets: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		index[normalizeName(name)] = len(snap.Sheets)
		snap.Sheets = append(snap.Sheets, document.SheetSnapshot{Name: name, Cells: make(map[string]document.Value)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheets: %w", err)
	}

	sheetFor := func(name string) (*document.SheetSnapshot, error) {
		i, ok := index[normalizeName(name)]
		if !ok {
			return nil, fmt.Errorf("reference to unknown sheet %q", name)
		}
		return &snap.Sheets[i], nil
	}

	rows, err = tx.QueryContext(ctx, `SELECT sheet, row_idx, col_idx, kind, value FROM cells`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	for rows.Next() {
		var sheet, kind, raw string
		var row, col int
		if err := rows.Scan(&sheet, &row, &col, &kind, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		sh, err := sheetFor(sheet)
		if err != nil {
			rows.Close()
			return nil, err
		}
		v, err := decodeValue(kind, raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("cell %s!%s: %w", sheet, address.Ref{Row: row, Col: col}, err)
		}
		sh.Cells[address.Ref{Row: row, Col: col}.String()] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cells: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `SELECT name, sheet, a1_range FROM sheet_tables ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	for rows.Next() {
		var name, sheet, rng string
		if err := rows.Scan(&name, &sheet, &rng); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		sh, err := sheetFor(sheet)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sh.Tables = append(sh.Tables, document.TableSnapshot{Name: name, Range: rng})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `SELECT id, sheet, a1_range FROM bindings ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b document.BindingSnapshot
		if err := rows.Scan(&b.ID, &b.Sheet, &b.Range); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		snap.Bindings = append(snap.Bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bindings: %w", err)
	}

	return snap, nil
}

// Save implements document.Backend. The stored workbook is replaced in one
// transaction.
func (s *Store) Save(ctx context.Context, snap *document.Snapshot) error {
	if snap == nil {
		snap = &document.Snapshot{}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"bindings", "sheet_tables", "cells", "sheets"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, sh := range snap.Sheets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sheets (name, position) VALUES (?, ?)`, sh.Name, i); err != nil {
			return fmt.Errorf("failed to insert sheet %q: %w", sh.Name, err)
		}
		for key, v := range sh.Cells {
			ref, err := address.Parse(key)
			if err != nil {
				return fmt.Errorf("sheet %q: %w", sh.Name, err)
			}
			kind, raw, err := encodeValue(v)
			if err != nil {
				return fmt.Errorf("cell %s!%s: %w", sh.Name, key, err)
			}
			if kind == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cells (sheet, row_idx, col_idx, kind, value) VALUES (?, ?, ?, ?, ?)`,
				sh.Name, ref.Row, ref.Col, kind, raw,
			); err != nil {
				return fmt.Errorf("failed to insert cell %s!%s: %w", sh.Name, key, err)
			}
		}
		for j, t := range sh.Tables {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sheet_tables (name, sheet, position, a1_range) VALUES (?, ?, ?, ?)`,
				t.Name, sh.Name, j, t.Range,
			); err != nil {
				return fmt.Errorf("failed to insert table %q: %w", t.Name, err)
			}
		}
	}

	for i, b := range snap.Bindings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bindings (id, sheet, position, a1_range) VALUES (?, ?, ?, ?)`,
			b.ID, b.Sheet, i, b.Range,
		); err != nil {
			return fmt.Errorf("failed to insert binding %q: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CellCount returns the number of non-empty cells stored.
func (s *Store) CellCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cells`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cells: %w", err)
	}
	return count, nil
}

// Close stops all watches, checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("failed to checkpoint WAL", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(name)
}

// encodeValue maps a cell value to its kind tag and text form. Empty cells
// return an empty kind and are not stored.
func encodeValue(v document.Value) (kind, raw string, err error) {
	n, err := document.Normalize(v)
	if err != nil {
		return "", "", err
	}
	switch x := n.(type) {
	case string:
		if x == "" {
			return "", "", nil
		}
		return "s", x, nil
	case float64:
		return "n", strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return "b", strconv.FormatBool(x), nil
	}
	return "", "", fmt.Errorf("unexpected value %T", n)
}

func decodeValue(kind, raw string) (document.Value, error) {
	switch kind {
	case "s":
		return raw, nil
	case "n":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", raw, err)
		}
		return f, nil
	case "b":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q: %w", raw, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown cell kind %q", kind)
	}
}
