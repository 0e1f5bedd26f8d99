// Package sqlite persists xdpfwd run state: one row per
// attach-to-detach session and the reload events recorded during it.
//
// The store is a plain data access layer. The daemon is the only
// writer and serialises access from its single control goroutine, so
// no transaction management is exposed; each method executes in
// autocommit mode. WAL mode is enabled for crash recovery, and every
// query uses a prepared statement so the SQL is parsed once at open
// time rather than per call.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/frobware/xdpfwd"
)

//go:embed schema.sql
var schemaSQL string

// sessionStore implements xdpfwd.Store using SQLite.
type sessionStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmtCreateSession *sql.Stmt
	stmtCloseSession  *sql.Stmt
	stmtListSessions  *sql.Stmt
	stmtRecordReload  *sql.Stmt
	stmtListReloads   *sql.Stmt
}

// New creates a SQLite store at dbPath, creating the parent directory
// if needed.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (xdpfwd.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{{"journal_mode", "WAL"}, {"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return open(ctx, db, logger)
}

// NewInMemory creates an in-memory store for testing.
func NewInMemory(ctx context.Context, logger *slog.Logger) (xdpfwd.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", [][2]string{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	return open(ctx, db, logger)
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (xdpfwd.Store, error) {
	s := &sessionStore{db: db, logger: logger}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Debug("opened database")
	return s, nil
}

func (s *sessionStore) prepareStatements(ctx context.Context) error {
	var err error

	const sqlCreateSession = `
		INSERT INTO sessions (interface, mode, object_path, pin_dir, started_at)
		VALUES (?, ?, ?, ?, ?)`
	if s.stmtCreateSession, err = s.db.PrepareContext(ctx, sqlCreateSession); err != nil {
		return fmt.Errorf("prepare CreateSession: %w", err)
	}

	const sqlCloseSession = `
		UPDATE sessions SET ended_at = ?, clean = ? WHERE id = ?`
	if s.stmtCloseSession, err = s.db.PrepareContext(ctx, sqlCloseSession); err != nil {
		return fmt.Errorf("prepare CloseSession: %w", err)
	}

	const sqlListSessions = `
		SELECT id, interface, mode, object_path, pin_dir, started_at, ended_at, clean
		FROM sessions
		ORDER BY id DESC
		LIMIT ?`
	if s.stmtListSessions, err = s.db.PrepareContext(ctx, sqlListSessions); err != nil {
		return fmt.Errorf("prepare ListSessions: %w", err)
	}

	const sqlRecordReload = `
		INSERT INTO reload_events (session_id, at, config_mtime, ok)
		VALUES (?, ?, ?, ?)`
	if s.stmtRecordReload, err = s.db.PrepareContext(ctx, sqlRecordReload); err != nil {
		return fmt.Errorf("prepare RecordReload: %w", err)
	}

	const sqlListReloads = `
		SELECT session_id, at, config_mtime, ok
		FROM reload_events
		WHERE session_id = ?
		ORDER BY id ASC`
	if s.stmtListReloads, err = s.db.PrepareContext(ctx, sqlListReloads); err != nil {
		return fmt.Errorf("prepare ListReloads: %w", err)
	}

	return nil
}

// Close closes all prepared statements and the database connection.
func (s *sessionStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateSession,
		s.stmtCloseSession,
		s.stmtListSessions,
		s.stmtRecordReload,
		s.stmtListReloads,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// timeFormat stores timestamps as RFC3339 with sub-second precision so
// lexical ordering matches chronological ordering.
const timeFormat = time.RFC3339Nano
