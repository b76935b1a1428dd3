// Package sqlite is the default VideoRepository backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/walletreel/walletreel/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS video_requests (
    id TEXT PRIMARY KEY,
    owner_address TEXT NOT NULL,
    report_address TEXT NOT NULL,
    prompt TEXT NOT NULL,
    duration INTEGER NOT NULL,
    activity_type TEXT NOT NULL DEFAULT 'transactions',
    status TEXT NOT NULL,
    chain_id INTEGER NOT NULL DEFAULT 1,
    network TEXT NOT NULL DEFAULT '',
    balance TEXT NOT NULL DEFAULT '',
    transaction_count INTEGER NOT NULL DEFAULT 0,
    reports TEXT NOT NULL DEFAULT '[]',
    intro_text TEXT NOT NULL DEFAULT '',
    outro_text TEXT NOT NULL DEFAULT '',
    render_id TEXT NOT NULL DEFAULT '',
    video_url TEXT NOT NULL DEFAULT '',
    video_size INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_video_requests_owner ON video_requests(owner_address, created_at);
CREATE INDEX IF NOT EXISTS idx_video_requests_status ON video_requests(status, updated_at);
`

type DBConfig struct {
	MaxRetries         int
	RetryDelay         time.Duration
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxRetries:         3,
		RetryDelay:         100 * time.Millisecond,
		MaxConnections:     10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	}
}

type DB struct {
	*sql.DB
	statements *PreparedStatements
	config     DBConfig
}

// Open creates the database file if needed, applies pragmas and schema and
// prepares every statement the repository uses.
func Open(ctx context.Context, dbPath string, config DBConfig) (*DB, error) {
	const op = "sqlite.Open"

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Internal(op, err, "failed to create database directory")
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}

	conn.SetMaxOpenConns(config.MaxConnections)
	conn.SetMaxIdleConns(config.MaxIdleConnections)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := configurePragmas(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	if err := execSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	stmts := &PreparedStatements{}
	if err := stmts.Prepare(ctx, conn); err != nil {
		stmts.Close()
		conn.Close()
		return nil, err
	}

	return &DB{DB: conn, statements: stmts, config: config}, nil
}

func (db *DB) Close() error {
	stmtErr := db.statements.Close()
	if err := db.DB.Close(); err != nil {
		return err
	}
	return stmtErr
}

func configurePragmas(ctx context.Context, db *sql.DB) error {
	const op = "sqlite.configurePragmas"

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -2000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to set pragma: %s", pragma))
		}
	}

	return nil
}

func execSchema(ctx context.Context, db *sql.DB) error {
	const op = "sqlite.execSchema"

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Internal(op, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to execute schema statement: %s", stmt))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Internal(op, err, "failed to commit schema transaction")
	}

	return nil
}

// withRetry reruns fn while SQLite reports lock contention.
func withRetry(ctx context.Context, config DBConfig, fn func() error) error {
	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isLockError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.RetryDelay * time.Duration(i+1)):
		}
	}
	return err
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
