// Package sqlite provides a single-file store for installs without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the hiveguard stores on SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("sqlite database initialized")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			is_superuser INTEGER NOT NULL DEFAULT 0,
			capabilities TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS users_login_key ON users(login COLLATE NOCASE);

		CREATE TABLE IF NOT EXISTS client_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			server_url TEXT NOT NULL,
			client_id TEXT NOT NULL,
			api_key TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0,
			local_admin_mode INTEGER NOT NULL DEFAULT 0,
			local_admin_user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
			heartbeat_interval INTEGER NOT NULL DEFAULT 15 CHECK (heartbeat_interval > 0),
			auto_report_status INTEGER NOT NULL DEFAULT 1,
			is_blocked INTEGER NOT NULL DEFAULT 0,
			block_reason TEXT NOT NULL DEFAULT '',
			show_warning INTEGER NOT NULL DEFAULT 0,
			warning_message TEXT NOT NULL DEFAULT '',
			payment_status TEXT NOT NULL DEFAULT 'paid'
				CHECK (payment_status IN ('paid', 'pending', 'overdue', 'blocked')),
			outstanding_amount REAL NOT NULL DEFAULT 0 CHECK (outstanding_amount >= 0),
			last_contact TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS client_configs_single_active ON client_configs(active) WHERE active = 1;

		CREATE TABLE IF NOT EXISTS status_logs (
			id TEXT PRIMARY KEY,
			config_id TEXT REFERENCES client_configs(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_status_logs_config_created ON status_logs(config_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// constraintError reports whether err is a SQLite constraint failure of the
// given extended code mentioning target.
func constraintError(err error, code int, target string) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code() == code && strings.Contains(serr.Error(), target)
}

func mapConfigError(op string, err error) error {
	switch {
	case constraintError(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "client_configs.active"):
		return access.ErrActiveConfigExists
	case constraintError(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY"):
		return &models.ValidationError{Field: "local_admin_principal_id", Message: "unknown principal"}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func marshalCapabilities(p *models.Principal) (string, error) {
	data, err := json.Marshal(p.CapabilityStrings())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
