package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
)

// AppendStatusLog inserts a status log entry.
func (s *Store) AppendStatusLog(ctx context.Context, entry *models.StatusLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_logs (id, config_id, type, severity, source, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID.String(), nullUUID(entry.ConfigID), string(entry.Type), string(entry.Severity),
		string(entry.Source), entry.Message, entry.Details, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	return nil
}

// ListStatusLogs returns status log entries, newest first.
func (s *Store) ListStatusLogs(ctx context.Context, filter access.StatusLogFilter) ([]*models.StatusLogEntry, error) {
	var conds []string
	var args []any
	if filter.ConfigID != nil {
		conds = append(conds, "config_id = ?")
		args = append(args, filter.ConfigID.String())
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT id, config_id, type, severity, source, message, details, created_at FROM status_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list status logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.StatusLogEntry
	for rows.Next() {
		var e models.StatusLogEntry
		var id, typ, severity, source, createdAt string
		var configID sql.NullString
		if err := rows.Scan(&id, &configID, &typ, &severity, &source, &e.Message, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse status log id: %w", err)
		}
		if e.ConfigID, err = parseNullUUID(configID); err != nil {
			return nil, fmt.Errorf("parse status log config id: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse status log time: %w", err)
		}
		e.Type = models.StatusType(typ)
		e.Severity = models.StatusSeverity(severity)
		e.Source = models.StatusSource(source)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
