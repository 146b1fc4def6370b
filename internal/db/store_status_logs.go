package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
)

// AppendStatusLog inserts a status log entry.
func (db *DB) AppendStatusLog(ctx context.Context, entry *models.StatusLogEntry) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO status_logs (id, config_id, type, severity, source, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ConfigID, string(entry.Type), string(entry.Severity), string(entry.Source),
		entry.Message, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append status log: %w", err)
	}
	return nil
}

// ListStatusLogs returns status log entries, newest first.
func (db *DB) ListStatusLogs(ctx context.Context, filter access.StatusLogFilter) ([]*models.StatusLogEntry, error) {
	var conds []string
	var args []any
	if filter.ConfigID != nil {
		args = append(args, *filter.ConfigID)
		conds = append(conds, fmt.Sprintf("config_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}

	query := `SELECT id, config_id, type, severity, source, message, details, created_at FROM status_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list status logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.StatusLogEntry
	for rows.Next() {
		var e models.StatusLogEntry
		var typ, severity, source string
		if err := rows.Scan(&e.ID, &e.ConfigID, &typ, &severity, &source, &e.Message, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		e.Type = models.StatusType(typ)
		e.Severity = models.StatusSeverity(severity)
		e.Source = models.StatusSource(source)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
