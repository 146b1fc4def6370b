package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
)

const configColumns = `
	id, name, server_url, client_id, api_key, active, local_admin_mode, local_admin_user_id,
	heartbeat_interval, auto_report_status, is_blocked, block_reason, show_warning,
	warning_message, payment_status, outstanding_amount, last_contact, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*models.ClientConfig, error) {
	var c models.ClientConfig
	var id, paymentStatus, createdAt, updatedAt string
	var localAdmin, lastContact sql.NullString

	err := row.Scan(
		&id, &c.Name, &c.ServerURL, &c.ClientID, &c.APIKey, &c.Active, &c.LocalAdminMode,
		&localAdmin, &c.HeartbeatInterval, &c.AutoReportStatus, &c.IsBlocked, &c.BlockReason,
		&c.ShowWarning, &c.WarningMessage, &paymentStatus, &c.OutstandingAmount, &lastContact,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse config id: %w", err)
	}
	if c.LocalAdminPrincipalID, err = parseNullUUID(localAdmin); err != nil {
		return nil, fmt.Errorf("parse local admin id: %w", err)
	}
	if lastContact.Valid {
		t, err := parseTime(lastContact.String)
		if err != nil {
			return nil, fmt.Errorf("parse last contact: %w", err)
		}
		c.LastContact = &t
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	c.PaymentStatus = models.PaymentStatus(paymentStatus)
	return &c, nil
}

func (s *Store) listConfigs(ctx context.Context, where string, args ...any) ([]*models.ClientConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM client_configs `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list client configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.ClientConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// ListConfigs returns every client configuration.
func (s *Store) ListConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	return s.listConfigs(ctx, "")
}

// ListActiveConfigs returns active client configurations, oldest first.
func (s *Store) ListActiveConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	return s.listConfigs(ctx, "WHERE active = 1")
}

// GetConfig returns a client configuration by ID.
func (s *Store) GetConfig(ctx context.Context, id uuid.UUID) (*models.ClientConfig, error) {
	c, err := scanConfig(s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM client_configs WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get client config: %w", err)
	}
	return c, nil
}

// GetActiveConfigByClientID returns the active configuration with clientID.
func (s *Store) GetActiveConfigByClientID(ctx context.Context, clientID string) (*models.ClientConfig, error) {
	c, err := scanConfig(s.db.QueryRowContext(ctx, `
		SELECT `+configColumns+`
		FROM client_configs
		WHERE active = 1 AND client_id = ?
		ORDER BY created_at, id
		LIMIT 1
	`, clientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get active client config: %w", err)
	}
	return c, nil
}

// CreateConfig inserts a client configuration.
func (s *Store) CreateConfig(ctx context.Context, cfg *models.ClientConfig) error {
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = cfg.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cfg.ID.String(), cfg.Name, cfg.ServerURL, cfg.ClientID, cfg.APIKey, cfg.Active, cfg.LocalAdminMode,
		nullUUID(cfg.LocalAdminPrincipalID), cfg.HeartbeatInterval, cfg.AutoReportStatus, cfg.IsBlocked,
		cfg.BlockReason, cfg.ShowWarning, cfg.WarningMessage, string(cfg.PaymentStatus),
		cfg.OutstandingAmount, nullTime(cfg.LastContact), formatTime(cfg.CreatedAt), formatTime(cfg.UpdatedAt))
	if err != nil {
		return mapConfigError("insert client config", err)
	}
	return nil
}

// UpdateConfigSettings updates the connection settings of a configuration.
func (s *Store) UpdateConfigSettings(ctx context.Context, cfg *models.ClientConfig) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE client_configs
		SET name = ?, server_url = ?, client_id = ?, api_key = ?, heartbeat_interval = ?,
		    auto_report_status = ?, updated_at = ?
		WHERE id = ?
	`, cfg.Name, cfg.ServerURL, cfg.ClientID, cfg.APIKey, cfg.HeartbeatInterval, cfg.AutoReportStatus,
		formatTime(time.Now()), cfg.ID.String())
	if err != nil {
		return mapConfigError("update client config", err)
	}
	return requireRow(res)
}

// SetConfigActive activates or deactivates a configuration.
func (s *Store) SetConfigActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE client_configs SET active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(time.Now()), id.String())
	if err != nil {
		return mapConfigError("set client config active", err)
	}
	return requireRow(res)
}

// SetLocalAdmin toggles local admin mode and the designated principal.
func (s *Store) SetLocalAdmin(ctx context.Context, id uuid.UUID, enabled bool, principalID *uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE client_configs SET local_admin_mode = ?, local_admin_user_id = ?, updated_at = ? WHERE id = ?
	`, enabled, nullUUID(principalID), formatTime(time.Now()), id.String())
	if err != nil {
		return mapConfigError("set local admin", err)
	}
	return requireRow(res)
}

// ApplyAccessState writes the non-nil fields of patch in one statement,
// conditioned on local_admin_mode matching by.
func (s *Store) ApplyAccessState(ctx context.Context, id uuid.UUID, by access.Controller, patch models.AccessStatePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	var paymentStatus sql.NullString
	if patch.PaymentStatus != nil {
		paymentStatus = sql.NullString{String: string(*patch.PaymentStatus), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE client_configs SET
			is_blocked = COALESCE(?, is_blocked),
			block_reason = COALESCE(?, block_reason),
			show_warning = COALESCE(?, show_warning),
			warning_message = COALESCE(?, warning_message),
			payment_status = COALESCE(?, payment_status),
			outstanding_amount = COALESCE(?, outstanding_amount),
			last_contact = COALESCE(?, last_contact),
			updated_at = ?
		WHERE id = ? AND local_admin_mode = ?
	`, nullBool(patch.IsBlocked), nullString(patch.BlockReason), nullBool(patch.ShowWarning),
		nullString(patch.WarningMessage), paymentStatus, nullFloat(patch.OutstandingAmount),
		nullTime(patch.LastContact), formatTime(time.Now()), id.String(), by.LocalAdminMode())
	if err != nil {
		return fmt.Errorf("apply access state: %w", err)
	}
	err = requireRow(res)
	if !errors.Is(err, access.ErrNotFound) {
		return err
	}
	var exists bool
	if qerr := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM client_configs WHERE id = ?)`, id.String()).Scan(&exists); qerr != nil {
		return fmt.Errorf("apply access state: %w", qerr)
	}
	if exists {
		return by.Refusal()
	}
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return access.ErrNotFound
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
