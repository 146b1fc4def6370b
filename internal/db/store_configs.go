package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	singleActiveIndex = "client_configs_single_active"
)

const configColumns = `
	id, name, server_url, client_id, api_key, active, local_admin_mode, local_admin_user_id,
	heartbeat_interval, auto_report_status, is_blocked, block_reason, show_warning,
	warning_message, payment_status, outstanding_amount, last_contact, created_at, updated_at`

func scanConfig(row pgx.Row) (*models.ClientConfig, error) {
	var c models.ClientConfig
	var paymentStatus string
	err := row.Scan(
		&c.ID, &c.Name, &c.ServerURL, &c.ClientID, &c.APIKey, &c.Active, &c.LocalAdminMode,
		&c.LocalAdminPrincipalID, &c.HeartbeatInterval, &c.AutoReportStatus, &c.IsBlocked,
		&c.BlockReason, &c.ShowWarning, &c.WarningMessage, &paymentStatus, &c.OutstandingAmount,
		&c.LastContact, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.PaymentStatus = models.PaymentStatus(paymentStatus)
	return &c, nil
}

func (db *DB) listConfigs(ctx context.Context, where string, args ...any) ([]*models.ClientConfig, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+configColumns+` FROM client_configs `+where+` ORDER BY created_at, id`, args...)
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
func (db *DB) ListConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	return db.listConfigs(ctx, "")
}

// ListActiveConfigs returns active client configurations, oldest first.
func (db *DB) ListActiveConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	return db.listConfigs(ctx, "WHERE active")
}

// GetConfig returns a client configuration by ID.
func (db *DB) GetConfig(ctx context.Context, id uuid.UUID) (*models.ClientConfig, error) {
	c, err := scanConfig(db.Pool.QueryRow(ctx, `SELECT `+configColumns+` FROM client_configs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get client config: %w", err)
	}
	return c, nil
}

// GetActiveConfigByClientID returns the active configuration with clientID.
func (db *DB) GetActiveConfigByClientID(ctx context.Context, clientID string) (*models.ClientConfig, error) {
	c, err := scanConfig(db.Pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM client_configs
		WHERE active AND client_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get active client config: %w", err)
	}
	return c, nil
}

// CreateConfig inserts a client configuration.
func (db *DB) CreateConfig(ctx context.Context, cfg *models.ClientConfig) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO client_configs (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, cfg.ID, cfg.Name, cfg.ServerURL, cfg.ClientID, cfg.APIKey, cfg.Active, cfg.LocalAdminMode,
		cfg.LocalAdminPrincipalID, cfg.HeartbeatInterval, cfg.AutoReportStatus, cfg.IsBlocked,
		cfg.BlockReason, cfg.ShowWarning, cfg.WarningMessage, string(cfg.PaymentStatus),
		cfg.OutstandingAmount, cfg.LastContact, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return mapConfigError("create client config", err)
	}
	return nil
}

// UpdateConfigSettings updates the connection settings of a configuration.
func (db *DB) UpdateConfigSettings(ctx context.Context, cfg *models.ClientConfig) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE client_configs
		SET name = $2, server_url = $3, client_id = $4, api_key = $5,
		    heartbeat_interval = $6, auto_report_status = $7, updated_at = NOW()
		WHERE id = $1
	`, cfg.ID, cfg.Name, cfg.ServerURL, cfg.ClientID, cfg.APIKey, cfg.HeartbeatInterval, cfg.AutoReportStatus)
	if err != nil {
		return mapConfigError("update client config", err)
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

// SetConfigActive activates or deactivates a configuration.
func (db *DB) SetConfigActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE client_configs SET active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	if err != nil {
		return mapConfigError("set client config active", err)
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

// SetLocalAdmin toggles local admin mode and the designated principal.
func (db *DB) SetLocalAdmin(ctx context.Context, id uuid.UUID, enabled bool, principalID *uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE client_configs
		SET local_admin_mode = $2, local_admin_user_id = $3, updated_at = NOW()
		WHERE id = $1
	`, id, enabled, principalID)
	if err != nil {
		return mapConfigError("set local admin", err)
	}
	if tag.RowsAffected() == 0 {
		return access.ErrNotFound
	}
	return nil
}

// ApplyAccessState writes the non-nil fields of patch in one statement,
// conditioned on local_admin_mode matching by.
func (db *DB) ApplyAccessState(ctx context.Context, id uuid.UUID, by access.Controller, patch models.AccessStatePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	var paymentStatus *string
	if patch.PaymentStatus != nil {
		s := string(*patch.PaymentStatus)
		paymentStatus = &s
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE client_configs SET
			is_blocked = COALESCE($2, is_blocked),
			block_reason = COALESCE($3, block_reason),
			show_warning = COALESCE($4, show_warning),
			warning_message = COALESCE($5, warning_message),
			payment_status = COALESCE($6, payment_status),
			outstanding_amount = COALESCE($7, outstanding_amount),
			last_contact = COALESCE($8, last_contact),
			updated_at = NOW()
		WHERE id = $1 AND local_admin_mode = $9
	`, id, patch.IsBlocked, patch.BlockReason, patch.ShowWarning, patch.WarningMessage,
		paymentStatus, patch.OutstandingAmount, patch.LastContact, by.LocalAdminMode())
	if err != nil {
		return fmt.Errorf("apply access state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM client_configs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("apply access state: %w", err)
		}
		if exists {
			return by.Refusal()
		}
		return access.ErrNotFound
	}
	return nil
}

func mapConfigError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == singleActiveIndex:
			return access.ErrActiveConfigExists
		case pgErr.Code == pgForeignKeyViolation:
			return &models.ValidationError{Field: "local_admin_principal_id", Message: "unknown principal"}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
