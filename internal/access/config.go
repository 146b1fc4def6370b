package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
)

// GetActiveConfig returns the authoritative configuration, or nil when none
// is active. If storage ever holds several active records the oldest one
// wins and the anomaly is reported once until it clears.
func (s *Service) GetActiveConfig(ctx context.Context) (*models.ClientConfig, error) {
	configs, err := s.store.ListActiveConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active configs: %w", err)
	}

	switch len(configs) {
	case 0:
		s.multipleActiveReported.Store(false)
		return nil, nil
	case 1:
		s.multipleActiveReported.Store(false)
		return configs[0], nil
	}

	chosen := configs[0]
	s.logger.Error().
		Int("active_count", len(configs)).
		Str("chosen_id", chosen.ID.String()).
		Msg("multiple active client configurations found")

	if s.multipleActiveReported.CompareAndSwap(false, true) {
		ids := make([]string, 0, len(configs))
		for _, c := range configs {
			ids = append(ids, c.ID.String())
		}
		s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(chosen), models.StatusTypeSystem, models.SeverityError, models.SourceSystem,
			fmt.Sprintf("Multiple active configurations found, using %s", chosen.Name)).
			WithDetails(map[string]any{"active_ids": ids}))
	}
	return chosen, nil
}

// ListConfigs returns every configuration.
func (s *Service) ListConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	return s.store.ListConfigs(ctx)
}

// GetConfig returns a configuration by ID.
func (s *Service) GetConfig(ctx context.Context, id uuid.UUID) (*models.ClientConfig, error) {
	return s.store.GetConfig(ctx, id)
}

// CreateConfig validates and stores a new configuration.
func (s *Service) CreateConfig(ctx context.Context, principal *models.Principal, cfg *models.ClientConfig) error {
	if !principal.IsSystemAdmin() {
		return ErrPermissionDenied
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateConfig(ctx, cfg); err != nil {
		return err
	}

	s.logger.Info().
		Str("config_id", cfg.ID.String()).
		Bool("active", cfg.Active).
		Str("by", principal.Login).
		Msg("client configuration created")
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeSystem, models.SeverityInfo, models.SourceSystem,
		fmt.Sprintf("Configuration %s created", cfg.Name)).
		WithDetails(map[string]any{"by": principal.Login, "active": cfg.Active}))
	return nil
}

// SettingsUpdate holds the editable connection settings of a configuration.
// Nil fields are left unchanged.
type SettingsUpdate struct {
	Name              *string `json:"name"`
	ServerURL         *string `json:"server_url"`
	ClientID          *string `json:"client_id"`
	APIKey            *string `json:"api_key"`
	HeartbeatInterval *int    `json:"heartbeat_interval"`
	AutoReportStatus  *bool   `json:"auto_report_status"`
}

// UpdateConfigSettings edits connection settings. Access State fields are
// never touched here.
func (s *Service) UpdateConfigSettings(ctx context.Context, principal *models.Principal, id uuid.UUID, update SettingsUpdate) (*models.ClientConfig, error) {
	if !principal.IsSystemAdmin() {
		return nil, ErrPermissionDenied
	}

	cfg, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		cfg.Name = *update.Name
	}
	if update.ServerURL != nil {
		cfg.ServerURL = *update.ServerURL
	}
	if update.ClientID != nil {
		cfg.ClientID = *update.ClientID
	}
	if update.APIKey != nil {
		cfg.APIKey = *update.APIKey
	}
	if update.HeartbeatInterval != nil {
		cfg.HeartbeatInterval = *update.HeartbeatInterval
	}
	if update.AutoReportStatus != nil {
		cfg.AutoReportStatus = *update.AutoReportStatus
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateConfigSettings(ctx, cfg); err != nil {
		return nil, err
	}

	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeSystem, models.SeverityInfo, models.SourceSystem,
		"Configuration settings updated").
		WithDetails(map[string]any{"by": principal.Login}))
	return s.store.GetConfig(ctx, id)
}

// ActivateConfig makes id the active configuration.
func (s *Service) ActivateConfig(ctx context.Context, principal *models.Principal, id uuid.UUID) error {
	return s.setActive(ctx, principal, id, true)
}

// DeactivateConfig deactivates id.
func (s *Service) DeactivateConfig(ctx context.Context, principal *models.Principal, id uuid.UUID) error {
	return s.setActive(ctx, principal, id, false)
}

func (s *Service) setActive(ctx context.Context, principal *models.Principal, id uuid.UUID, active bool) error {
	if !principal.IsSystemAdmin() {
		return ErrPermissionDenied
	}
	if err := s.store.SetConfigActive(ctx, id, active); err != nil {
		return err
	}

	msg := "Configuration deactivated"
	if active {
		msg = "Configuration activated"
	}
	s.logger.Info().Str("config_id", id.String()).Bool("active", active).Str("by", principal.Login).Msg("client configuration activation changed")
	s.appendLog(ctx, models.NewStatusLogEntry(&id, models.StatusTypeSystem, models.SeverityInfo, models.SourceSystem, msg).
		WithDetails(map[string]any{"by": principal.Login}))
	return nil
}

// SetLocalAdminMode toggles local admin mode on a configuration and designates
// the principal allowed to drive overrides. Only the superuser or a system
// administrator may change it.
func (s *Service) SetLocalAdminMode(ctx context.Context, principal *models.Principal, id uuid.UUID, enabled bool, localAdminID *uuid.UUID) error {
	if !principal.IsSystemAdmin() {
		s.logger.Warn().
			Str("config_id", id.String()).
			Str("login", principalLogin(principal)).
			Msg("local admin mode change refused")
		return ErrPermissionDenied
	}

	if err := s.store.SetLocalAdmin(ctx, id, enabled, localAdminID); err != nil {
		return err
	}

	msg := "Local admin mode disabled, remote control resumed"
	if enabled {
		msg = "Local admin mode enabled, remote control suspended"
	}
	details := map[string]any{"by": principal.Login, "enabled": enabled}
	if localAdminID != nil {
		details["local_admin_principal_id"] = localAdminID.String()
	}

	s.logger.Info().Str("config_id", id.String()).Bool("enabled", enabled).Str("by", principal.Login).Msg("local admin mode changed")
	s.appendLog(ctx, models.NewStatusLogEntry(&id, models.StatusTypeSystem, models.SeverityInfo, models.SourceLocalAdmin, msg).
		WithDetails(details))
	return nil
}

// ListStatusLogs returns status log entries, newest first.
func (s *Service) ListStatusLogs(ctx context.Context, filter StatusLogFilter) ([]*models.StatusLogEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.store.ListStatusLogs(ctx, filter)
}

// IsNotFound reports whether err means a configuration does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func principalLogin(p *models.Principal) string {
	if p == nil {
		return ""
	}
	return p.Login
}
