package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/models"
)

// AuthenticateClient resolves the active configuration matching the shared
// secret presented by the remote authority.
func (s *Service) AuthenticateClient(ctx context.Context, clientID, apiKey string) (*models.ClientConfig, error) {
	if clientID == "" || apiKey == "" {
		return nil, ErrInvalidCredentials
	}

	cfg, err := s.store.GetActiveConfigByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup client config: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(cfg.APIKey), []byte(apiKey)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return cfg, nil
}

// ApplyRemoteBlock applies a block pushed by the remote authority.
func (s *Service) ApplyRemoteBlock(ctx context.Context, cfg *models.ClientConfig, blocked bool, reason string) error {
	if cfg.LocalAdminMode {
		return s.refuseRemote(ctx, cfg, "block")
	}
	if reason == "" {
		reason = DefaultRemoteBlockReason
	}

	patch := models.AccessStatePatch{IsBlocked: ptr(blocked), BlockReason: ptr(reason)}
	if err := s.store.ApplyAccessState(ctx, cfg.ID, RemoteControl, patch); err != nil {
		if errors.Is(err, ErrRemoteControlSuspended) {
			return s.refuseRemote(ctx, cfg, "block")
		}
		return fmt.Errorf("apply remote block: %w", err)
	}

	severity, msg := models.SeverityWarning, "Client access blocked: "+reason
	if !blocked {
		severity, msg = models.SeveritySuccess, "Client access unblocked"
	}
	s.logger.Warn().Str("config_id", cfg.ID.String()).Bool("blocked", blocked).Str("reason", reason).Msg("remote authority pushed block")
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeBlock, severity, models.SourceRemoteAuthority, msg).
		WithDetails(map[string]any{"blocked": blocked, "block_reason": reason}))
	return nil
}

// ApplyRemoteUnblock clears a block as instructed by the remote authority.
func (s *Service) ApplyRemoteUnblock(ctx context.Context, cfg *models.ClientConfig) error {
	if cfg.LocalAdminMode {
		return s.refuseRemote(ctx, cfg, "unblock")
	}

	patch := models.AccessStatePatch{IsBlocked: ptr(false), BlockReason: ptr("")}
	if err := s.store.ApplyAccessState(ctx, cfg.ID, RemoteControl, patch); err != nil {
		if errors.Is(err, ErrRemoteControlSuspended) {
			return s.refuseRemote(ctx, cfg, "unblock")
		}
		return fmt.Errorf("apply remote unblock: %w", err)
	}

	s.logger.Info().Str("config_id", cfg.ID.String()).Msg("remote authority pushed unblock")
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeBlock, models.SeveritySuccess, models.SourceRemoteAuthority,
		"Client access unblocked"))
	return nil
}

// ApplyRemoteWarning sets the warning banner as instructed by the remote authority.
func (s *Service) ApplyRemoteWarning(ctx context.Context, cfg *models.ClientConfig, update WarningUpdate) error {
	if cfg.LocalAdminMode {
		return s.refuseRemote(ctx, cfg, "warning")
	}

	patch, err := update.patch()
	if err != nil {
		return err
	}
	if err := s.store.ApplyAccessState(ctx, cfg.ID, RemoteControl, patch); err != nil {
		if errors.Is(err, ErrRemoteControlSuspended) {
			return s.refuseRemote(ctx, cfg, "warning")
		}
		return fmt.Errorf("apply remote warning: %w", err)
	}

	msg := "Warning banner disabled"
	if update.ShowWarning {
		msg = "Warning banner enabled"
	}
	s.logger.Info().Str("config_id", cfg.ID.String()).Bool("show_warning", update.ShowWarning).Msg("remote authority pushed warning")
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeWarning, models.SeverityInfo, models.SourceRemoteAuthority, msg).
		WithDetails(update))
	return nil
}

func (s *Service) refuseRemote(ctx context.Context, cfg *models.ClientConfig, action string) error {
	s.logger.Warn().Str("config_id", cfg.ID.String()).Str("action", action).Msg("remote action refused, local admin mode enabled")
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeSystem, models.SeverityWarning, models.SourceRemoteAuthority,
		fmt.Sprintf("Remote %s refused while local admin mode is enabled", action)))
	return ErrRemoteControlSuspended
}
