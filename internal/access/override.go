package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/models"
)

// Override actions reported to the Recorder.
const (
	OverrideBlock   = "block"
	OverrideUnblock = "unblock"
	OverrideWarning = "warning"
)

// WarningUpdate sets the warning banner and payment fields.
type WarningUpdate struct {
	ShowWarning       bool    `json:"show_warning"`
	Message           string  `json:"warning_message"`
	PaymentStatus     string  `json:"payment_status"`
	OutstandingAmount float64 `json:"outstanding_amount"`
}

func (u WarningUpdate) patch() (models.AccessStatePatch, error) {
	status, err := models.ParsePaymentStatus(u.PaymentStatus)
	if err != nil {
		return models.AccessStatePatch{}, &models.ValidationError{Field: "payment_status", Message: err.Error()}
	}
	p := models.AccessStatePatch{
		ShowWarning:       ptr(u.ShowWarning),
		WarningMessage:    ptr(u.Message),
		PaymentStatus:     ptr(status),
		OutstandingAmount: ptr(u.OutstandingAmount),
	}
	if err := p.Validate(); err != nil {
		return models.AccessStatePatch{}, err
	}
	return p, nil
}

// SetLocalBlock blocks or unblocks the active configuration on behalf of the
// local administrator. No network call is made.
func (s *Service) SetLocalBlock(ctx context.Context, principal *models.Principal, blocked bool, reason string) (*models.ClientConfig, error) {
	cfg, err := s.localOverrideTarget(ctx, principal)
	if err != nil {
		return nil, err
	}

	patch := models.AccessStatePatch{IsBlocked: ptr(blocked)}
	action, severity := OverrideUnblock, models.SeveritySuccess
	msg := "Client access unblocked by local admin"
	if blocked {
		if reason == "" {
			reason = DefaultLocalBlockReason
		}
		action, severity = OverrideBlock, models.SeverityWarning
		msg = "Client access blocked by local admin: " + reason
	} else {
		reason = ""
	}
	patch.BlockReason = ptr(reason)

	if err := s.store.ApplyAccessState(ctx, cfg.ID, LocalControl, patch); err != nil {
		if errors.Is(err, ErrFeatureDisabled) {
			return nil, err
		}
		return nil, fmt.Errorf("apply local block: %w", err)
	}

	s.logger.Info().Str("config_id", cfg.ID.String()).Bool("blocked", blocked).Str("by", principal.Login).Msg("local admin changed block state")
	s.metrics.OverrideAction(action)
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeBlock, severity, models.SourceLocalAdmin, msg).
		WithDetails(map[string]any{"by": principal.Login, "reason": reason}))
	return s.store.GetConfig(ctx, cfg.ID)
}

// SetLocalWarning sets the warning banner of the active configuration on
// behalf of the local administrator.
func (s *Service) SetLocalWarning(ctx context.Context, principal *models.Principal, update WarningUpdate) (*models.ClientConfig, error) {
	cfg, err := s.localOverrideTarget(ctx, principal)
	if err != nil {
		return nil, err
	}

	patch, err := update.patch()
	if err != nil {
		return nil, err
	}
	if err := s.store.ApplyAccessState(ctx, cfg.ID, LocalControl, patch); err != nil {
		if errors.Is(err, ErrFeatureDisabled) {
			return nil, err
		}
		return nil, fmt.Errorf("apply local warning: %w", err)
	}

	msg := "Warning banner disabled by local admin"
	if update.ShowWarning {
		msg = "Warning banner enabled by local admin"
	}
	s.logger.Info().Str("config_id", cfg.ID.String()).Bool("show_warning", update.ShowWarning).Str("by", principal.Login).Msg("local admin changed warning")
	s.metrics.OverrideAction(OverrideWarning)
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeWarning, models.SeverityInfo, models.SourceLocalAdmin, msg).
		WithDetails(map[string]any{"by": principal.Login, "update": update}))
	return s.store.GetConfig(ctx, cfg.ID)
}

// localOverrideTarget returns the active configuration if principal may
// override it. The feature check precedes the identity check.
func (s *Service) localOverrideTarget(ctx context.Context, principal *models.Principal) (*models.ClientConfig, error) {
	cfg, err := s.GetActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoActiveConfig
	}
	if !cfg.LocalAdminMode {
		return nil, ErrFeatureDisabled
	}
	if principal == nil || !(principal.IsSystemAdmin() || cfg.IsLocalAdmin(principal.ID)) {
		s.logger.Warn().Str("login", principalLogin(principal)).Msg("local override refused")
		return nil, ErrPermissionDenied
	}
	return cfg, nil
}
