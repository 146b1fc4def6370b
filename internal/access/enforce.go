package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/models"
)

// Access decisions reported to the Recorder.
const (
	DecisionAllow    = "allow"
	DecisionDeny     = "deny"
	DecisionExempt   = "exempt"
	DecisionFailOpen = "fail_open"
)

// Decision is the outcome of an enforcement check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	// Exempt is set when the principal bypassed the block.
	Exempt bool `json:"exempt,omitempty"`
	// FailOpen is set when an internal fault forced an allow.
	FailOpen bool `json:"fail_open,omitempty"`
}

// IsExempt reports whether principal bypasses blocks. The superuser, system
// administrators, SmartHive administrators and ERP managers are exempt, as is
// the designated local administrator while local admin mode is on, so that
// they can always reach the unblock action.
func IsExempt(principal *models.Principal, cfg *models.ClientConfig) bool {
	if principal == nil {
		return false
	}
	switch {
	case principal.IsSuperuser:
		return true
	case principal.Has(models.CapabilitySystemAdmin):
		return true
	case principal.Has(models.CapabilityHiveAdmin):
		return true
	case principal.Has(models.CapabilityERPManager):
		return true
	}
	return cfg != nil && cfg.LocalAdminMode && cfg.IsLocalAdmin(principal.ID)
}

// CheckAccess decides whether principal may perform an operation. Faults in
// the config lookup or exemption check never deny; they allow and leave an
// error entry in the status log.
func (s *Service) CheckAccess(ctx context.Context, principal *models.Principal) Decision {
	cfg, exempt, err := s.evaluate(ctx, principal)
	if err != nil {
		s.failOpen(ctx, principal, err)
		return Decision{Allowed: true, FailOpen: true}
	}

	switch {
	case exempt:
		s.metrics.AccessDecision(DecisionExempt)
		return Decision{Allowed: true, Exempt: true}
	case cfg == nil || !cfg.IsBlocked:
		s.metrics.AccessDecision(DecisionAllow)
		return Decision{Allowed: true}
	}

	reason := cfg.BlockReason
	if reason == "" {
		reason = DefaultBlockReason
	}
	s.metrics.AccessDecision(DecisionDeny)
	return Decision{Allowed: false, Reason: reason}
}

// CheckLogin runs after credentials verify. A blocked install refuses the
// login of a non-exempt principal with *AuthenticationDeniedError.
func (s *Service) CheckLogin(ctx context.Context, principal *models.Principal) error {
	d := s.CheckAccess(ctx, principal)
	if d.Allowed {
		return nil
	}
	s.logger.Info().Str("login", principalLogin(principal)).Str("reason", d.Reason).Msg("login refused, client access blocked")
	return &AuthenticationDeniedError{Reason: d.Reason}
}

func (s *Service) evaluate(ctx context.Context, principal *models.Principal) (cfg *models.ClientConfig, exempt bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg, exempt = nil, false
			err = fmt.Errorf("panic during access evaluation: %v", r)
		}
	}()

	if IsExempt(principal, nil) {
		return nil, true, nil
	}
	cfg, err = s.GetActiveConfig(ctx)
	if err != nil {
		return nil, false, err
	}
	return cfg, IsExempt(principal, cfg), nil
}

func (s *Service) failOpen(ctx context.Context, principal *models.Principal, err error) {
	s.logger.Error().Err(err).Str("login", principalLogin(principal)).Msg("access check failed, allowing access")
	s.metrics.FailOpen()
	s.metrics.AccessDecision(DecisionFailOpen)
	s.appendLog(ctx, models.NewStatusLogEntry(nil, models.StatusTypeError, models.SeverityError, models.SourceEnforcement,
		"Access check failed, allowing access: "+err.Error()).
		WithDetails(map[string]any{"login": principalLogin(principal)}))
}

// WarningData is the banner payload shown to end users.
type WarningData struct {
	ShowWarning       bool                 `json:"show_warning"`
	Message           string               `json:"message,omitempty"`
	PaymentStatus     models.PaymentStatus `json:"payment_status,omitempty"`
	OutstandingAmount float64              `json:"outstanding_amount"`
	BlockReason       string               `json:"block_reason,omitempty"`
}

// WarningData returns the banner to show. Read faults hide the banner.
func (s *Service) WarningData(ctx context.Context) WarningData {
	cfg, err := s.GetActiveConfig(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load warning data")
		return WarningData{}
	}
	if cfg == nil || !cfg.ShowWarning {
		return WarningData{}
	}

	data := WarningData{
		ShowWarning:       true,
		Message:           cfg.DisplayWarningMessage(),
		PaymentStatus:     cfg.PaymentStatus,
		OutstandingAmount: cfg.OutstandingAmount,
	}
	if cfg.IsBlocked {
		data.BlockReason = cfg.BlockReason
	}
	return data
}

// StatusSnapshot is the full access state reported to the remote authority.
type StatusSnapshot struct {
	Success           bool                 `json:"success"`
	IsBlocked         bool                 `json:"is_blocked"`
	BlockReason       string               `json:"block_reason"`
	ShowWarning       bool                 `json:"show_warning"`
	WarningMessage    string               `json:"warning_message"`
	PaymentStatus     models.PaymentStatus `json:"payment_status"`
	OutstandingAmount float64              `json:"outstanding_amount"`
	LastServerContact *string              `json:"last_server_contact"`
	LocalAdminMode    bool                 `json:"local_admin_mode"`
}

// Snapshot returns the state of cfg.
func Snapshot(cfg *models.ClientConfig) StatusSnapshot {
	snap := StatusSnapshot{
		Success:           true,
		IsBlocked:         cfg.IsBlocked,
		BlockReason:       cfg.BlockReason,
		ShowWarning:       cfg.ShowWarning,
		WarningMessage:    cfg.WarningMessage,
		PaymentStatus:     cfg.PaymentStatus,
		OutstandingAmount: cfg.OutstandingAmount,
		LocalAdminMode:    cfg.LocalAdminMode,
	}
	if cfg.LastContact != nil {
		ts := cfg.LastContact.UTC().Format(time.RFC3339)
		snap.LastServerContact = &ts
	}
	return snap
}

// IsAuthenticationDenied reports whether err is a login refusal.
func IsAuthenticationDenied(err error) bool {
	var denied *AuthenticationDeniedError
	return errors.As(err, &denied)
}
