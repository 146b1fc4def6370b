package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/google/uuid"
)

// Heartbeat results reported to the Recorder.
const (
	HeartbeatSent   = "sent"
	HeartbeatFailed = "failed"
)

// SendHeartbeat reports install stats to the remote authority and applies the
// returned access state. State is written in a single patch only when the
// exchange and decoding both succeed; any failure leaves it untouched.
func (s *Service) SendHeartbeat(ctx context.Context, configID uuid.UUID) remote.Result {
	cfg, err := s.store.GetConfig(ctx, configID)
	if err != nil {
		return s.heartbeatFailed(ctx, nil, fmt.Errorf("load configuration: %w", err))
	}
	if cfg.LocalAdminMode {
		return s.heartbeatFailed(ctx, cfg, ErrRemoteControlSuspended)
	}
	if !cfg.HasRemoteCredentials() {
		return s.heartbeatFailed(ctx, cfg, ErrIncompleteConfig)
	}

	payload := s.heartbeatPayload(ctx)
	res := s.remote.Request(ctx, targetOf(cfg), remote.EndpointHeartbeat, http.MethodPost, payload)
	if !res.Success {
		return s.heartbeatResultFailed(ctx, cfg, res, models.SeverityError)
	}

	var hb remote.HeartbeatResponse
	if err := res.Decode(&hb); err != nil {
		return s.heartbeatFailed(ctx, cfg, err)
	}
	status, err := models.ParsePaymentStatus(hb.PaymentStatus)
	if err != nil {
		return s.heartbeatFailed(ctx, cfg, &remote.Error{Kind: remote.KindDecode, Message: "invalid heartbeat response", Err: err})
	}

	now := s.now().UTC()
	patch := models.AccessStatePatch{
		IsBlocked:      ptr(hb.Blocked),
		BlockReason:    ptr(hb.BlockReason),
		ShowWarning:    ptr(hb.ShowWarning),
		WarningMessage: ptr(hb.WarningMessage),
		PaymentStatus:  ptr(status),
		LastContact:    &now,
	}
	if err := s.store.ApplyAccessState(ctx, cfg.ID, RemoteControl, patch); err != nil {
		if errors.Is(err, ErrRemoteControlSuspended) {
			s.logger.Warn().Str("config_id", cfg.ID.String()).Msg("local admin mode enabled during heartbeat, response discarded")
			return s.heartbeatFailed(ctx, cfg, err)
		}
		return s.heartbeatFailed(ctx, cfg, fmt.Errorf("persist access state: %w", err))
	}

	if hb.Blocked != cfg.IsBlocked {
		s.logger.Warn().
			Str("config_id", cfg.ID.String()).
			Bool("blocked", hb.Blocked).
			Str("reason", hb.BlockReason).
			Msg("remote authority changed block state")
	}
	s.logger.Debug().Str("config_id", cfg.ID.String()).Str("payment_status", string(status)).Msg("heartbeat successful")

	s.metrics.HeartbeatResult(HeartbeatSent)
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeHeartbeat, models.SeveritySuccess, models.SourceRemoteSync,
		"Heartbeat successful").WithDetails(res.Body))
	return res
}

// SendStatusUpdate posts a free-form status report. Only last_contact changes
// on success.
func (s *Service) SendStatusUpdate(ctx context.Context, configID uuid.UUID, payload map[string]any) remote.Result {
	cfg, err := s.store.GetConfig(ctx, configID)
	if err != nil {
		return s.statusUpdateFailed(ctx, nil, remote.Failure(fmt.Errorf("load configuration: %w", err)))
	}
	if !cfg.HasRemoteCredentials() {
		return s.statusUpdateFailed(ctx, cfg, remote.Failure(ErrIncompleteConfig))
	}

	res := s.remote.Request(ctx, targetOf(cfg), remote.EndpointStatus, http.MethodPost, payload)
	if !res.Success {
		return s.statusUpdateFailed(ctx, cfg, res)
	}

	now := s.now().UTC()
	switch err := s.store.ApplyAccessState(ctx, cfg.ID, RemoteControl, models.AccessStatePatch{LastContact: &now}); {
	case errors.Is(err, ErrRemoteControlSuspended):
		s.logger.Debug().Str("config_id", cfg.ID.String()).Msg("last contact not recorded, local admin mode enabled")
	case err != nil:
		s.logger.Error().Err(err).Str("config_id", cfg.ID.String()).Msg("failed to record last contact")
	}
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeSystem, models.SeveritySuccess, models.SourceRemoteSync,
		"Status update sent").WithDetails(payload))
	return res
}

// TestConnection verifies the credentials of a configuration by sending a
// heartbeat.
func (s *Service) TestConnection(ctx context.Context, principal *models.Principal, configID uuid.UUID) (remote.Result, error) {
	if !principal.IsSystemAdmin() {
		return remote.Result{}, ErrPermissionDenied
	}

	cfg, err := s.store.GetConfig(ctx, configID)
	if err != nil {
		return remote.Result{}, err
	}
	switch {
	case cfg.ServerURL == "":
		return remote.Result{}, fmt.Errorf("%w: server url is required", ErrIncompleteConfig)
	case cfg.APIKey == "":
		return remote.Result{}, fmt.Errorf("%w: api key is required", ErrIncompleteConfig)
	case cfg.ClientID == "":
		return remote.Result{}, fmt.Errorf("%w: client id is required", ErrIncompleteConfig)
	}

	res := s.SendHeartbeat(ctx, configID)
	if !res.Success {
		return res, &ConnectionTestError{Result: res}
	}
	return res, nil
}

func (s *Service) heartbeatPayload(ctx context.Context) remote.HeartbeatRequest {
	req := remote.HeartbeatRequest{
		HostVersion:  s.hostVersion,
		AddonVersion: AddonVersion,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
	}
	if s.stats == nil {
		return req
	}

	if n, err := s.stats.CountUsers(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to count users for heartbeat")
	} else {
		req.UsersCount = n
	}
	if n, err := s.stats.CountCompanies(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to count companies for heartbeat")
	} else {
		req.CompaniesCount = n
	}
	return req
}

func (s *Service) heartbeatFailed(ctx context.Context, cfg *models.ClientConfig, err error) remote.Result {
	severity := models.SeverityError
	if errors.Is(err, ErrRemoteControlSuspended) {
		severity = models.SeverityWarning
	}
	return s.heartbeatResultFailed(ctx, cfg, remote.Failure(err), severity)
}

func (s *Service) heartbeatResultFailed(ctx context.Context, cfg *models.ClientConfig, res remote.Result, severity models.StatusSeverity) remote.Result {
	ev := s.logger.Error()
	if cfg != nil {
		ev = ev.Str("config_id", cfg.ID.String())
	}
	ev.Str("kind", string(res.Kind)).Str("error", res.Error).Msg("heartbeat failed")

	s.metrics.HeartbeatResult(HeartbeatFailed)
	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeHeartbeat, severity, models.SourceRemoteSync,
		"Heartbeat failed: "+res.Error).
		WithDetails(map[string]any{"kind": res.Kind, "status_code": res.StatusCode}))
	return res
}

func (s *Service) statusUpdateFailed(ctx context.Context, cfg *models.ClientConfig, res remote.Result) remote.Result {
	ev := s.logger.Error()
	if cfg != nil {
		ev = ev.Str("config_id", cfg.ID.String())
	}
	ev.Str("kind", string(res.Kind)).Str("error", res.Error).Msg("status update failed")

	s.appendLog(ctx, models.NewStatusLogEntry(configIDPtr(cfg), models.StatusTypeSystem, models.SeverityError, models.SourceRemoteSync,
		"Status update failed: "+res.Error).
		WithDetails(map[string]any{"kind": res.Kind, "status_code": res.StatusCode}))
	return res
}

func targetOf(cfg *models.ClientConfig) remote.Target {
	return remote.Target{
		ServerURL: cfg.ServerURL,
		ClientID:  cfg.ClientID,
		APIKey:    cfg.APIKey,
	}
}
