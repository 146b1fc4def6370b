// Package access is the access-state synchronization and enforcement engine.
//
// It owns the active client configuration and its embedded Access State,
// applies heartbeat results from the remote authority, lets a designated
// local administrator take over control, and answers enforcement checks
// for login and per-operation authorization.
package access

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AddonVersion is reported to the remote authority with every heartbeat.
const AddonVersion = "17.0.1.0.0"

const (
	// DefaultBlockReason is surfaced when a block carries no reason.
	DefaultBlockReason = "Access restricted by administrator"
	// DefaultRemoteBlockReason is stored when the remote authority blocks without a reason.
	DefaultRemoteBlockReason = "Blocked by administrator"
	// DefaultLocalBlockReason is stored when the local administrator blocks without a reason.
	DefaultLocalBlockReason = "Access blocked by local administrator"
)

// Store persists client configurations and the status log.
type Store interface {
	ListConfigs(ctx context.Context) ([]*models.ClientConfig, error)
	// ListActiveConfigs returns active records ordered by creation time, then id.
	ListActiveConfigs(ctx context.Context) ([]*models.ClientConfig, error)
	GetConfig(ctx context.Context, id uuid.UUID) (*models.ClientConfig, error)
	GetActiveConfigByClientID(ctx context.Context, clientID string) (*models.ClientConfig, error)
	// CreateConfig fails with ErrActiveConfigExists if cfg is active and another record already is.
	CreateConfig(ctx context.Context, cfg *models.ClientConfig) error
	UpdateConfigSettings(ctx context.Context, cfg *models.ClientConfig) error
	// SetConfigActive fails with ErrActiveConfigExists when activating a second record.
	SetConfigActive(ctx context.Context, id uuid.UUID, active bool) error
	SetLocalAdmin(ctx context.Context, id uuid.UUID, enabled bool, principalID *uuid.UUID) error
	// ApplyAccessState writes every non-nil field of patch in one atomic
	// statement, only while the record's local_admin_mode matches by.
	// A mismatch on an existing record returns by.Refusal().
	ApplyAccessState(ctx context.Context, id uuid.UUID, by Controller, patch models.AccessStatePatch) error
	AppendStatusLog(ctx context.Context, entry *models.StatusLogEntry) error
	ListStatusLogs(ctx context.Context, filter StatusLogFilter) ([]*models.StatusLogEntry, error)
}

// Controller names the side writing Access State. Remote and local control
// are mutually exclusive, selected by a configuration's local_admin_mode.
type Controller int

const (
	// RemoteControl writes require local_admin_mode = false.
	RemoteControl Controller = iota
	// LocalControl writes require local_admin_mode = true.
	LocalControl
)

// LocalAdminMode is the local_admin_mode value under which c may write.
func (c Controller) LocalAdminMode() bool {
	return c == LocalControl
}

// Refusal is the error returned when c's write loses to a mode change.
func (c Controller) Refusal() error {
	if c == LocalControl {
		return ErrFeatureDisabled
	}
	return ErrRemoteControlSuspended
}

func (c Controller) String() string {
	if c == LocalControl {
		return "local"
	}
	return "remote"
}

// StatusLogFilter narrows a status log listing. Entries are returned newest first.
type StatusLogFilter struct {
	ConfigID *uuid.UUID
	Type     models.StatusType
	Limit    int
}

// InstallStats reports install size for heartbeats.
type InstallStats interface {
	CountUsers(ctx context.Context) (int, error)
	CountCompanies(ctx context.Context) (int, error)
}

// Recorder receives engine events for metrics.
type Recorder interface {
	HeartbeatResult(result string)
	AccessDecision(decision string)
	FailOpen()
	OverrideAction(action string)
}

type nopRecorder struct{}

func (nopRecorder) HeartbeatResult(string) {}
func (nopRecorder) AccessDecision(string)  {}
func (nopRecorder) FailOpen()              {}
func (nopRecorder) OverrideAction(string)  {}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Store       Store
	Remote      remote.Requester
	Stats       InstallStats
	Metrics     Recorder
	HostVersion string
	Logger      zerolog.Logger
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Service is the access-state engine.
type Service struct {
	store       Store
	remote      remote.Requester
	stats       InstallStats
	metrics     Recorder
	hostVersion string
	now         func() time.Time
	logger      zerolog.Logger

	multipleActiveReported atomic.Bool
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:       cfg.Store,
		remote:      cfg.Remote,
		stats:       cfg.Stats,
		metrics:     cfg.Metrics,
		hostVersion: cfg.HostVersion,
		now:         cfg.Clock,
		logger:      cfg.Logger.With().Str("component", "access").Logger(),
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hostVersion == "" {
		s.hostVersion = "Unknown"
	}
	return s
}

// SystemPrincipal is the identity used by console tooling and bootstrap.
// It is a superuser and therefore passes every capability check.
var SystemPrincipal = &models.Principal{
	ID:          uuid.Nil,
	Login:       "__system__",
	IsSuperuser: true,
}

// appendLog writes entry to the status log. The audit trail must survive a
// cancelled request, so the write detaches from ctx cancellation.
func (s *Service) appendLog(ctx context.Context, entry *models.StatusLogEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.AppendStatusLog(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("type", string(entry.Type)).
			Str("message", entry.Message).
			Msg("failed to append status log entry")
	}
}

func configIDPtr(cfg *models.ClientConfig) *uuid.UUID {
	if cfg == nil {
		return nil
	}
	id := cfg.ID
	return &id
}

func ptr[T any](v T) *T {
	return &v
}
