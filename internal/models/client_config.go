package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultConfigName is the name given to a client configuration when none is supplied.
const DefaultConfigName = "SmartHive Client Config"

// DefaultHeartbeatInterval is the default heartbeat interval in minutes.
const DefaultHeartbeatInterval = 15

// ValidationError describes a client configuration field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ClientConfig is the configuration record of one client install. At most one
// record may be active at a time; the active record is the authoritative one.
type ClientConfig struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	ServerURL             string     `json:"server_url"`
	ClientID              string     `json:"client_id"`
	APIKey                string     `json:"-"`
	Active                bool       `json:"active"`
	LocalAdminMode        bool       `json:"local_admin_mode"`
	LocalAdminPrincipalID *uuid.UUID `json:"local_admin_principal_id,omitempty"`
	HeartbeatInterval     int        `json:"heartbeat_interval"`
	AutoReportStatus      bool       `json:"auto_report_status"`
	AccessState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClientConfig creates an inactive ClientConfig with defaults applied.
func NewClientConfig(serverURL, clientID, apiKey string) *ClientConfig {
	now := time.Now().UTC()
	return &ClientConfig{
		ID:                uuid.New(),
		Name:              DefaultConfigName,
		ServerURL:         serverURL,
		ClientID:          clientID,
		APIKey:            apiKey,
		HeartbeatInterval: DefaultHeartbeatInterval,
		AutoReportStatus:  true,
		AccessState: AccessState{
			PaymentStatus: PaymentStatusPaid,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the fields the write boundary must enforce.
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if c.ServerURL == "" {
		return &ValidationError{Field: "server_url", Message: "is required"}
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return &ValidationError{Field: "server_url", Message: "must start with http:// or https://"}
	}
	if c.ClientID == "" {
		return &ValidationError{Field: "client_id", Message: "is required"}
	}
	if c.APIKey == "" {
		return &ValidationError{Field: "api_key", Message: "is required"}
	}
	if c.HeartbeatInterval <= 0 {
		return &ValidationError{Field: "heartbeat_interval", Message: "must be greater than zero"}
	}
	if !c.PaymentStatus.Valid() {
		return &ValidationError{Field: "payment_status", Message: fmt.Sprintf("unknown value %q", c.PaymentStatus)}
	}
	if c.OutstandingAmount < 0 {
		return &ValidationError{Field: "outstanding_amount", Message: "must not be negative"}
	}
	return nil
}

// HasRemoteCredentials reports whether the record carries everything needed to
// reach the remote authority.
func (c *ClientConfig) HasRemoteCredentials() bool {
	return c.ServerURL != "" && c.ClientID != "" && c.APIKey != ""
}

// HeartbeatDue reports whether a heartbeat should be sent at now. A record that
// has never contacted the server is always due.
func (c *ClientConfig) HeartbeatDue(now time.Time) bool {
	if c.LastContact == nil {
		return true
	}
	interval := time.Duration(c.HeartbeatInterval) * time.Minute
	return now.Sub(*c.LastContact) >= interval
}

// IsLocalAdmin reports whether principalID is the designated local administrator.
func (c *ClientConfig) IsLocalAdmin(principalID uuid.UUID) bool {
	return c.LocalAdminPrincipalID != nil && *c.LocalAdminPrincipalID == principalID
}

// ErrInvalidPaymentStatus is returned when parsing an unknown payment status.
var ErrInvalidPaymentStatus = errors.New("invalid payment status")
