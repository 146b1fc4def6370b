package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StatusType categorizes a status log entry.
type StatusType string

const (
	StatusTypeHeartbeat StatusType = "heartbeat"
	StatusTypeWarning   StatusType = "warning"
	StatusTypeBlock     StatusType = "block"
	StatusTypeSystem    StatusType = "system"
	StatusTypeError     StatusType = "error"
)

// StatusSeverity is the outcome attached to a status log entry.
type StatusSeverity string

const (
	SeveritySuccess StatusSeverity = "success"
	SeverityWarning StatusSeverity = "warning"
	SeverityError   StatusSeverity = "error"
	SeverityInfo    StatusSeverity = "info"
)

// StatusSource records which control path produced an entry.
type StatusSource string

const (
	// SourceRemoteSync is a heartbeat or status report initiated by this install.
	SourceRemoteSync StatusSource = "remote_sync"
	// SourceRemoteAuthority is a push from the remote authority over the inbound API.
	SourceRemoteAuthority StatusSource = "remote_authority"
	// SourceLocalAdmin is an action by the local administrator.
	SourceLocalAdmin StatusSource = "local_admin"
	// SourceEnforcement is a fault observed while enforcing access.
	SourceEnforcement StatusSource = "enforcement"
	// SourceSystem covers configuration changes and startup.
	SourceSystem StatusSource = "system"
)

// StatusLogEntry is an immutable audit record of a sync attempt or override action.
type StatusLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	ConfigID  *uuid.UUID     `json:"config_id,omitempty"`
	Type      StatusType     `json:"type"`
	Severity  StatusSeverity `json:"severity"`
	Source    StatusSource   `json:"source"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewStatusLogEntry creates a new StatusLogEntry.
func NewStatusLogEntry(configID *uuid.UUID, typ StatusType, severity StatusSeverity, source StatusSource, message string) *StatusLogEntry {
	return &StatusLogEntry{
		ID:        uuid.New(),
		ConfigID:  configID,
		Type:      typ,
		Severity:  severity,
		Source:    source,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// WithDetails serializes v into the entry's details. Values that fail to
// marshal are dropped; the entry itself is never lost.
func (e *StatusLogEntry) WithDetails(v any) *StatusLogEntry {
	switch d := v.(type) {
	case nil:
	case string:
		e.Details = d
	case []byte:
		e.Details = string(d)
	case json.RawMessage:
		e.Details = string(d)
	default:
		if b, err := json.Marshal(d); err == nil {
			e.Details = string(b)
		}
	}
	return e
}
