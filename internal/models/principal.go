package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Capability is a named permission held by a principal.
type Capability string

const (
	// CapabilitySystemAdmin is the system-administrator capability.
	CapabilitySystemAdmin Capability = "system_admin"
	// CapabilityHiveAdmin is the dedicated SmartHive administrator capability.
	CapabilityHiveAdmin Capability = "hive_admin"
	// CapabilityERPManager is the broad ERP manager capability.
	CapabilityERPManager Capability = "erp_manager"
)

// Principal is an authenticated identity of the host application.
type Principal struct {
	ID           uuid.UUID    `json:"id"`
	Login        string       `json:"login"`
	PasswordHash string       `json:"-"`
	Company      string       `json:"company,omitempty"`
	IsSuperuser  bool         `json:"is_superuser"`
	Capabilities []Capability `json:"capabilities"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewPrincipal creates a Principal with the given login and capabilities.
func NewPrincipal(login string, caps ...Capability) *Principal {
	return &Principal{
		ID:           uuid.New(),
		Login:        login,
		Capabilities: caps,
		CreatedAt:    time.Now().UTC(),
	}
}

// Has reports whether the principal holds capability c.
func (p *Principal) Has(c Capability) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Capabilities, c)
}

// IsSystemAdmin reports whether the principal is the superuser or a system administrator.
func (p *Principal) IsSystemAdmin() bool {
	if p == nil {
		return false
	}
	return p.IsSuperuser || p.Has(CapabilitySystemAdmin)
}

// CapabilityStrings returns the capabilities as plain strings for storage.
func (p *Principal) CapabilityStrings() []string {
	out := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		out = append(out, string(c))
	}
	return out
}

// ParseCapabilities converts stored strings to capabilities.
func ParseCapabilities(values []string) []Capability {
	out := make([]Capability, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, Capability(v))
	}
	return out
}
