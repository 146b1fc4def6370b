// Package memory provides in-process stores for tests and development runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
)

// Store keeps configurations, status logs and principals in memory.
type Store struct {
	mu         sync.RWMutex
	configs    map[uuid.UUID]models.ClientConfig
	logs       []models.StatusLogEntry
	principals map[uuid.UUID]models.Principal
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		configs:    make(map[uuid.UUID]models.ClientConfig),
		principals: make(map[uuid.UUID]models.Principal),
	}
}

func (s *Store) ListConfigs(_ context.Context) ([]*models.ClientConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedConfigs(func(models.ClientConfig) bool { return true }), nil
}

func (s *Store) ListActiveConfigs(_ context.Context) ([]*models.ClientConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedConfigs(func(c models.ClientConfig) bool { return c.Active }), nil
}

func (s *Store) GetConfig(_ context.Context, id uuid.UUID) (*models.ClientConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	return cloneConfig(c), nil
}

func (s *Store) GetActiveConfigByClientID(_ context.Context, clientID string) (*models.ClientConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.sortedConfigs(func(c models.ClientConfig) bool { return c.Active && c.ClientID == clientID })
	if len(matches) == 0 {
		return nil, access.ErrNotFound
	}
	return matches[0], nil
}

func (s *Store) CreateConfig(_ context.Context, cfg *models.ClientConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Active && s.hasActiveExcept(cfg.ID) {
		return access.ErrActiveConfigExists
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	s.configs[cfg.ID] = *cloneConfig(*cfg)
	return nil
}

func (s *Store) UpdateConfigSettings(_ context.Context, cfg *models.ClientConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[cfg.ID]
	if !ok {
		return access.ErrNotFound
	}
	c.Name = cfg.Name
	c.ServerURL = cfg.ServerURL
	c.ClientID = cfg.ClientID
	c.APIKey = cfg.APIKey
	c.HeartbeatInterval = cfg.HeartbeatInterval
	c.AutoReportStatus = cfg.AutoReportStatus
	c.UpdatedAt = time.Now().UTC()
	s.configs[cfg.ID] = c
	return nil
}

func (s *Store) SetConfigActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[id]
	if !ok {
		return access.ErrNotFound
	}
	if active && s.hasActiveExcept(id) {
		return access.ErrActiveConfigExists
	}
	c.Active = active
	c.UpdatedAt = time.Now().UTC()
	s.configs[id] = c
	return nil
}

func (s *Store) SetLocalAdmin(_ context.Context, id uuid.UUID, enabled bool, principalID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[id]
	if !ok {
		return access.ErrNotFound
	}
	c.LocalAdminMode = enabled
	c.LocalAdminPrincipalID = cloneUUID(principalID)
	c.UpdatedAt = time.Now().UTC()
	s.configs[id] = c
	return nil
}

func (s *Store) ApplyAccessState(_ context.Context, id uuid.UUID, by access.Controller, patch models.AccessStatePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[id]
	if !ok {
		return access.ErrNotFound
	}
	if c.LocalAdminMode != by.LocalAdminMode() {
		return by.Refusal()
	}
	patch.Apply(&c.AccessState)
	c.UpdatedAt = time.Now().UTC()
	s.configs[id] = c
	return nil
}

func (s *Store) AppendStatusLog(_ context.Context, entry *models.StatusLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.ConfigID = cloneUUID(entry.ConfigID)
	s.logs = append(s.logs, e)
	return nil
}

func (s *Store) ListStatusLogs(_ context.Context, filter access.StatusLogFilter) ([]*models.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.StatusLogEntry, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if filter.ConfigID != nil && (e.ConfigID == nil || *e.ConfigID != *filter.ConfigID) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		e.ConfigID = cloneUUID(e.ConfigID)
		out = append(out, &e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// StatusLogs returns a copy of every entry in insertion order.
func (s *Store) StatusLogs() []models.StatusLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StatusLogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// ForceActive marks a configuration active without the single-active check.
// Tests use it to reproduce a corrupted store.
func (s *Store) ForceActive(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.configs[id]; ok {
		c.Active = true
		s.configs[id] = c
	}
}

func (s *Store) CreatePrincipal(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.principals {
		if strings.EqualFold(existing.Login, p.Login) {
			return access.ErrLoginTaken
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.principals[p.ID] = *clonePrincipal(*p)
	return nil
}

func (s *Store) GetPrincipalByID(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (s *Store) GetPrincipalByLogin(_ context.Context, login string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals {
		if strings.EqualFold(p.Login, login) {
			return clonePrincipal(p), nil
		}
	}
	return nil, access.ErrNotFound
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.principals), nil
}

func (s *Store) CountCompanies(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range s.principals {
		if p.Company != "" {
			seen[p.Company] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *Store) hasActiveExcept(id uuid.UUID) bool {
	for otherID, c := range s.configs {
		if c.Active && otherID != id {
			return true
		}
	}
	return false
}

func (s *Store) sortedConfigs(keep func(models.ClientConfig) bool) []*models.ClientConfig {
	out := make([]*models.ClientConfig, 0, len(s.configs))
	for _, c := range s.configs {
		if keep(c) {
			out = append(out, cloneConfig(c))
		}
	}
	slices.SortFunc(out, func(a, b *models.ClientConfig) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func cloneConfig(c models.ClientConfig) *models.ClientConfig {
	c.LocalAdminPrincipalID = cloneUUID(c.LocalAdminPrincipalID)
	if c.LastContact != nil {
		t := *c.LastContact
		c.LastContact = &t
	}
	return &c
}

func clonePrincipal(p models.Principal) *models.Principal {
	p.Capabilities = slices.Clone(p.Capabilities)
	return &p
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
