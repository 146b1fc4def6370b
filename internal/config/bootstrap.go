package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bootstrap describes the client configuration and principals seeded on first start.
type Bootstrap struct {
	Client     *BootstrapClient     `yaml:"client,omitempty"`
	Principals []BootstrapPrincipal `yaml:"principals,omitempty"`
}

// BootstrapClient is the initial client configuration record.
type BootstrapClient struct {
	Name              string `yaml:"name,omitempty"`
	ServerURL         string `yaml:"server_url"`
	ClientID          string `yaml:"client_id"`
	APIKey            string `yaml:"api_key"`
	HeartbeatInterval int    `yaml:"heartbeat_interval,omitempty"`
	AutoReportStatus  *bool  `yaml:"auto_report_status,omitempty"`
	LocalAdminMode    bool   `yaml:"local_admin_mode,omitempty"`
	// LocalAdmin names the login of the designated local administrator.
	LocalAdmin string `yaml:"local_admin,omitempty"`
}

// BootstrapPrincipal is an initial login for the credential table.
type BootstrapPrincipal struct {
	Login        string   `yaml:"login"`
	Password     string   `yaml:"password"`
	Company      string   `yaml:"company,omitempty"`
	Superuser    bool     `yaml:"superuser,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// Validate checks that the bootstrap file has required fields.
func (b *Bootstrap) Validate() error {
	if b.Client != nil {
		if b.Client.ServerURL == "" {
			return errors.New("client.server_url is required")
		}
		if b.Client.ClientID == "" {
			return errors.New("client.client_id is required")
		}
		if b.Client.APIKey == "" {
			return errors.New("client.api_key is required")
		}
	}
	seen := make(map[string]bool, len(b.Principals))
	for i, p := range b.Principals {
		if p.Login == "" {
			return fmt.Errorf("principals[%d].login is required", i)
		}
		if p.Password == "" {
			return fmt.Errorf("principals[%d].password is required", i)
		}
		if seen[p.Login] {
			return fmt.Errorf("principals[%d]: duplicate login %q", i, p.Login)
		}
		seen[p.Login] = true
	}
	if b.Client != nil && b.Client.LocalAdmin != "" && !seen[b.Client.LocalAdmin] {
		return fmt.Errorf("client.local_admin %q is not a listed principal", b.Client.LocalAdmin)
	}
	return nil
}

// LoadBootstrap reads and validates the bootstrap file at path.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap file: %w", err)
	}

	var b Bootstrap
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bootstrap file: %w", err)
	}

	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validate bootstrap file: %w", err)
	}

	return &b, nil
}
