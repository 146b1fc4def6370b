package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewClientConfig(t *testing.T) {
	cfg := NewClientConfig("https://hive.example.com", "client-1", "secret")

	if cfg.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if cfg.Name != DefaultConfigName {
		t.Errorf("expected Name %q, got %q", DefaultConfigName, cfg.Name)
	}
	if cfg.Active {
		t.Error("expected new config to be inactive")
	}
	if cfg.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("expected interval %d, got %d", DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	}
	if cfg.PaymentStatus != PaymentStatusPaid {
		t.Errorf("expected payment status paid, got %q", cfg.PaymentStatus)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ClientConfig)
		field  string
	}{
		{"missing scheme", func(c *ClientConfig) { c.ServerURL = "hive.example.com" }, "server_url"},
		{"ftp scheme", func(c *ClientConfig) { c.ServerURL = "ftp://hive.example.com" }, "server_url"},
		{"empty client id", func(c *ClientConfig) { c.ClientID = "" }, "client_id"},
		{"empty api key", func(c *ClientConfig) { c.APIKey = "" }, "api_key"},
		{"zero interval", func(c *ClientConfig) { c.HeartbeatInterval = 0 }, "heartbeat_interval"},
		{"negative interval", func(c *ClientConfig) { c.HeartbeatInterval = -5 }, "heartbeat_interval"},
		{"bad payment status", func(c *ClientConfig) { c.PaymentStatus = "late" }, "payment_status"},
		{"negative amount", func(c *ClientConfig) { c.OutstandingAmount = -1 }, "outstanding_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewClientConfig("https://hive.example.com", "client-1", "secret")
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestClientConfig_HeartbeatDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := NewClientConfig("https://hive.example.com", "client-1", "secret")
	cfg.HeartbeatInterval = 15

	if !cfg.HeartbeatDue(now) {
		t.Error("expected never-contacted config to be due")
	}

	twenty := now.Add(-20 * time.Minute)
	cfg.LastContact = &twenty
	if !cfg.HeartbeatDue(now) {
		t.Error("expected config contacted 20 minutes ago to be due")
	}

	five := now.Add(-5 * time.Minute)
	cfg.LastContact = &five
	if cfg.HeartbeatDue(now) {
		t.Error("expected config contacted 5 minutes ago not to be due")
	}

	exact := now.Add(-15 * time.Minute)
	cfg.LastContact = &exact
	if !cfg.HeartbeatDue(now) {
		t.Error("expected config at exactly the interval to be due")
	}
}

func TestClientConfig_IsLocalAdmin(t *testing.T) {
	cfg := NewClientConfig("https://hive.example.com", "client-1", "secret")
	id := uuid.New()

	if cfg.IsLocalAdmin(id) {
		t.Error("expected no local admin when none designated")
	}

	cfg.LocalAdminPrincipalID = &id
	if !cfg.IsLocalAdmin(id) {
		t.Error("expected designated principal to be local admin")
	}
	if cfg.IsLocalAdmin(uuid.New()) {
		t.Error("expected other principal not to be local admin")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	ps, err := ParsePaymentStatus("")
	if err != nil || ps != PaymentStatusPaid {
		t.Errorf("expected empty to parse as paid, got %q, %v", ps, err)
	}

	ps, err = ParsePaymentStatus("overdue")
	if err != nil || ps != PaymentStatusOverdue {
		t.Errorf("expected overdue, got %q, %v", ps, err)
	}

	if _, err := ParsePaymentStatus("late"); !errors.Is(err, ErrInvalidPaymentStatus) {
		t.Errorf("expected ErrInvalidPaymentStatus, got %v", err)
	}
}

func TestAccessStatePatch_Apply(t *testing.T) {
	state := AccessState{
		IsBlocked:         false,
		WarningMessage:    "keep me",
		PaymentStatus:     PaymentStatusPaid,
		OutstandingAmount: 12.5,
	}

	blocked := true
	reason := "overdue invoice"
	now := time.Now()
	AccessStatePatch{IsBlocked: &blocked, BlockReason: &reason, LastContact: &now}.Apply(&state)

	if !state.IsBlocked || state.BlockReason != reason {
		t.Errorf("expected block fields applied, got %+v", state)
	}
	if state.WarningMessage != "keep me" || state.OutstandingAmount != 12.5 {
		t.Errorf("expected untouched fields preserved, got %+v", state)
	}
	if state.LastContact == nil || !state.LastContact.Equal(now) {
		t.Errorf("expected last contact %v, got %v", now, state.LastContact)
	}
}

func TestAccessState_DisplayWarningMessage(t *testing.T) {
	if got := (AccessState{}).DisplayWarningMessage(); got != DefaultWarningMessage {
		t.Errorf("expected fallback %q, got %q", DefaultWarningMessage, got)
	}
	if got := (AccessState{WarningMessage: "pay now"}).DisplayWarningMessage(); got != "pay now" {
		t.Errorf("expected message, got %q", got)
	}
}

func TestPrincipal_Capabilities(t *testing.T) {
	p := NewPrincipal("alice", CapabilityHiveAdmin)
	if !p.Has(CapabilityHiveAdmin) {
		t.Error("expected hive admin capability")
	}
	if p.IsSystemAdmin() {
		t.Error("hive admin must not count as system admin")
	}

	p.IsSuperuser = true
	if !p.IsSystemAdmin() {
		t.Error("expected superuser to count as system admin")
	}

	var nilPrincipal *Principal
	if nilPrincipal.Has(CapabilitySystemAdmin) || nilPrincipal.IsSystemAdmin() {
		t.Error("nil principal must hold nothing")
	}
}
