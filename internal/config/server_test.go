package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadServerConfig_DefaultEnvironment(t *testing.T) {
	os.Unsetenv("ENV")
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q, got %q", EnvDevelopment, cfg.Environment)
	}
}

func TestLoadServerConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("ENV", "invalid")
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q for invalid ENV, got %q", EnvDevelopment, cfg.Environment)
	}
}

func TestLoadServerConfig_ValidEnvironments(t *testing.T) {
	tests := []struct {
		env  string
		want Environment
	}{
		{"development", EnvDevelopment},
		{"staging", EnvStaging},
		{"production", EnvProduction},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			cfg := LoadServerConfig()
			if cfg.Environment != tt.want {
				t.Errorf("expected %q, got %q", tt.want, cfg.Environment)
			}
		})
	}
}

func TestLoadServerConfig_StorageDriver(t *testing.T) {
	t.Run("defaults to sqlite without database url", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "")
		t.Setenv("DATABASE_URL", "")
		cfg := LoadServerConfig()
		if cfg.StorageDriver != StorageSQLite {
			t.Errorf("expected %q, got %q", StorageSQLite, cfg.StorageDriver)
		}
	})

	t.Run("defaults to postgres with database url", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "")
		t.Setenv("DATABASE_URL", "postgres://localhost/hive")
		cfg := LoadServerConfig()
		if cfg.StorageDriver != StoragePostgres {
			t.Errorf("expected %q, got %q", StoragePostgres, cfg.StorageDriver)
		}
	})

	t.Run("explicit memory", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "MEMORY")
		cfg := LoadServerConfig()
		if cfg.StorageDriver != StorageMemory {
			t.Errorf("expected %q, got %q", StorageMemory, cfg.StorageDriver)
		}
	})
}

func TestLoadServerConfig_Scheduler(t *testing.T) {
	t.Setenv("SCHEDULER_TICK", "")
	t.Setenv("SCHEDULER_CONCURRENCY", "")
	cfg := LoadServerConfig()
	if cfg.SchedulerTick != 5*time.Minute {
		t.Errorf("expected default tick 5m, got %v", cfg.SchedulerTick)
	}
	if cfg.SchedulerConcurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.SchedulerConcurrency)
	}

	t.Setenv("SCHEDULER_TICK", "10s")
	t.Setenv("SCHEDULER_CONCURRENCY", "0")
	cfg = LoadServerConfig()
	if cfg.SchedulerTick != time.Minute {
		t.Errorf("expected tick clamped to 1m, got %v", cfg.SchedulerTick)
	}
	if cfg.SchedulerConcurrency != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.SchedulerConcurrency)
	}

	t.Setenv("SCHEDULER_TICK", "garbage")
	cfg = LoadServerConfig()
	if cfg.SchedulerTick != 5*time.Minute {
		t.Errorf("expected invalid tick to fall back to 5m, got %v", cfg.SchedulerTick)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"postgres without url", ServerConfig{StorageDriver: StoragePostgres, SessionSecret: secret}, true},
		{"postgres with url", ServerConfig{StorageDriver: StoragePostgres, DatabaseURL: "postgres://x", SessionSecret: secret}, false},
		{"sqlite without path", ServerConfig{StorageDriver: StorageSQLite, SessionSecret: secret}, true},
		{"memory", ServerConfig{StorageDriver: StorageMemory, SessionSecret: secret}, false},
		{"short secret", ServerConfig{StorageDriver: StorageMemory, SessionSecret: "short"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("HIVEGUARD_TEST_BOOL", tt.val)
			if got := getEnvBool("HIVEGUARD_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
			}
		})
	}
}

func TestLoadProxyConfig(t *testing.T) {
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("http_proxy", "http://lower:3128")
	t.Setenv("HTTPS_PROXY", "http://upper:3128")
	t.Setenv("https_proxy", "http://ignored:3128")
	t.Setenv("SOCKS5_PROXY", "")
	t.Setenv("socks5_proxy", "")

	p := LoadProxyConfig()
	if p.HTTPProxy != "http://lower:3128" {
		t.Errorf("expected lower-case fallback, got %q", p.HTTPProxy)
	}
	if p.HTTPSProxy != "http://upper:3128" {
		t.Errorf("expected upper-case precedence, got %q", p.HTTPSProxy)
	}
	if !p.HasProxy() {
		t.Error("expected HasProxy to be true")
	}

	empty := ProxyConfig{NoProxy: "localhost"}
	if empty.HasProxy() {
		t.Error("NoProxy alone must not count as a proxy")
	}
}
