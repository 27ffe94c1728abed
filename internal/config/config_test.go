package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.WaitAttempts != 60 {
		t.Errorf("WaitAttempts = %d, want 60", cfg.Database.WaitAttempts)
	}
	if cfg.Database.WaitInterval != time.Second {
		t.Errorf("WaitInterval = %v, want 1s", cfg.Database.WaitInterval)
	}
	if cfg.Database.Engine != "postgresql" {
		t.Errorf("Engine = %q, want postgresql", cfg.Database.Engine)
	}
	if cfg.Device.Path != "/dev/ttyUSB0" {
		t.Errorf("Device.Path = %q, want /dev/ttyUSB0", cfg.Device.Path)
	}
	if len(cfg.Supervisor.Command) == 0 {
		t.Error("Supervisor.Command should have a default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bootstrap.toml")

	content := `
[database]
host = "db.internal"
wait_attempts = 5

[nginx]
config_path = "/tmp/nginx.conf"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Database.WaitAttempts != 5 {
		t.Errorf("WaitAttempts = %d, want 5", cfg.Database.WaitAttempts)
	}
	if cfg.Nginx.ConfigPath != "/tmp/nginx.conf" {
		t.Errorf("Nginx.ConfigPath = %q, want /tmp/nginx.conf", cfg.Nginx.ConfigPath)
	}
	// Untouched sections keep their defaults.
	if cfg.Database.Port != "5432" {
		t.Errorf("Database.Port = %q, want 5432", cfg.Database.Port)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.WaitAttempts != 60 {
		t.Errorf("WaitAttempts = %d, want 60", cfg.Database.WaitAttempts)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bootstrap.toml")
	content := `
[database]
host = "from-file"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvDBHost, "from-env")
	t.Setenv(EnvDBWaitAttempts, "3")
	t.Setenv(EnvTLSEnabled, "true")
	t.Setenv(EnvDeviceWait, "TRUE")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Database.Host != "from-env" {
		t.Errorf("Database.Host = %q, want from-env", cfg.Database.Host)
	}
	if cfg.Database.WaitAttempts != 3 {
		t.Errorf("WaitAttempts = %d, want 3", cfg.Database.WaitAttempts)
	}
	if !cfg.Nginx.TLSEnabled {
		t.Error("TLSEnabled should be true")
	}
	if !cfg.Device.Wait {
		t.Error("Device.Wait should be true")
	}
}

func TestLoad_BoolFlagOtherValuesDisable(t *testing.T) {
	for _, v := range []string{"false", "1", "yes", "on", ""} {
		t.Setenv(EnvTLSEnabled, v)
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Nginx.TLSEnabled {
			t.Errorf("TLSEnabled with %q = true, want false", v)
		}
	}
}

func TestValidate_App(t *testing.T) {
	complete := func() *Config {
		cfg := Default()
		cfg.Admin = AdminConfig{User: "admin", Email: "admin@example.com", Password: "secret"}
		cfg.Database.Host = "db"
		cfg.Database.User = "dsmr"
		cfg.Database.Name = "dsmrreader"
		return cfg
	}

	if err := complete().Validate(FlavorApp); err != nil {
		t.Fatalf("complete config should validate, got %v", err)
	}

	tests := []struct {
		name  string
		unset func(*Config)
	}{
		{"missing user", func(c *Config) { c.Admin.User = "" }},
		{"missing email", func(c *Config) { c.Admin.Email = "" }},
		{"missing password", func(c *Config) { c.Admin.Password = "" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"missing db name", func(c *Config) { c.Database.Name = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := complete()
			tt.unset(cfg)
			if err := cfg.Validate(FlavorApp); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_Datalogger(t *testing.T) {
	cfg := Default()
	cfg.Datalogger.APIHosts = "https://api.example.com"
	cfg.Datalogger.APIKeys = "k1"
	cfg.Datalogger.InputMethod = "serial"

	if err := cfg.Validate(FlavorDatalogger); err != nil {
		t.Fatalf("complete config should validate, got %v", err)
	}

	cfg.Datalogger.InputMethod = ""
	if err := cfg.Validate(FlavorDatalogger); err == nil {
		t.Error("expected validation error for missing input method")
	}
}

func TestValidate_UnknownFlavor(t *testing.T) {
	if err := Default().Validate(Flavor("worker")); err == nil {
		t.Error("expected error for unknown flavor")
	}
}
